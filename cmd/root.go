// -- cmd/root.go --
package cmd

import (
	"context"
	"errors"
	"fmt"
	"os"
	"strings"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"
	"go.uber.org/zap"

	"github.com/xkilldash9x/dualview/internal/config"
	"github.com/xkilldash9x/dualview/internal/observability"
)

// app is the state shared by the root command and its subcommands.
type app struct {
	v       *viper.Viper
	cfgFile string
	cfg     *config.Config
}

// NewRootCommand builds a fresh command tree. Every call gets its own viper
// instance, so flags from one execution never leak into the next.
func NewRootCommand() *cobra.Command {
	a := &app{v: viper.New()}

	rootCmd := &cobra.Command{
		Use:   "dualview",
		Short: "View a site as desktop and mobile side by side, with scroll and navigation kept in sync.",
		// Version is set at build time. See cmd/version.go.
		Version:       Version,
		SilenceUsage:  true,
		SilenceErrors: true,
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			if err := a.v.BindPFlag("logger.level", cmd.Flags().Lookup("log-level")); err != nil {
				return err
			}
			cfg, err := a.loadConfig()
			if err != nil {
				// Initialize a fallback logger so the failure itself gets reported.
				observability.InitializeLogger(config.LoggerConfig{Level: "info", Format: "console", ServiceName: "dualview"})
				return err
			}
			a.cfg = cfg
			observability.InitializeLogger(cfg.Logger())
			observability.GetLogger().Debug("Starting dualview", zap.String("version", Version))
			return nil
		},
	}

	rootCmd.PersistentFlags().StringVarP(&a.cfgFile, "config", "c", "", "config file (default is ./config.yaml)")
	rootCmd.PersistentFlags().String("log-level", "", "log level: debug, info, warn, error (overrides config/env)")
	rootCmd.SetVersionTemplate(`{{printf "%s version %s\n" .Name .Version}}`)

	rootCmd.AddCommand(newOpenCmd(a))
	rootCmd.AddCommand(newDevicesCmd())
	rootCmd.AddCommand(newConfigCmd(a))
	return rootCmd
}

// Execute runs the CLI with ctx, logging any failure.
func Execute(ctx context.Context) error {
	err := NewRootCommand().ExecuteContext(ctx)
	if err != nil && !errors.Is(err, context.Canceled) {
		observability.GetLogger().Error("Command execution failed", zap.Error(err))
		fmt.Fprintln(os.Stderr, "Error:", err)
	}
	observability.Sync()
	return err
}

// loadConfig layers defaults, the config file and DUALVIEW_* environment
// variables, then validates the result.
func (a *app) loadConfig() (*config.Config, error) {
	v := a.v
	config.SetDefaults(v)

	if a.cfgFile != "" {
		v.SetConfigFile(a.cfgFile)
	} else {
		v.AddConfigPath(".")
		v.SetConfigName("config")
		v.SetConfigType("yaml")
	}

	v.SetEnvPrefix("DUALVIEW")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	if err := v.ReadInConfig(); err != nil {
		var notFound viper.ConfigFileNotFoundError
		if !errors.As(err, &notFound) {
			return nil, fmt.Errorf("error reading config file: %w", err)
		}
		// No config file; defaults and env vars apply.
	}
	return config.NewConfigFromViper(v)
}
