package cmd

import (
	"fmt"
	"strconv"
	"strings"

	"github.com/charmbracelet/lipgloss"
	"github.com/charmbracelet/lipgloss/table"
	json "github.com/json-iterator/go"
	"github.com/spf13/cobra"

	"github.com/xkilldash9x/dualview/internal/devices"
)

type deviceView struct {
	ID             string `json:"id"`
	Label          string `json:"label"`
	Platform       string `json:"platform"`
	ViewportWidth  int    `json:"viewportWidth"`
	ViewportHeight int    `json:"viewportHeight"`
	Default        bool   `json:"default,omitempty"`
}

func newDevicesCmd() *cobra.Command {
	var format string

	devicesCmd := &cobra.Command{
		Use:   "devices",
		Short: "List the mobile device presets",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			views := make([]deviceView, 0, len(devices.All()))
			for _, d := range devices.All() {
				views = append(views, deviceView{
					ID:             d.ID,
					Label:          d.Label,
					Platform:       string(d.Platform),
					ViewportWidth:  d.ViewportWidth,
					ViewportHeight: d.ViewportHeight(),
					Default:        d.ID == devices.DefaultID,
				})
			}

			switch strings.ToLower(format) {
			case "json":
				data, err := json.MarshalIndent(views, "", "  ")
				if err != nil {
					return fmt.Errorf("failed to encode devices: %w", err)
				}
				fmt.Fprintln(cmd.OutOrStdout(), string(data))
			case "table", "":
				fmt.Fprintln(cmd.OutOrStdout(), renderDeviceTable(views))
			default:
				return fmt.Errorf("unsupported format %q (use 'table' or 'json')", format)
			}
			return nil
		},
	}
	devicesCmd.Flags().StringVarP(&format, "format", "f", "table", "output format: table or json")
	return devicesCmd
}

func renderDeviceTable(views []deviceView) string {
	header := lipgloss.NewStyle().Bold(true).Padding(0, 1)
	cell := lipgloss.NewStyle().Padding(0, 1)

	t := table.New().
		Border(lipgloss.NormalBorder()).
		Headers("ID", "DEVICE", "PLATFORM", "VIEWPORT").
		StyleFunc(func(row, col int) lipgloss.Style {
			if row == table.HeaderRow {
				return header
			}
			return cell
		})
	for _, v := range views {
		id := v.ID
		if v.Default {
			id += " *"
		}
		t.Row(id, v.Label, v.Platform, strconv.Itoa(v.ViewportWidth)+"x"+strconv.Itoa(v.ViewportHeight))
	}
	return t.Render() + "\n* default"
}
