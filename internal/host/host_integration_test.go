package host

import (
	"context"
	"fmt"
	"net/http"
	"net/http/httptest"
	"os"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"go.uber.org/zap/zaptest"

	"github.com/xkilldash9x/dualview/internal/config"
	"github.com/xkilldash9x/dualview/internal/frame"
	"github.com/xkilldash9x/dualview/internal/status"
)

// Runs against a real Chrome. Enable with DUALVIEW_BROWSER_TESTS=1.
func TestHost_Integration(t *testing.T) {
	if testing.Short() || os.Getenv("DUALVIEW_BROWSER_TESTS") == "" {
		t.Skip("set DUALVIEW_BROWSER_TESTS=1 to run browser integration tests")
	}

	site := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if strings.HasPrefix(r.URL.Path, "/deny") {
			w.Header().Set("X-Frame-Options", "DENY")
		}
		w.Header().Set("Content-Type", "text/html; charset=utf-8")
		fmt.Fprintf(w, `<!doctype html><title>%s</title><div style="height:5000px">tall</div>`, r.URL.Path)
	}))
	defer site.Close()

	cfg := config.NewDefaultConfig()
	cfg.SetBrowserHeadless(true)
	cfg.SetProberTimeout(3 * time.Second)

	type key struct {
		frame string
		url   string
	}
	seen := make(chan key, 64)
	presenter := status.PresenterFunc(func(name, url string, st frame.Status) {
		if st.Terminal() {
			seen <- key{name + ":" + st.String(), url}
		}
	})

	h := New(cfg, zaptest.NewLogger(t, zaptest.Level(zap.DebugLevel)), presenter)
	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Minute)
	defer cancel()

	done := make(chan error, 1)
	go func() { done <- h.Run(ctx) }()

	waitFor := func(want ...key) {
		t.Helper()
		pending := make(map[key]bool, len(want))
		for _, k := range want {
			pending[k] = true
		}
		deadline := time.After(30 * time.Second)
		for len(pending) > 0 {
			select {
			case k := <-seen:
				delete(pending, k)
			case err := <-done:
				t.Fatalf("host stopped early: %v", err)
			case <-deadline:
				t.Fatalf("timed out waiting for %v", pending)
			}
		}
	}

	open := site.URL + "/open"
	h.Load(open)
	waitFor(key{"desktop:loaded", open}, key{"mobile:loaded", open})

	deny := site.URL + "/deny"
	h.Load(deny)
	waitFor(key{"desktop:blocked", deny}, key{"mobile:blocked", deny})

	cancel()
	select {
	case err := <-done:
		require.NoError(t, err)
	case <-time.After(30 * time.Second):
		t.Fatal("host did not shut down")
	}
}
