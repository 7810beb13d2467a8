package agent

import (
	"net/url"
	"strings"

	"go.uber.org/zap"

	"github.com/xkilldash9x/dualview/internal/protocol"
)

// OnLocationChange is called for history push/replace, popstate and
// hashchange. A confirmation goes out only if the URL actually changed
// since the last one reported.
func (a *Agent) OnLocationChange() {
	if !a.installed {
		return
	}
	a.confirmNavigation()
}

// OnAnchorActivate is called from the capture-phase click handler before the
// browser follows the link. The click itself is never cancelled; this only
// announces the intent so the other frame can follow along.
func (a *Agent) OnAnchorActivate(href string) {
	if !a.installed {
		return
	}
	target, ok := ResolveHref(a.doc.Location(), href)
	if !ok {
		return
	}
	if err := a.ch.SendToHost(a.handle, protocol.NavIntent(target)); err != nil {
		a.logger.Debug("Failed to send navigation intent.", zap.Error(err))
	}
}

func (a *Agent) confirmNavigation() {
	current := a.doc.Location()
	if current == "" || current == a.lastURL {
		return
	}
	a.lastURL = current
	if err := a.ch.SendToHost(a.handle, protocol.Navigate(current)); err != nil {
		a.logger.Debug("Failed to send navigation confirmation.", zap.Error(err))
	}
}

// schedulePoll catches navigations no event reports, such as meta refresh.
func (a *Agent) schedulePoll() {
	a.poll = a.loop.AfterFunc(a.opts.PollInterval, func() {
		if !a.installed {
			return
		}
		a.confirmNavigation()
		a.schedulePoll()
	})
}

// ResolveHref resolves an anchor's raw href attribute against base. Pure
// fragments, script pseudo-URLs, non-web schemes and anything that fails to
// parse are rejected.
func ResolveHref(base, href string) (string, bool) {
	href = strings.TrimSpace(href)
	if href == "" || strings.HasPrefix(href, "#") {
		return "", false
	}
	if strings.HasPrefix(strings.ToLower(href), "javascript:") {
		return "", false
	}
	baseURL, err := url.Parse(base)
	if err != nil {
		return "", false
	}
	ref, err := url.Parse(href)
	if err != nil {
		return "", false
	}
	abs := baseURL.ResolveReference(ref)
	if abs.Scheme != "http" && abs.Scheme != "https" {
		return "", false
	}
	return abs.String(), true
}
