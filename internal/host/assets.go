package host

import (
	"bytes"
	_ "embed" // Required for go:embed
	"fmt"
	"html/template"
	"math"
	"strings"

	"github.com/xkilldash9x/dualview/internal/config"
	"github.com/xkilldash9x/dualview/internal/devices"
)

const (
	// BindingName is the CDP binding both the shim and the host page call.
	BindingName        = "__dualviewSignal"
	placeholderBinding = "{{DUALVIEW_BINDING}}"

	frameSandbox = "allow-scripts allow-same-origin allow-forms allow-popups allow-modals"
)

//go:embed assets/shim.js
var shimTemplate string

//go:embed assets/host.html
var hostPageSource string

var hostPage = template.Must(template.New("host").Parse(hostPageSource))

// BuildShim returns the in-frame script with the binding name filled in.
func BuildShim(binding string) (string, error) {
	if shimTemplate == "" {
		return "", fmt.Errorf("embedded shim.js is empty or failed to load")
	}
	if binding == "" {
		return "", fmt.Errorf("binding name is required")
	}
	return strings.ReplaceAll(shimTemplate, placeholderBinding, binding), nil
}

// Layout is which frames the host page shows and how the mobile one is
// oriented.
type Layout struct {
	View      string
	Landscape bool
	// Width overrides the mobile viewport width when positive.
	Width int
}

// LayoutFromConfig reads the layout keys of the host configuration.
func LayoutFromConfig(c config.HostConfig) Layout {
	return Layout{View: c.View, Landscape: c.Landscape, Width: c.Width}
}

func (l Layout) ShowsDesktop() bool { return l.View != config.ViewMobile }
func (l Layout) ShowsMobile() bool  { return l.View != config.ViewDesktop }

// Mirrorable reports whether both frames are on screen, the only layout in
// which mirroring runs.
func (l Layout) Mirrorable() bool { return l.ShowsDesktop() && l.ShowsMobile() }

// PageData parameterizes the host page.
type PageData struct {
	Title           string
	Binding         string
	Sandbox         string
	View            string
	ShowDesktop     bool
	ShowMobile      bool
	DeviceLabel     string
	ViewportWidth   int
	ViewportHeight  int
	ShellWidth      int
	ShellHeight     int
	BorderWidth     int
	TopBarHeight    int
	BottomBarHeight int
	// ViewportScale shrinks a viewport wider than the shell's screen. It is
	// 1 unless Scaled.
	ViewportScale float64
	Scaled        bool
}

// NewPageData lays the mobile frame out for dev. In landscape the shell is
// turned on its side and the viewport takes the full screen width; a
// custom width wins over both. A viewport wider than the screen is scaled
// down and made taller so it still fills the screen.
func NewPageData(dev devices.Device, layout Layout) PageData {
	sh := dev.Shell
	shellW, shellH := sh.OuterWidth, sh.OuterHeight
	if layout.Landscape {
		shellW, shellH = shellH, shellW
	}
	screenW := max(shellW-2*sh.BorderWidth, 0)
	screenH := max(shellH-2*sh.BorderWidth-sh.TopBarHeight-sh.BottomBarHeight, 0)

	viewportW := dev.ViewportWidth
	if layout.Landscape {
		viewportW = screenW
	}
	if layout.Width > 0 {
		viewportW = layout.Width
	}
	scale, viewportH := 1.0, screenH
	if viewportW > screenW && viewportW > 0 {
		scale = float64(screenW) / float64(viewportW)
		viewportH = int(math.Ceil(float64(screenH) / scale))
	}

	view := layout.View
	if view == "" {
		view = config.ViewBoth
	}
	return PageData{
		Title:           "dualview - " + dev.Label,
		Binding:         BindingName,
		Sandbox:         frameSandbox,
		View:            view,
		ShowDesktop:     layout.ShowsDesktop(),
		ShowMobile:      layout.ShowsMobile(),
		DeviceLabel:     dev.Label,
		ViewportWidth:   viewportW,
		ViewportHeight:  viewportH,
		ShellWidth:      shellW,
		ShellHeight:     shellH,
		BorderWidth:     sh.BorderWidth,
		TopBarHeight:    sh.TopBarHeight,
		BottomBarHeight: sh.BottomBarHeight,
		ViewportScale:   scale,
		Scaled:          scale < 1,
	}
}

// RenderPage executes the host page template.
func RenderPage(data PageData) ([]byte, error) {
	var buf bytes.Buffer
	if err := hostPage.Execute(&buf, data); err != nil {
		return nil, fmt.Errorf("failed to render host page: %w", err)
	}
	return buf.Bytes(), nil
}
