// Package devices lists the phone viewports the mobile frame can emulate.
package devices

import "sort"

type Platform string

const (
	IOS     Platform = "ios"
	Android Platform = "android"
)

// Shell is the physical outline drawn around the mobile viewport.
type Shell struct {
	OuterWidth   int `yaml:"outerWidth"`
	OuterHeight  int `yaml:"outerHeight"`
	BorderWidth  int `yaml:"borderWidth"`
	TopBarHeight int `yaml:"topBarHeight"`
	// BottomBarHeight is the home indicator area.
	BottomBarHeight int `yaml:"bottomBarHeight"`
}

// Device is a single preset.
type Device struct {
	ID       string   `yaml:"id"`
	Label    string   `yaml:"label"`
	Platform Platform `yaml:"platform"`
	// ViewportWidth is the CSS pixel width the page renders at.
	ViewportWidth int   `yaml:"viewportWidth"`
	Shell         Shell `yaml:"shell"`
}

// ViewportHeight is the usable page height inside the shell.
func (d Device) ViewportHeight() int {
	s := d.Shell
	h := s.OuterHeight - 2*s.BorderWidth - s.TopBarHeight - s.BottomBarHeight
	if h < 0 {
		return 0
	}
	return h
}

const DefaultID = "iphone-14-pro"

var presets = []Device{
	{ID: "iphone-se", Label: "iPhone SE (3rd gen)", Platform: IOS, ViewportWidth: 375,
		Shell: Shell{OuterWidth: 393, OuterHeight: 720, BorderWidth: 4, TopBarHeight: 44, BottomBarHeight: 20}},
	{ID: "iphone-14", Label: "iPhone 14", Platform: IOS, ViewportWidth: 390,
		Shell: Shell{OuterWidth: 408, OuterHeight: 830, BorderWidth: 4, TopBarHeight: 55, BottomBarHeight: 28}},
	{ID: "iphone-14-pro", Label: "iPhone 14 Pro", Platform: IOS, ViewportWidth: 393,
		Shell: Shell{OuterWidth: 411, OuterHeight: 852, BorderWidth: 4, TopBarHeight: 55, BottomBarHeight: 28}},
	{ID: "iphone-14-pro-max", Label: "iPhone 14 Pro Max", Platform: IOS, ViewportWidth: 430,
		Shell: Shell{OuterWidth: 448, OuterHeight: 932, BorderWidth: 4, TopBarHeight: 55, BottomBarHeight: 28}},
	{ID: "iphone-15-pro", Label: "iPhone 15 Pro", Platform: IOS, ViewportWidth: 393,
		Shell: Shell{OuterWidth: 411, OuterHeight: 852, BorderWidth: 4, TopBarHeight: 55, BottomBarHeight: 28}},

	{ID: "galaxy-s24", Label: "Galaxy S24", Platform: Android, ViewportWidth: 360,
		Shell: Shell{OuterWidth: 375, OuterHeight: 780, BorderWidth: 4, TopBarHeight: 44, BottomBarHeight: 20}},
	{ID: "galaxy-s24-ultra", Label: "Galaxy S24 Ultra", Platform: Android, ViewportWidth: 412,
		Shell: Shell{OuterWidth: 430, OuterHeight: 900, BorderWidth: 4, TopBarHeight: 44, BottomBarHeight: 20}},
	{ID: "pixel-8", Label: "Pixel 8", Platform: Android, ViewportWidth: 393,
		Shell: Shell{OuterWidth: 411, OuterHeight: 840, BorderWidth: 4, TopBarHeight: 44, BottomBarHeight: 20}},
	{ID: "oneplus-12", Label: "OnePlus 12", Platform: Android, ViewportWidth: 412,
		Shell: Shell{OuterWidth: 430, OuterHeight: 900, BorderWidth: 4, TopBarHeight: 44, BottomBarHeight: 20}},
	{ID: "galaxy-a54", Label: "Galaxy A54", Platform: Android, ViewportWidth: 360,
		Shell: Shell{OuterWidth: 378, OuterHeight: 810, BorderWidth: 4, TopBarHeight: 44, BottomBarHeight: 20}},
}

// All returns a copy of every preset in display order.
func All() []Device {
	out := make([]Device, len(presets))
	copy(out, presets)
	return out
}

// Lookup returns the preset with the given id.
func Lookup(id string) (Device, bool) {
	for _, d := range presets {
		if d.ID == id {
			return d, true
		}
	}
	return Device{}, false
}

// Find is Lookup falling back to the first preset for unknown ids.
func Find(id string) Device {
	if d, ok := Lookup(id); ok {
		return d
	}
	return presets[0]
}

// Default is the preset used when nothing is configured.
func Default() Device { return Find(DefaultID) }

// ByPlatform groups presets by platform, preserving display order.
func ByPlatform() map[Platform][]Device {
	out := make(map[Platform][]Device)
	for _, d := range presets {
		out[d.Platform] = append(out[d.Platform], d)
	}
	return out
}

// IDs lists preset ids, sorted.
func IDs() []string {
	ids := make([]string, 0, len(presets))
	for _, d := range presets {
		ids = append(ids, d.ID)
	}
	sort.Strings(ids)
	return ids
}
