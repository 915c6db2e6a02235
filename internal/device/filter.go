// Package device decides which media variants the local device may play.
package device

import (
	"strings"

	"github.com/stwalsh4118/marquee/internal/models"
)

// Device is a device class as named in supported-device lists
type Device string

// Known device classes
const (
	Desktop Device = "desktop"
	Mobile  Device = "mobile"
)

var mobileMarkers = []string{
	"android", "iphone", "ipad", "ipod", "blackberry", "iemobile", "opera mini", "mobile",
}

// Detect classifies a user agent string
func Detect(userAgent string) Device {
	ua := strings.ToLower(userAgent)
	for _, marker := range mobileMarkers {
		if strings.Contains(ua, marker) {
			return Mobile
		}
	}
	return Desktop
}

// Parse converts a configured device name, defaulting to desktop
func Parse(name string) Device {
	if Device(strings.ToLower(strings.TrimSpace(name))) == Mobile {
		return Mobile
	}
	return Desktop
}

// Filter narrows URI groups to what a device supports
type Filter struct {
	device Device
}

// NewFilter creates a filter for the given device class
func NewFilter(d Device) *Filter {
	return &Filter{device: d}
}

// Device returns the device class the filter was built for
func (f *Filter) Device() Device {
	return f.device
}

// Supports reports whether the URI can be played on this device
func (f *Filter) Supports(uri models.MediaURI) bool {
	devices := uri.Devices()
	if devices == nil {
		return true
	}
	for _, d := range devices {
		if Device(d) == f.device {
			return true
		}
	}
	return false
}

// Filter drops unsupported URIs and then any group left without URIs.
// The input is never modified and filtering twice gives the same result.
func (f *Filter) Filter(groups []models.URIGroup) []models.URIGroup {
	return keep(groups, f.Supports)
}

// DVROnly keeps only URIs that stay playable after a live event ends
func DVROnly(groups []models.URIGroup) []models.URIGroup {
	return keep(groups, func(u models.MediaURI) bool { return u.DVR })
}

func keep(groups []models.URIGroup, pred func(models.MediaURI) bool) []models.URIGroup {
	out := make([]models.URIGroup, 0, len(groups))
	for _, g := range groups {
		uris := make([]models.MediaURI, 0, len(g.URIs))
		for _, u := range g.URIs {
			if pred(u) {
				uris = append(uris, u)
			}
		}
		if len(uris) == 0 {
			continue
		}
		out = append(out, models.URIGroup{Quality: g.Quality, URIs: uris})
	}
	return out
}
