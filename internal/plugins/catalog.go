// Package plugins holds the compiled-in attachment catalog.
package plugins

import (
	"emp/internal/attach"
	"emp/internal/plugins/devwatch"
	"emp/internal/plugins/filewatch"
	"emp/internal/plugins/logalarm"
	"emp/internal/plugins/ntfyalarm"
	"emp/internal/plugins/timer"
)

// Catalog lists every built-in attachment in discovery order.
func Catalog() []attach.Factory {
	return []attach.Factory{
		timer.Factory(),
		filewatch.Factory(),
		devwatch.Factory(),
		logalarm.Factory(),
		ntfyalarm.Factory(),
	}
}
