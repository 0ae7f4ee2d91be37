package resolver

import (
	"log/slog"
	"strings"
)

const (
	PluginText     = "text"
	PluginDomReady = "domReady"
)

// ModuleRequest is a raw dependency string split into plugin and resource.
type ModuleRequest struct {
	ID     string
	Plugin string
}

// ParseModuleID separates an optional plugin prefix from the resource ID.
// Unrecognized plugins yield an empty request, which callers skip.
func ParseModuleID(request string) ModuleRequest {
	parts := strings.Split(request, "!")
	if len(parts) == 1 {
		return ModuleRequest{ID: parts[0]}
	}

	plugin, id, extra := parts[0], parts[1], parts[2:]
	switch plugin {
	case PluginText, PluginDomReady:
		if len(extra) > 0 {
			slog.Debug("too many values passed to plugin", "plugin", plugin, "request", request)
		}
		return ModuleRequest{ID: id, Plugin: plugin}
	default:
		slog.Debug("unrecognized plugin, request skipped", "plugin", plugin, "request", request)
		return ModuleRequest{}
	}
}
