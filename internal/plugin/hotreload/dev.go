package hotreload

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"

	"github.com/dshills/musicbox/internal/plugin"
)

// ErrUnknownTemplate is returned for a template name not in Templates.
var ErrUnknownTemplate = errors.New("unknown plugin template")

// templates holds main.lua bodies. {{id}} is replaced by the plugin id.
var templates = map[string]string{
	"basic": `local Plugin = { name = "{{id}}", version = "0.1.0" }
Plugin.__index = Plugin

function Plugin.new(ctx)
	return setmetatable({ ctx = ctx }, Plugin)
end

function Plugin:activate()
	print("{{id}} activated")
end

function Plugin:deactivate()
	print("{{id}} deactivated")
end

return Plugin
`,
	"player": `local Plugin = { name = "{{id}}", version = "0.1.0" }
Plugin.__index = Plugin

function Plugin.new(ctx)
	return setmetatable({ ctx = ctx }, Plugin)
end

function Plugin:activate()
	self.ctx.player.onTrackChanged(function(track)
		if track then
			print("now playing: " .. tostring(track.title))
		end
	end)
end

return Plugin
`,
	"command": `local Plugin = { name = "{{id}}", version = "0.1.0" }
Plugin.__index = Plugin

function Plugin.new(ctx)
	return setmetatable({ ctx = ctx }, Plugin)
end

function Plugin:activate()
	local utils = self.ctx.utils
	utils.registerCommand("hello", function(name)
		return "Hello, " .. (name or "world")
	end)
end

return Plugin
`,
}

// templatePermissions lists the permissions each template needs.
var templatePermissions = map[string][]string{
	"player": {"player"},
}

// Templates returns the template names accepted by CreateDevPlugin.
func Templates() []string {
	names := make([]string, 0, len(templates))
	for name := range templates {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// CreateDevPlugin writes a plugin.json and main.lua from template into
// <devDir>/<id>, installs it and watches its main file. An empty template
// means "basic".
func (s *Server) CreateDevPlugin(ctx context.Context, id, template string) (*plugin.Descriptor, error) {
	if s.devDir == "" {
		return nil, errors.New("no dev directory configured")
	}
	if template == "" {
		template = "basic"
	}
	body, ok := templates[template]
	if !ok {
		return nil, fmt.Errorf("%w: %q (have %s)", ErrUnknownTemplate, template, strings.Join(Templates(), ", "))
	}

	d := &plugin.Descriptor{
		ID:          id,
		Name:        id,
		Version:     "0.1.0",
		Description: "Development plugin (" + template + " template)",
		Main:        "main.lua",
		Permissions: templatePermissions[template],
	}
	if err := d.Validate(); err != nil {
		return nil, err
	}

	dir := filepath.Join(s.devDir, id)
	if _, err := os.Stat(dir); err == nil {
		return nil, fmt.Errorf("dev plugin %q: %s already exists", id, dir)
	}
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, fmt.Errorf("create dev plugin: %w", err)
	}

	manifest, err := json.MarshalIndent(d, "", "  ")
	if err != nil {
		return nil, err
	}
	if err := os.WriteFile(filepath.Join(dir, "plugin.json"), append(manifest, '\n'), 0o644); err != nil {
		return nil, fmt.Errorf("create dev plugin: %w", err)
	}
	code := strings.ReplaceAll(body, "{{id}}", id)
	if err := os.WriteFile(filepath.Join(dir, "main.lua"), []byte(code), 0o644); err != nil {
		return nil, fmt.Errorf("create dev plugin: %w", err)
	}

	installed, err := plugin.LoadDescriptorFile(dir)
	if err != nil {
		return nil, err
	}
	if err := s.manager.Install(ctx, installed); err != nil {
		return installed, err
	}
	if err := s.Watch(id, installed.Main); err != nil {
		return installed, err
	}
	s.logger.WithPlugin(id).Info("created dev plugin in %s", dir)
	return installed, nil
}
