package config

import (
	"bytes"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"regexp"
	"sort"
	"strings"

	yaml "go.yaml.in/yaml/v3"

	logx "telekinesis/pkg/logx"
)

func deviceKey(name string) string { return strings.ToLower(strings.TrimSpace(name)) }

func (m *Manager) device(name string) (DeviceConfig, bool, *Config) {
	cfg := m.Get()
	if cfg == nil {
		return DeviceConfig{}, false, nil
	}
	k := deviceKey(name)
	for n, d := range cfg.Devices.Entries {
		if deviceKey(n) == k {
			return d, true, cfg
		}
	}
	return DeviceConfig{}, false, cfg
}

// Enabled reports whether a device may be selected.
func (m *Manager) Enabled(name string) bool {
	d, ok, cfg := m.device(name)
	if ok && d.Enabled != nil {
		return *d.Enabled
	}
	if cfg != nil && cfg.Devices.DefaultEnabled != nil {
		return *cfg.Devices.DefaultEnabled
	}
	return true
}

// EventTags returns the device's event tags (lowercased).
func (m *Manager) EventTags(name string) []string {
	d, _, _ := m.device(name)
	out := make([]string, 0, len(d.Events))
	for _, e := range d.Events {
		if e = strings.ToLower(strings.TrimSpace(e)); e != "" {
			out = append(out, e)
		}
	}
	return out
}

// SetDeviceEnabled updates the in-memory settings. Call Save to persist.
func (m *Manager) SetDeviceEnabled(name string, enabled bool) {
	m.editDevice(name, func(d *DeviceConfig) { d.Enabled = &enabled })
}

// SetDeviceEvents replaces the device's event tags. Call Save to persist.
func (m *Manager) SetDeviceEvents(name string, events []string) {
	tags := make([]string, 0, len(events))
	for _, e := range events {
		if e = strings.ToLower(strings.TrimSpace(e)); e != "" {
			tags = append(tags, e)
		}
	}
	sort.Strings(tags)
	m.editDevice(name, func(d *DeviceConfig) { d.Events = tags })
}

// editDevice applies fn to a copy of the current config and commits it, so
// readers holding the previous *Config never observe a mutation.
func (m *Manager) editDevice(name string, fn func(d *DeviceConfig)) {
	k := deviceKey(name)
	if k == "" {
		return
	}
	m.mu.Lock()
	next := clone(m.cfg)
	entries := make(map[string]DeviceConfig, len(next.Devices.Entries)+1)
	var cur DeviceConfig
	for n, d := range next.Devices.Entries {
		if deviceKey(n) == k {
			cur = d
			continue
		}
		entries[n] = d
	}
	fn(&cur)
	entries[k] = cur
	next.Devices.Entries = entries
	m.cfg = next
	m.mu.Unlock()

	m.publish(next)
}

// Save writes the current config back to its file in the file's own format.
// The write is atomic (temp file + rename); the watcher sees identical content
// and skips the reload.
func (m *Manager) Save() error {
	cfg := m.Get()
	if cfg == nil {
		return fmt.Errorf("save %s: no config loaded", m.path)
	}
	b, err := encode(m.path, cfg)
	if err != nil {
		return fmt.Errorf("save %s: %w", m.path, err)
	}

	dir := filepath.Dir(m.path)
	tmp, err := os.CreateTemp(dir, "."+filepath.Base(m.path)+".*")
	if err != nil {
		return fmt.Errorf("save %s: %w", m.path, err)
	}
	defer os.Remove(tmp.Name())
	if _, err := tmp.Write(b); err != nil {
		_ = tmp.Close()
		return fmt.Errorf("save %s: %w", m.path, err)
	}
	if err := tmp.Close(); err != nil {
		return fmt.Errorf("save %s: %w", m.path, err)
	}
	if err := os.Rename(tmp.Name(), m.path); err != nil {
		return fmt.Errorf("save %s: %w", m.path, err)
	}

	m.mu.Lock()
	m.lastHash = hashConfig(cfg)
	m.mu.Unlock()
	m.log.Info("settings saved", logx.String("path", m.path), logx.String("format", formatOf(m.path).String()))
	return nil
}

func encode(path string, cfg *Config) ([]byte, error) {
	jb, err := json.MarshalIndent(cfg, "", "  ")
	if err != nil {
		return nil, err
	}
	if formatOf(path) != formatYAML {
		return append(jb, '\n'), nil
	}

	// JSON is valid YAML; decode into a node to keep key order, then switch
	// every node to block style.
	var doc yaml.Node
	if err := yaml.Unmarshal(jb, &doc); err != nil {
		return nil, err
	}
	blockStyle(&doc)
	var buf bytes.Buffer
	enc := yaml.NewEncoder(&buf)
	enc.SetIndent(2)
	if err := enc.Encode(&doc); err != nil {
		return nil, err
	}
	if err := enc.Close(); err != nil {
		return nil, err
	}
	return buf.Bytes(), nil
}

// plainSafe matches strings that read back as strings when unquoted.
var plainSafe = regexp.MustCompile(`^[A-Za-z_/][A-Za-z0-9 _./@*-]*$`)

func blockStyle(n *yaml.Node) {
	switch n.Kind {
	case yaml.ScalarNode:
		if n.Tag != "!!str" {
			n.Style = 0
			return
		}
		switch strings.ToLower(n.Value) {
		case "true", "false", "yes", "no", "on", "off", "null", "y", "n":
			return
		}
		if plainSafe.MatchString(n.Value) && !strings.HasSuffix(n.Value, " ") {
			n.Style = 0
		}
	default:
		n.Style = 0
		for _, c := range n.Content {
			blockStyle(c)
		}
	}
}

func clone(cfg *Config) *Config {
	if cfg == nil {
		return &Config{}
	}
	b, err := json.Marshal(cfg)
	if err != nil {
		return &Config{}
	}
	var out Config
	if err := json.Unmarshal(b, &out); err != nil {
		return &Config{}
	}
	return &out
}
