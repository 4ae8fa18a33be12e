package broker

import (
	"encoding/json"
	"os"
	"path/filepath"
	"sync"

	"github.com/rs/zerolog"
)

// Constructor builds a fresh Broker instance from a manifest. Plugins
// register a Constructor under their manifest's Name at package-init time
// (Go has no safe dynamic-import equivalent to Python's importlib, so
// "plugin discovery" here means: scan plugins/<name>/plugin.json for
// metadata, then look up the already-registered, compiled-in Constructor
// for that name — see DESIGN.md's open-question decision 1 for the same
// reasoning applied to the strategy registry).
type Constructor func() Broker

// Registry is the broker plugin registry: manifest-driven discovery with
// per-plugin error isolation, ported from brokers/registry.py.
type Registry struct {
	mu           sync.RWMutex
	pluginsDir   string
	constructors map[string]Constructor
	manifests    map[string]Manifest
	log          zerolog.Logger
}

// NewRegistry creates a Registry that scans pluginsDir for manifests.
func NewRegistry(pluginsDir string, log zerolog.Logger) *Registry {
	return &Registry{
		pluginsDir:   pluginsDir,
		constructors: make(map[string]Constructor),
		manifests:    make(map[string]Manifest),
		log:          log.With().Str("component", "broker_registry").Logger(),
	}
}

// RegisterConstructor makes constructor available for discovery under
// name. Plugins call this from their own init() function.
func (r *Registry) RegisterConstructor(name string, constructor Constructor) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.constructors[name] = constructor
}

// RegisterBroker manually registers a broker with its metadata, bypassing
// plugin discovery entirely. Ported from registry.py's register_broker,
// whose docstring notes it's "for non-plugin brokers like PaperTrading" —
// used here for exactly that purpose in cmd/server/main.go.
func (r *Registry) RegisterBroker(name string, constructor Constructor, manifest Manifest) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.constructors[name] = constructor
	r.manifests[name] = manifest
	r.log.Info().Str("broker", name).Msg("registered broker")
}

// DiscoverPlugins scans pluginsDir for subdirectories containing a
// plugin.json, loading each manifest and binding it to an
// already-registered Constructor of the same name. A plugin directory
// that fails to load is logged and skipped; it never aborts discovery
// for the rest (ported from registry.py's per-plugin try/except).
func (r *Registry) DiscoverPlugins() error {
	entries, err := os.ReadDir(r.pluginsDir)
	if os.IsNotExist(err) {
		r.log.Warn().Str("dir", r.pluginsDir).Msg("plugins directory not found")
		return nil
	}
	if err != nil {
		return err
	}

	for _, entry := range entries {
		if !entry.IsDir() || entry.Name()[0] == '_' {
			continue
		}
		if err := r.loadPlugin(entry.Name()); err != nil {
			r.log.Error().Err(err).Str("plugin", entry.Name()).Msg("failed to load broker plugin")
		}
	}
	return nil
}

func (r *Registry) loadPlugin(dirName string) error {
	manifestPath := filepath.Join(r.pluginsDir, dirName, "plugin.json")
	data, err := os.ReadFile(manifestPath)
	if err != nil {
		return err
	}

	var manifest Manifest
	if err := json.Unmarshal(data, &manifest); err != nil {
		return err
	}

	r.mu.Lock()
	defer r.mu.Unlock()
	if _, ok := r.constructors[manifest.Name]; !ok {
		r.log.Warn().Str("plugin", manifest.Name).Msg("no compiled-in constructor registered for plugin manifest")
		return nil
	}
	r.manifests[manifest.Name] = manifest
	r.log.Info().Str("broker", manifest.Name).Str("version", manifest.Version).Msg("loaded broker plugin")
	return nil
}

// Reload clears manifests and re-scans the plugins directory, mirroring
// registry.py's reload_plugins.
func (r *Registry) Reload() error {
	r.mu.Lock()
	r.manifests = make(map[string]Manifest)
	r.mu.Unlock()
	return r.DiscoverPlugins()
}

// New instantiates a fresh Broker for name, or (nil, false) if unknown.
func (r *Registry) New(name string) (Broker, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	c, ok := r.constructors[name]
	if !ok {
		return nil, false
	}
	return c(), true
}

// Manifest returns the metadata registered for name.
func (r *Registry) Manifest(name string) (Manifest, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	m, ok := r.manifests[name]
	return m, ok
}

// ListBrokers returns every registered broker name.
func (r *Registry) ListBrokers() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()
	names := make([]string, 0, len(r.constructors))
	for name := range r.constructors {
		names = append(names, name)
	}
	return names
}

// IsRegistered reports whether name has a constructor registered.
func (r *Registry) IsRegistered(name string) bool {
	r.mu.RLock()
	defer r.mu.RUnlock()
	_, ok := r.constructors[name]
	return ok
}
