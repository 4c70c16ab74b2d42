package dns

import (
	"fmt"
	"maps"
	"slices"
	"sync"

	"github.com/go-logr/logr"
)

// Factory builds a Zone client from provider settings.
type Factory func(log logr.Logger, settings map[string]string) (Zone, error)

var (
	mu        sync.Mutex
	factories = make(map[string]Factory)
)

// Register makes a provider available to NewZone. Provider packages call it
// from init; registering a name twice panics.
func Register(name string, f Factory) {
	mu.Lock()
	defer mu.Unlock()
	if _, exists := factories[name]; exists {
		panic(fmt.Sprintf("dns: provider %q already registered", name))
	}
	factories[name] = f
}

// Providers returns the names of all registered providers, sorted.
func Providers() []string {
	mu.Lock()
	defer mu.Unlock()
	return slices.Sorted(maps.Keys(factories))
}

// SettingZoneName is the provider setting naming the zone a client is bound to.
const SettingZoneName = "zone_name"

// NewZone creates a zone client with the named provider. Every provider is
// bound to exactly one zone, so settings must carry SettingZoneName and the
// returned client must report that zone.
func NewZone(name string, log logr.Logger, settings map[string]string) (Zone, error) {
	mu.Lock()
	f, ok := factories[name]
	mu.Unlock()
	if !ok {
		return nil, fmt.Errorf("unsupported DNS provider: %q (registered: %v)", name, Providers())
	}

	want := settings[SettingZoneName]
	if want == "" {
		return nil, fmt.Errorf("dns provider %s: %s setting is required", name, SettingZoneName)
	}
	zone, err := f(log, settings)
	if err != nil {
		return nil, fmt.Errorf("dns provider %s: %w", name, err)
	}
	if !SameHost(zone.Name(), want) {
		return nil, fmt.Errorf("dns provider %s: client bound to zone %q, want %q", name, zone.Name(), want)
	}
	return zone, nil
}
