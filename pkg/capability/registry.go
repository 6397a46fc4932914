package capability

import (
	"fmt"
	"sort"
	"sync"

	"github.com/arnavsurve/agentblocks/pkg/core"
	"github.com/arnavsurve/agentblocks/pkg/types"
)

// Settings is what a provider factory receives. Config has already had its
// {{ }} placeholders resolved against the varfile.
type Settings struct {
	Config      core.ProviderConfig
	WorkflowDir string
	Logger      types.Logger
}

type ProviderFactory func(s Settings) (Client, error)

var (
	mu sync.RWMutex
	// registry stores each provider type's factory. NewClient resolves a
	// provider config's 'type' through it.
	registry = map[string]ProviderFactory{}
)

// RegisterProviderFactory is called from each provider's init function.
func RegisterProviderFactory(providerType string, factory ProviderFactory) {
	mu.Lock()
	defer mu.Unlock()
	registry[providerType] = factory
}

// NewClient builds the client for a provider config by calling the factory
// registered for its type.
func NewClient(s Settings) (Client, error) {
	mu.RLock()
	factory, ok := registry[s.Config.Type]
	mu.RUnlock()
	if !ok {
		return nil, fmt.Errorf("no capability provider registered for type: %s", s.Config.Type)
	}

	client, err := factory(s)
	if err != nil {
		return nil, fmt.Errorf("creating %q provider %q: %w", s.Config.Type, s.Config.Name, err)
	}
	return client, nil
}

// ProviderTypes lists the registered provider types in sorted order.
func ProviderTypes() []string {
	mu.RLock()
	defer mu.RUnlock()
	out := make([]string, 0, len(registry))
	for t := range registry {
		out = append(out, t)
	}
	sort.Strings(out)
	return out
}

// IsRegistered reports whether a factory exists for providerType.
func IsRegistered(providerType string) bool {
	mu.RLock()
	defer mu.RUnlock()
	_, ok := registry[providerType]
	return ok
}
