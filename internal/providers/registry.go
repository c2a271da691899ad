// Package providers wires the configured provider adapters behind a registry
// keyed by provider name.
package providers

import (
	"log/slog"

	"github.com/dalasi-wallet-core/internal/config"
	"github.com/dalasi-wallet-core/internal/domain/provider"
	"github.com/dalasi-wallet-core/internal/providers/cardissuer"
	"github.com/dalasi-wallet-core/internal/providers/mobilemoney"
)

// Registry resolves provider adapters by name
type Registry struct {
	adapters   map[string]provider.Adapter
	cardIssuer *cardissuer.Adapter
}

// NewRegistry builds the registry with the configured adapters
func NewRegistry(logger *slog.Logger, cfg *config.ProvidersConfig) *Registry {
	r := &Registry{adapters: make(map[string]provider.Adapter)}
	r.Register(mobilemoney.NewAdapter(logger, &cfg.MobileMoney))
	r.cardIssuer = cardissuer.NewAdapter(logger, &cfg.CardIssuer)
	r.Register(r.cardIssuer)
	return r
}

// CardIssuer returns the card processor adapter with its issuance surface,
// which the provider.Adapter interface does not cover.
func (r *Registry) CardIssuer() *cardissuer.Adapter {
	return r.cardIssuer
}

// Register adds an adapter under its own name
func (r *Registry) Register(a provider.Adapter) {
	r.adapters[a.Name()] = a
}

// Get returns the adapter registered under the name
func (r *Registry) Get(name string) (provider.Adapter, error) {
	a, ok := r.adapters[name]
	if !ok {
		return nil, provider.ErrUnknownProvider{Name: name}
	}
	return a, nil
}

// Names lists the registered provider names
func (r *Registry) Names() []string {
	names := make([]string, 0, len(r.adapters))
	for name := range r.adapters {
		names = append(names, name)
	}
	return names
}
