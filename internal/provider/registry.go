package provider

import (
	"fmt"

	"github.com/kursadbilgin/campaign-engine/internal/domain"
)

type registration struct {
	key      string
	provider Provider
}

// Registry resolves the provider that delivers a channel.
type Registry struct {
	byChannel map[domain.Channel][]registration
	preferred map[domain.Channel]string
}

func NewRegistry() *Registry {
	return &Registry{
		byChannel: make(map[domain.Channel][]registration),
		preferred: make(map[domain.Channel]string),
	}
}

// Register adds a provider for a channel under a selection key such as "whapi".
func (r *Registry) Register(channel domain.Channel, key string, p Provider) *Registry {
	r.byChannel[channel] = append(r.byChannel[channel], registration{key: key, provider: p})
	return r
}

// Prefer selects the provider key tried first for a channel.
func (r *Registry) Prefer(channel domain.Channel, key string) *Registry {
	r.preferred[channel] = key
	return r
}

// For returns the preferred provider when configured, else the first configured one.
// With nothing configured it returns the preferred or first provider so the caller can
// report which one lacks configuration.
func (r *Registry) For(channel domain.Channel) (Provider, error) {
	regs := r.byChannel[channel]
	if len(regs) == 0 {
		return nil, fmt.Errorf("%w: %s", ErrUnknownChannel, channel)
	}

	var preferred Provider
	if key, ok := r.preferred[channel]; ok {
		for _, reg := range regs {
			if reg.key == key {
				preferred = reg.provider
				break
			}
		}
	}
	if preferred != nil && preferred.IsConfigured() {
		return preferred, nil
	}

	for _, reg := range regs {
		if reg.provider.IsConfigured() {
			return reg.provider, nil
		}
	}

	if preferred != nil {
		return preferred, nil
	}
	return regs[0].provider, nil
}
