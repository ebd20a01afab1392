package policy

import (
	"context"
)

// Provider resolves the rules that apply to a provider's calendar.
type Provider interface {
	Rules(ctx context.Context, providerID string) (Rules, error)
}

type staticProvider struct {
	defaults  Rules
	overrides map[string]Override
}

// NewStaticProvider serves defaults, with optional per-provider overrides loaded from
// configuration.
func NewStaticProvider(defaults Rules, overrides map[string]Override) Provider {
	return &staticProvider{defaults: defaults, overrides: overrides}
}

func (p *staticProvider) Rules(_ context.Context, providerID string) (Rules, error) {
	r := p.defaults
	if o, ok := p.overrides[providerID]; ok {
		r = r.Apply(o)
	}
	return r, nil
}
