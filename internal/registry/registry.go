// Package registry holds the provider descriptors served to callers.
package registry

import (
    "context"
    "sync"

    "github.com/rs/zerolog"

    "quoteengine/internal/credentials"
    "quoteengine/internal/provider"
)

// Entry is one statically configured source.
type Entry struct {
    Descriptor     provider.Descriptor
    CredentialName string
    Enabled        bool
}

// Registry resolves activity from configuration and credentials and
// appends marketplace sub-providers, discovered once per process.
type Registry struct {
    entries  []Entry
    resolver credentials.Resolver
    log      zerolog.Logger

    mu           sync.Mutex
    marketplaces map[string]provider.Discoverer
    discovered   map[string][]provider.Descriptor
}

func New(entries []Entry, resolver credentials.Resolver, log zerolog.Logger) *Registry {
    return &Registry{
        entries:      entries,
        resolver:     resolver,
        log:          log,
        marketplaces: map[string]provider.Discoverer{},
        discovered:   map[string][]provider.Descriptor{},
    }
}

// AddMarketplace attaches a discoverer to the seeded entry with id parentID.
func (r *Registry) AddMarketplace(parentID string, d provider.Discoverer) {
    r.mu.Lock()
    r.marketplaces[parentID] = d
    r.mu.Unlock()
}

func (r *Registry) active(ctx context.Context, e Entry) bool {
    if !e.Enabled { return false }
    if e.CredentialName == "" { return true }
    return r.resolver != nil && r.resolver.Resolve(ctx, e.CredentialName).IsPresent()
}

// ActiveInsurers lists every seeded descriptor with Active resolved, each
// active marketplace followed by its sub-providers.
func (r *Registry) ActiveInsurers(ctx context.Context) []provider.Descriptor {
    out := make([]provider.Descriptor, 0, len(r.entries))
    for _, e := range r.entries {
        d := e.Descriptor
        d.Active = r.active(ctx, e)
        out = append(out, d)
        if d.Kind == provider.KindMarketplace && d.Active {
            out = append(out, r.subProviders(ctx, d.ID)...)
        }
    }
    return out
}

func (r *Registry) subProviders(ctx context.Context, parentID string) []provider.Descriptor {
    r.mu.Lock()
    if subs, ok := r.discovered[parentID]; ok {
        r.mu.Unlock()
        return subs
    }
    d := r.marketplaces[parentID]
    r.mu.Unlock()
    if d == nil { return nil }

    subs, err := d.Discover(ctx)
    if err != nil {
        r.log.Warn().Err(err).Str("adapter", parentID).Msg("marketplace discovery failed")
        return nil
    }
    for i := range subs {
        if subs[i].ParentID == "" { subs[i].ParentID = parentID }
        subs[i].Kind = provider.KindMarketplace
    }
    // nil means the marketplace had no key yet; ask again next time.
    if subs != nil {
        r.mu.Lock()
        r.discovered[parentID] = subs
        r.mu.Unlock()
    }
    return subs
}

// Descriptor returns the seeded descriptor with the given id.
func (r *Registry) Descriptor(id string) (provider.Descriptor, bool) {
    for _, e := range r.entries {
        if e.Descriptor.ID == id { return e.Descriptor, true }
    }
    return provider.Descriptor{}, false
}
