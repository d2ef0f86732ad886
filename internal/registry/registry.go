// Package registry manages participant expertise profiles and panel
// selection.
package registry

import (
	"context"
	"fmt"
	"log"
	"sort"
	"sync"
	"time"

	"github.com/xiaot623/conclave/internal/domain"
)

// ProfileSource loads the full participant profile set. Format and
// storage medium are the source's concern.
type ProfileSource interface {
	LoadProfiles(ctx context.Context) ([]domain.ParticipantProfile, error)
}

// reloadAttempts bounds the retry loop on transient source errors.
const reloadAttempts = 3

// Registry caches the loaded profile set. Reload is the only mutating
// operation; readers always see either the previous or the new set,
// never a partial one.
type Registry struct {
	source ProfileSource

	mu       sync.RWMutex
	profiles map[string]domain.ParticipantProfile
}

// New creates a registry and performs the initial load.
func New(ctx context.Context, source ProfileSource) (*Registry, error) {
	r := &Registry{
		source:   source,
		profiles: make(map[string]domain.ParticipantProfile),
	}
	if err := r.Reload(ctx); err != nil {
		return nil, fmt.Errorf("initial profile load: %w", err)
	}
	return r, nil
}

// Reload atomically replaces the cached profile set. Transient source
// errors are retried with backoff; on final failure the cached set keeps
// serving and the error is returned.
func (r *Registry) Reload(ctx context.Context) error {
	var lastErr error
	backoff := 100 * time.Millisecond

	for attempt := 1; attempt <= reloadAttempts; attempt++ {
		profiles, err := r.source.LoadProfiles(ctx)
		if err == nil {
			loaded := make(map[string]domain.ParticipantProfile, len(profiles))
			for _, p := range profiles {
				if err := validate(p); err != nil {
					log.Printf("WARN: skipping profile %q: %v", p.ID, err)
					continue
				}
				loaded[p.ID] = p
			}
			r.mu.Lock()
			r.profiles = loaded
			r.mu.Unlock()
			return nil
		}

		lastErr = err
		log.Printf("WARN: profile reload attempt %d/%d failed: %v", attempt, reloadAttempts, err)
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-time.After(backoff):
		}
		backoff *= 2
	}

	return fmt.Errorf("profile reload failed after %d attempts: %w", reloadAttempts, lastErr)
}

// Get returns a profile by id.
func (r *Registry) Get(id string) (domain.ParticipantProfile, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	p, ok := r.profiles[id]
	return p, ok
}

// Len returns the number of loaded profiles.
func (r *Registry) Len() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.profiles)
}

// SelectPanel returns participants holding at least minWeight in any of
// the requested domains, ordered by (max relevant weight descending,
// id ascending) so selection is deterministic for identical registry
// contents.
func (r *Registry) SelectPanel(domains []string, minWeight float64) []domain.ParticipantProfile {
	r.mu.RLock()
	defer r.mu.RUnlock()

	type ranked struct {
		profile domain.ParticipantProfile
		weight  float64
	}
	var panel []ranked
	for _, p := range r.profiles {
		best := 0.0
		for _, d := range domains {
			if w := p.Weight(d); w > best {
				best = w
			}
		}
		if best >= minWeight && best > 0 {
			panel = append(panel, ranked{profile: p, weight: best})
		}
	}

	sort.Slice(panel, func(i, j int) bool {
		if panel[i].weight != panel[j].weight {
			return panel[i].weight > panel[j].weight
		}
		return panel[i].profile.ID < panel[j].profile.ID
	})

	selected := make([]domain.ParticipantProfile, len(panel))
	for i, entry := range panel {
		selected[i] = entry.profile
	}
	return selected
}

func validate(p domain.ParticipantProfile) error {
	if p.ID == "" {
		return fmt.Errorf("missing id")
	}
	switch p.Role {
	case domain.RoleProposer, domain.RoleReviewer, domain.RoleAbstainer:
	case "":
		return fmt.Errorf("missing role")
	default:
		return fmt.Errorf("unknown role %q", p.Role)
	}
	for d, w := range p.DomainWeights {
		if w < 0 || w > 1 {
			return fmt.Errorf("weight for %q out of range: %v", d, w)
		}
	}
	return nil
}
