// Package services maps friendly utility names to portal service
// identifiers and wizard step orders.
package services

import (
	"math"
	"strconv"
	"strings"

	"github.com/agnivade/levenshtein"
)

// DefaultStepOrder is the wizard step most services expose balance data at.
const DefaultStepOrder = 2

// MaxTypoDistance is the maximum Levenshtein distance to consider a suggestion.
// Names with distance > 2 are considered too different to suggest.
const MaxTypoDistance = 2

// Service describes one portal service.
type Service struct {
	// Name is the canonical short name used on the command line.
	Name string

	// Display is the provider's display name.
	Display string

	// ID is the portal's ROOT_SERVICE_ID for the provider.
	ID int64

	// StepOrder is the wizard step that carries the balance data.
	StepOrder int

	// Aliases are alternate lookup names.
	Aliases []string

	// Custom marks entries loaded from the config file.
	Custom bool
}

// Builtin returns the services every installation knows about.
func Builtin() []Service {
	return []Service{
		{
			Name:      "water",
			Display:   "Tbilisi Water",
			ID:        2758,
			StepOrder: 2,
			Aliases:   []string{"gwp", "tbilisi-water"},
		},
		{
			Name:      "electricity",
			Display:   "Tbilisi Energy",
			ID:        771,
			StepOrder: 2,
			Aliases:   []string{"energy", "tbilisi-energy"},
		},
	}
}

// Registry resolves service names, aliases and numeric IDs.
type Registry struct {
	services []Service
	byKey    map[string]int
}

// NewRegistry builds a registry from the built-in services plus any custom
// entries. A custom entry sharing a built-in name replaces it; custom names
// and aliases win key collisions so the config file always takes effect.
func NewRegistry(custom ...Service) *Registry {
	merged := Builtin()

	for _, svc := range custom {
		svc.Custom = true
		if svc.StepOrder <= 0 {
			svc.StepOrder = DefaultStepOrder
		}
		if svc.Display == "" {
			svc.Display = svc.Name
		}

		replaced := false
		for i := range merged {
			if strings.EqualFold(merged[i].Name, svc.Name) {
				merged[i] = svc
				replaced = true
				break
			}
		}
		if !replaced {
			merged = append(merged, svc)
		}
	}

	r := &Registry{
		services: merged,
		byKey:    make(map[string]int),
	}
	for i, svc := range merged {
		r.index(svc.Name, i)
		for _, alias := range svc.Aliases {
			r.index(alias, i)
		}
	}
	return r
}

func (r *Registry) index(key string, i int) {
	key = normalize(key)
	if key == "" {
		return
	}
	// Later entries win so custom services can shadow built-in aliases.
	r.byKey[key] = i
}

// Lookup resolves a service by name, alias or numeric ID.
func (r *Registry) Lookup(name string) (Service, bool) {
	key := normalize(name)
	if key == "" {
		return Service{}, false
	}

	if i, ok := r.byKey[key]; ok {
		return r.services[i], true
	}

	if id, err := strconv.ParseInt(key, 10, 64); err == nil {
		for _, svc := range r.services {
			if svc.ID == id {
				return svc, true
			}
		}
	}

	return Service{}, false
}

// Suggest finds the closest known name or alias to the input using
// Levenshtein distance. Returns empty string if nothing is close enough
// (distance > MaxTypoDistance).
func (r *Registry) Suggest(input string) string {
	input = normalize(input)
	if input == "" {
		return ""
	}

	minDist := math.MaxInt
	var suggestion string

	consider := func(candidate string) {
		dist := levenshtein.ComputeDistance(input, normalize(candidate))
		if dist < minDist {
			minDist = dist
			suggestion = candidate
		}
	}

	// Canonical names first so they win ties against aliases.
	for _, svc := range r.services {
		consider(svc.Name)
	}
	for _, svc := range r.services {
		for _, alias := range svc.Aliases {
			consider(alias)
		}
	}

	if minDist <= MaxTypoDistance {
		return suggestion
	}
	return ""
}

// List returns all registered services in display order.
func (r *Registry) List() []Service {
	out := make([]Service, len(r.services))
	copy(out, r.services)
	return out
}

func normalize(s string) string {
	return strings.ToLower(strings.TrimSpace(s))
}
