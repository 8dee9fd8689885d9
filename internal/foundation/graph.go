// Package foundation describes the foundation documents generated for an
// idea and the order they depend on each other.
package foundation

import (
	"errors"
	"fmt"
	"sort"
	"strings"
)

// Kind names one foundation document.
type Kind string

const (
	Strategy      Kind = "strategy"
	Positioning   Kind = "positioning"
	Battlecards   Kind = "battlecards"
	BrandVoice    Kind = "brand-voice"
	Pricing       Kind = "pricing"
	SEOStrategy   Kind = "seo-strategy"
	ProductDesign Kind = "product-design"
)

// ErrUnknownKind is returned for a document kind outside the fixed set.
var ErrUnknownKind = errors.New("unknown foundation document kind")

// All lists every kind in priority order. Order breaks ties with it.
var All = []Kind{Strategy, Positioning, Battlecards, BrandVoice, Pricing, SEOStrategy, ProductDesign}

// prerequisites maps each kind to the kinds that must be complete first.
var prerequisites = map[Kind][]Kind{
	Strategy:      nil,
	Positioning:   {Strategy},
	Battlecards:   {Positioning},
	BrandVoice:    {Positioning},
	Pricing:       {Strategy, Positioning},
	SEOStrategy:   {Positioning, BrandVoice},
	ProductDesign: {Positioning, BrandVoice},
}

// Prerequisites returns the direct prerequisites of k.
func Prerequisites(k Kind) []Kind {
	return append([]Kind(nil), prerequisites[k]...)
}

// Parse validates a kind name.
func Parse(s string) (Kind, error) {
	k := Kind(strings.TrimSpace(strings.ToLower(s)))
	if _, ok := prerequisites[k]; !ok {
		return "", fmt.Errorf("%w: %q", ErrUnknownKind, s)
	}
	return k, nil
}

// ParseList parses a list of kind names, dropping duplicates.
func ParseList(names []string) ([]Kind, error) {
	seen := make(map[Kind]bool)
	var kinds []Kind
	for _, n := range names {
		k, err := Parse(n)
		if err != nil {
			return nil, err
		}
		if !seen[k] {
			seen[k] = true
			kinds = append(kinds, k)
		}
	}
	return kinds, nil
}

func priority(k Kind) int {
	for i, a := range All {
		if a == k {
			return i
		}
	}
	return len(All)
}

// Order returns the requested kinds sorted so that every kind comes after
// any of its prerequisites that were also requested. Among kinds that are
// ready at the same time the fixed priority order wins.
func Order(kinds []Kind) []Kind {
	requested := make(map[Kind]bool, len(kinds))
	for _, k := range kinds {
		requested[k] = true
	}

	indegree := make(map[Kind]int)
	for k := range requested {
		for _, p := range prerequisites[k] {
			if requested[p] {
				indegree[k]++
			}
		}
	}

	var ready []Kind
	for k := range requested {
		if indegree[k] == 0 {
			ready = append(ready, k)
		}
	}

	var order []Kind
	for len(ready) > 0 {
		sort.Slice(ready, func(i, j int) bool { return priority(ready[i]) < priority(ready[j]) })
		k := ready[0]
		ready = ready[1:]
		order = append(order, k)
		for _, next := range All {
			if !requested[next] {
				continue
			}
			for _, p := range prerequisites[next] {
				if p == k {
					indegree[next]--
					if indegree[next] == 0 {
						ready = append(ready, next)
					}
				}
			}
		}
	}
	return order
}

// Missing lists the prerequisites of k that are not complete, in priority
// order.
func Missing(k Kind, complete func(Kind) bool) []Kind {
	var missing []Kind
	for _, p := range prerequisites[k] {
		if !complete(p) {
			missing = append(missing, p)
		}
	}
	return missing
}

// Closure returns k's prerequisites, direct and transitive.
func Closure(k Kind) []Kind {
	seen := make(map[Kind]bool)
	var walk func(Kind)
	walk = func(k Kind) {
		for _, p := range prerequisites[k] {
			if !seen[p] {
				seen[p] = true
				walk(p)
			}
		}
	}
	walk(k)

	var out []Kind
	for _, a := range All {
		if seen[a] {
			out = append(out, a)
		}
	}
	return out
}
