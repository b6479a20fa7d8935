package service

import (
	"sort"

	"github.com/ambientflow/ambientmix/internal/domain/vo"
)

// Classification is the cache treatment assigned to a sound
type Classification struct {
	Priority vo.Priority
	Preload  bool
}

// DefaultClassification applies to every sound id missing from the table
var DefaultClassification = Classification{Priority: vo.PriorityLow, Preload: false}

// defaultTable lists the known sound ids. Ids that are not in the built-in
// catalog are kept so that custom catalogs using them get the same treatment.
var defaultTable = map[string]Classification{
	"rain":        {Priority: vo.PriorityHigh, Preload: true},
	"waves":       {Priority: vo.PriorityHigh, Preload: true},
	"white-noise": {Priority: vo.PriorityHigh, Preload: true},
	"fireplace":   {Priority: vo.PriorityHigh, Preload: true},

	"stream":     {Priority: vo.PriorityMedium, Preload: true},
	"birds":      {Priority: vo.PriorityMedium, Preload: true},
	"cafe":       {Priority: vo.PriorityMedium, Preload: true},
	"pink-noise": {Priority: vo.PriorityMedium, Preload: true},

	"brown-noise": {Priority: vo.PriorityMedium, Preload: false},

	"thunder":      {Priority: vo.PriorityLow, Preload: false},
	"wind":         {Priority: vo.PriorityLow, Preload: false},
	"summer-night": {Priority: vo.PriorityLow, Preload: false},
	"city":         {Priority: vo.PriorityLow, Preload: false},
	"train":        {Priority: vo.PriorityLow, Preload: false},
	"boat":         {Priority: vo.PriorityLow, Preload: false},
}

// PriorityPolicy is a domain service that classifies sounds for caching and
// reclamation. It is a pure lookup and safe for concurrent use.
type PriorityPolicy struct {
	table map[string]Classification
}

// NewPriorityPolicy creates a policy over the given table
func NewPriorityPolicy(table map[string]Classification) *PriorityPolicy {
	t := make(map[string]Classification, len(table))
	for id, c := range table {
		t[id] = c
	}
	return &PriorityPolicy{table: t}
}

// DefaultPriorityPolicy creates a policy with the built-in table
func DefaultPriorityPolicy() *PriorityPolicy {
	return NewPriorityPolicy(defaultTable)
}

// Classify returns the classification for soundID, defaulting to low/no preload
func (p *PriorityPolicy) Classify(soundID string) Classification {
	if c, ok := p.table[soundID]; ok {
		return c
	}
	return DefaultClassification
}

// PriorityOf returns only the priority for soundID
func (p *PriorityPolicy) PriorityOf(soundID string) vo.Priority {
	return p.Classify(soundID).Priority
}

// PreloadSet returns the ids among candidates that are high priority and
// marked for preload, sorted
func (p *PriorityPolicy) PreloadSet(candidates []string) []string {
	var ids []string
	for _, id := range candidates {
		c := p.Classify(id)
		if c.Preload && c.Priority.IsHigh() {
			ids = append(ids, id)
		}
	}
	sort.Strings(ids)
	return ids
}

// ReclaimOrder sorts ids so that the cheapest to lose come first: low
// priority before medium before high, ties broken by id.
func (p *PriorityPolicy) ReclaimOrder(ids []string) []string {
	out := make([]string, len(ids))
	copy(out, ids)
	sort.SliceStable(out, func(i, j int) bool {
		pi, pj := p.PriorityOf(out[i]), p.PriorityOf(out[j])
		if !pi.Equals(pj) {
			return pi.LowerThan(pj)
		}
		return out[i] < out[j]
	})
	return out
}

// KnownIDs returns every id with an explicit classification, sorted
func (p *PriorityPolicy) KnownIDs() []string {
	ids := make([]string, 0, len(p.table))
	for id := range p.table {
		ids = append(ids, id)
	}
	sort.Strings(ids)
	return ids
}
