package reference

import (
	"context"
)

// Repository exposes the lookup datasets rules consult. Lookups that miss
// return (nil, nil) rather than an error, since a missing catalog entry is an
// expected outcome the caller handles with defaults.
type Repository interface {
	LookupExact(ctx context.Context, examName string) (*Entry, error)
	LookupSubstring(ctx context.Context, examDescription string) (*Entry, error)
	ListEntries(ctx context.Context, limit, offset int) ([]*Entry, int, error)

	PrioritySynonyms(ctx context.Context) (map[string]string, error)
	ClientAliases(ctx context.Context) (map[string]string, error)
	Price(ctx context.Context, examName, modality string) (float64, bool, error)
	QuebraRules(ctx context.Context) (map[string][]string, error)
	ExclusionCriteria(ctx context.Context) ([]ExclusionCriterion, error)

	UpsertEntries(ctx context.Context, entries []Entry) (int, error)
	UpsertPrioritySynonyms(ctx context.Context, syns []PrioritySynonym) (int, error)
	UpsertClientAliases(ctx context.Context, aliases []ClientAlias) (int, error)
	UpsertPrices(ctx context.Context, prices []PriceEntry) (int, error)
	UpsertQuebraRules(ctx context.Context, rules []QuebraRule) (int, error)
	UpsertExclusionCriteria(ctx context.Context, criteria []ExclusionCriterion) (int, error)
}
