// Package rules implements the correction, classification, tipification and
// exclusion units the pipeline applies to exam records. Every unit is
// idempotent: it only touches rows matching a needs-correction predicate, so
// re-running a unit over already-corrected data is a no-op.
package rules

import (
	"context"
	"fmt"

	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"github.com/volumetria/volumetria/internal/domain/period"
	"github.com/volumetria/volumetria/internal/domain/records"
	"github.com/volumetria/volumetria/internal/domain/rejection"
	"github.com/volumetria/volumetria/internal/domain/reference"
	"github.com/volumetria/volumetria/pkg/chunk"
)

// ID identifies one rule unit.
type ID string

// Stage partitions rules into the ordered phases the orchestrator runs.
type Stage string

const (
	StageNormalize Stage = "normalize"
	StageClassify  Stage = "classify"
	StageTipify    Stage = "tipify"
	StageExclude   Stage = "exclude"
)

// Stages lists the phases in execution order. Later stages assume earlier
// stages already normalized the fields they filter on.
var Stages = []Stage{StageNormalize, StageClassify, StageTipify, StageExclude}

// MaxExamples caps how many affected-row snapshots a Result retains.
const MaxExamples = 20

// RecordStore is the slice of the record store rules operate on.
type RecordStore interface {
	ListChunk(ctx context.Context, sel records.Selector, after uuid.UUID, limit int) ([]*records.ExamRecord, error)
	InsertBatch(ctx context.Context, recs []*records.ExamRecord) (int, error)
	Update(ctx context.Context, rec *records.ExamRecord) error
	DeleteByIDs(ctx context.Context, ids []uuid.UUID) (int64, error)
}

// Catalog is the read-only slice of the reference tables rules consult.
// Rules never write reference data.
type Catalog interface {
	LookupExact(ctx context.Context, examName string) (*reference.Entry, error)
	LookupSubstring(ctx context.Context, examDescription string) (*reference.Entry, error)
	PrioritySynonyms(ctx context.Context) (map[string]string, error)
	ClientAliases(ctx context.Context) (map[string]string, error)
	Price(ctx context.Context, examName, modality string) (float64, bool, error)
	QuebraRules(ctx context.Context) (map[string][]string, error)
	ExclusionCriteria(ctx context.Context) ([]reference.ExclusionCriterion, error)
}

// Ledger receives a snapshot for every record an exclusion rule removes.
// Implemented by the rejection service.
type Ledger interface {
	Log(ctx context.Context, rec *records.ExamRecord, reason rejection.ReasonCode, detail string) (bool, error)
}

// Policy carries the operator-configured lists rules consult. Injected from
// configuration rather than baked into rule bodies.
type Policy struct {
	HardExcludedCompanies map[string]bool
	NeuroPhysicians       map[string]bool
}

// Env bundles the dependencies a rule unit runs against.
type Env struct {
	Records   RecordStore
	Catalog   Catalog
	Ledger    Ledger
	Policy    Policy
	ChunkSize int
	Log       zerolog.Logger
}

// Result is the outcome of one rule unit invocation.
type Result struct {
	RuleID       ID                    `json:"rule_id"`
	Matched      int                   `json:"matched"`
	Affected     int                   `json:"affected"`
	Errored      int                   `json:"errored"`
	FailedChunks int                   `json:"failed_chunks"`
	Examples     []*records.ExamRecord `json:"examples,omitempty"`
	Errors       []string              `json:"errors,omitempty"`
}

func (r *Result) addExample(rec *records.ExamRecord) {
	if len(r.Examples) < MaxExamples {
		cp := *rec
		r.Examples = append(r.Examples, &cp)
	}
}

// Unit is one atomic transformation over exam records.
type Unit interface {
	ID() ID
	Name() string
	Stage() Stage
	Apply(ctx context.Context, env *Env, sel records.Selector, p period.Period) (*Result, error)
}

// Registry holds every known rule unit keyed by id.
type Registry struct {
	units map[ID]Unit
	order []ID
}

func NewRegistry() *Registry {
	r := &Registry{units: make(map[ID]Unit)}
	for _, u := range allUnits() {
		r.register(u)
	}
	return r
}

func (r *Registry) register(u Unit) {
	if _, dup := r.units[u.ID()]; dup {
		panic(fmt.Sprintf("rules: duplicate rule id %s", u.ID()))
	}
	r.units[u.ID()] = u
	r.order = append(r.order, u.ID())
}

// Get returns the unit for id, or nil when unknown.
func (r *Registry) Get(id ID) Unit {
	return r.units[id]
}

// All returns every unit in registration order.
func (r *Registry) All() []Unit {
	out := make([]Unit, 0, len(r.order))
	for _, id := range r.order {
		out = append(out, r.units[id])
	}
	return out
}

// ByStage returns the units of one stage in registration order.
func (r *Registry) ByStage(s Stage) []Unit {
	var out []Unit
	for _, u := range r.All() {
		if u.Stage() == s {
			out = append(out, u)
		}
	}
	return out
}

// allUnits is the fixed rule set, listed in pipeline execution order.
func allUnits() []Unit {
	return []Unit{
		// normalize
		&trimFields{},
		&canonicalCompany{},
		&normalizePriority{},
		&fixModalityCRDX{},
		&fixModalityBMD{},
		// classify
		&classifyCatalog{},
		&classifyModalityDefaults{},
		&fixOncoSpecialty{},
		&disambiguateColunas{},
		&fallbackClassification{},
		&recomputePeriod{},
		&correctValues{},
		// tipify
		&tipifyUrgency{},
		&tipifyRetroactive{},
		&tipifyDefault{},
		// exclude
		&excludePeriod{},
		&excludePeriodRetroactive{},
		&excludeCompanies{},
		&excludeDynamic{},
		&excludeDuplicates{},
		&splitExams{},
	}
}

// rowFunc inspects one record. When it matches the rule's needs-correction
// predicate it mutates rec in place and returns matched=true; the caller
// persists the update.
type rowFunc func(ctx context.Context, env *Env, rec *records.ExamRecord) (matched bool, err error)

// applyUpdate runs fn over every record of the selector in keyset chunks and
// persists mutated rows. Row failures are counted and skipped.
func applyUpdate(ctx context.Context, env *Env, sel records.Selector, id ID, fn rowFunc) (*Result, error) {
	if err := sel.Validate(); err != nil {
		return nil, err
	}
	out := &Result{RuleID: id}

	cursor := uuid.Nil
	res := chunk.Apply(ctx, env.ChunkSize,
		func(ctx context.Context, limit int) ([]*records.ExamRecord, error) {
			recs, err := env.Records.ListChunk(ctx, sel, cursor, limit)
			if err != nil {
				return nil, err
			}
			if len(recs) > 0 {
				cursor = recs[len(recs)-1].ID
			}
			return recs, nil
		},
		func(ctx context.Context, recs []*records.ExamRecord) (int, int, error) {
			affected, errored := 0, 0
			for _, rec := range recs {
				matched, err := fn(ctx, env, rec)
				if err != nil {
					errored++
					continue
				}
				if !matched {
					continue
				}
				out.Matched++
				if err := env.Records.Update(ctx, rec); err != nil {
					errored++
					continue
				}
				affected++
				out.addExample(rec)
			}
			return affected, errored, nil
		},
	)

	out.Affected = res.Affected
	out.Errored = res.Errored
	out.FailedChunks = res.FailedChunks
	out.Errors = res.ErrStrings()
	return out, nil
}

// excludeFunc decides whether one record falls to an exclusion rule.
type excludeFunc func(rec *records.ExamRecord) (exclude bool, detail string)

// applyExclusion removes matching records and writes one ledger entry per
// removed row. A record whose ledger write fails is kept and counted as
// errored, so no row is ever deleted without its snapshot.
func applyExclusion(ctx context.Context, env *Env, sel records.Selector, id ID, reason rejection.ReasonCode, fn excludeFunc) (*Result, error) {
	if err := sel.Validate(); err != nil {
		return nil, err
	}
	out := &Result{RuleID: id}

	cursor := uuid.Nil
	res := chunk.Apply(ctx, env.ChunkSize,
		func(ctx context.Context, limit int) ([]*records.ExamRecord, error) {
			recs, err := env.Records.ListChunk(ctx, sel, cursor, limit)
			if err != nil {
				return nil, err
			}
			if len(recs) > 0 {
				cursor = recs[len(recs)-1].ID
			}
			return recs, nil
		},
		func(ctx context.Context, recs []*records.ExamRecord) (int, int, error) {
			errored := 0
			var doomed []uuid.UUID
			for _, rec := range recs {
				exclude, detail := fn(rec)
				if !exclude {
					continue
				}
				out.Matched++
				if _, err := env.Ledger.Log(ctx, rec, reason, detail); err != nil {
					errored++
					continue
				}
				doomed = append(doomed, rec.ID)
				out.addExample(rec)
			}
			if len(doomed) == 0 {
				return 0, errored, nil
			}
			n, err := env.Records.DeleteByIDs(ctx, doomed)
			if err != nil {
				return 0, errored, fmt.Errorf("delete excluded records: %w", err)
			}
			return int(n), errored, nil
		},
	)

	out.Affected = res.Affected
	out.Errored = res.Errored
	out.FailedChunks = res.FailedChunks
	out.Errors = res.ErrStrings()
	return out, nil
}
