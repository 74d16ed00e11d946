// Package correlation resolves registry persons to directory entries. Each
// resolution is a fresh read of current state: gather candidates via
// correlation records and the secondary key, repair orphaned records on the
// way, discriminate, and decide whether to use an existing entry or mint a
// new identifier. No state is retained between calls, so a resolution is
// idempotent and safe to re-run after a retry.
package correlation

import (
	"context"
	"errors"
	"log/slog"
	"regexp"
	"time"

	"github.com/google/uuid"
	"golang.org/x/sync/errgroup"

	"dirsync/internal/discriminator"
	"dirsync/internal/domain"
	"dirsync/internal/username"
	"dirsync/internal/validity"
	derrors "dirsync/pkg/domain-errors"
	"dirsync/pkg/platform/sentinel"
)

// Suggestion is the identifier pair for a directory entry to be created.
type Suggestion struct {
	Username    string
	DisplayName string
}

// Decision is the outcome of a resolution: exactly one of Use and Create is
// set. Use points at the existing entry to synchronize against; Create
// carries the identifiers for a new one.
type Decision struct {
	Use    *domain.Entry
	Create *Suggestion
}

// Config carries the operator policy the resolver applies.
type Config struct {
	// SecondaryKeyAttr is the directory attribute holding the shared
	// secondary key (e.g. the national id number).
	SecondaryKeyAttr string
	// SecondaryKeyPattern validates the person's secondary key before it
	// is used in a directory search. Nil disables validation.
	SecondaryKeyPattern *regexp.Regexp
	// Discriminator picks one entry when several candidates survive.
	Discriminator discriminator.Policy
}

// Observer receives resolution outcomes for metrics.
type Observer interface {
	ObserveResolution(outcome string, took time.Duration)
	OrphanEnded()
}

// Resolver orchestrates end-to-end resolution.
type Resolver struct {
	directory Directory
	registry  Registry
	generator *username.Generator
	taken     username.TakenFunc
	evaluator discriminator.Evaluator
	cfg       Config
	logger    *slog.Logger
	observer  Observer
	now       func() time.Time
}

// Option configures optional resolver collaborators.
type Option func(*Resolver)

func WithLogger(logger *slog.Logger) Option {
	return func(r *Resolver) { r.logger = logger }
}

func WithObserver(observer Observer) Option {
	return func(r *Resolver) { r.observer = observer }
}

// WithClock injects the time source. Tests pin it; production uses time.Now.
func WithClock(now func() time.Time) Option {
	return func(r *Resolver) { r.now = now }
}

func New(
	directory Directory,
	registry Registry,
	generator *username.Generator,
	taken username.TakenFunc,
	evaluator discriminator.Evaluator,
	cfg Config,
	opts ...Option,
) (*Resolver, error) {
	if directory == nil {
		return nil, errors.New("directory collaborator is required")
	}
	if registry == nil {
		return nil, errors.New("registry collaborator is required")
	}
	if generator == nil {
		return nil, errors.New("username generator is required")
	}

	r := &Resolver{
		directory: directory,
		registry:  registry,
		generator: generator,
		taken:     taken,
		evaluator: evaluator,
		cfg:       cfg,
		logger:    slog.Default(),
		now:       time.Now,
	}
	for _, opt := range opts {
		opt(r)
	}
	return r, nil
}

// outcome labels for the observer.
const (
	outcomeUse       = "use"
	outcomeCreate    = "create"
	outcomeAmbiguous = "ambiguous"
	outcomeNoKey     = "no_key"
	outcomeError     = "error"
)

// Resolve decides which directory entry corresponds to the person, or
// whether one should be created. The optional hint is an entry delivered by
// a directory-side event; it joins the candidate set so the event's subject
// competes with whatever the records and secondary key turn up.
func (r *Resolver) Resolve(ctx context.Context, person domain.Person, hint *domain.Entry) (Decision, error) {
	start := r.now()
	decision, err := r.resolve(ctx, person, hint)
	r.observe(err, decision, r.now().Sub(start))
	return decision, err
}

func (r *Resolver) resolve(ctx context.Context, person domain.Person, hint *domain.Entry) (Decision, error) {
	now := r.now()

	if person.SecondaryKey != "" && r.cfg.SecondaryKeyPattern != nil &&
		!r.cfg.SecondaryKeyPattern.MatchString(person.SecondaryKey) {
		return Decision{}, derrors.Newf(derrors.CodeInvalidInput,
			"secondary key of person %s does not match the configured pattern", person.UUID)
	}

	records, err := r.registry.CorrelationRecords(ctx, person.UUID)
	if err != nil {
		return Decision{}, derrors.Wrap(err, derrors.CodeInternal, "listing correlation records")
	}

	gathered, err := r.gather(ctx, person, records, hint, now)

	// Orphan repair is best-effort and independent: it must finish before
	// we return, but its failures never fail the resolution, and it runs
	// even when gathering itself failed partway through.
	r.repairOrphans(ctx, gathered.orphans, now)

	if err != nil {
		return Decision{}, err
	}

	winner, err := r.discriminate(ctx, gathered.entries)
	if err != nil {
		return Decision{}, err
	}
	if winner != nil {
		return Decision{Use: winner}, nil
	}

	// No usable candidate; check whether creating an entry is allowed. An
	// entry may only be created for a person the two systems can still be
	// correlated by: a secondary key, or a correlation record whose target
	// is alive in the directory. Orphaned records do not count: creating
	// on the strength of a dead link would resurrect accounts nobody can
	// find again.
	eligible := person.SecondaryKey != "" || gathered.liveTarget
	if !eligible {
		eligible, err = r.anyTargetAlive(ctx, gathered.unverifiedKeys)
		if err != nil {
			return Decision{}, err
		}
	}
	if !eligible {
		return Decision{}, derrors.Newf(derrors.CodeNoCorrelationKey,
			"person %s has no usable correlation key", person.UUID)
	}

	suggestion, err := r.suggest(ctx, person)
	if err != nil {
		return Decision{}, err
	}
	return Decision{Create: &suggestion}, nil
}

// gathered is the intermediate state of one candidate-gathering pass.
type gathered struct {
	// entries are the surviving candidates, keyed by unique id.
	entries map[string]domain.Entry
	// orphans are the still-open records whose target no longer resolves.
	orphans []domain.CorrelationRecord
	// liveTarget records whether any correlation record target resolved.
	liveTarget bool
	// unverifiedKeys are user-keys of already-ended record groups; their
	// targets were not read during gathering but may still exist.
	unverifiedKeys []string
}

// gather assembles the candidate entries: targets of current correlation
// records (collapsed per user-key by the validity selector), entries found
// by secondary key, and the hint.
func (r *Resolver) gather(
	ctx context.Context,
	person domain.Person,
	records []domain.CorrelationRecord,
	hint *domain.Entry,
	now time.Time,
) (gathered, error) {
	attrs := r.fetchAttrs()
	g := gathered{entries: make(map[string]domain.Entry)}

	for userKey, group := range groupByUserKey(records) {
		record, err := validity.CurrentOrLatest(group, recordInterval, now)
		if err != nil {
			// Overlapping current records for one user-key: surface
			// instead of guessing. Orphans found so far still get
			// repaired.
			return g, derrors.Wrap(err, derrors.CodeAmbiguousValidity,
				"overlapping correlation records for user key "+userKey)
		}
		if record.Valid.Ended(now) {
			g.unverifiedKeys = append(g.unverifiedKeys, userKey)
			continue
		}
		entry, err := r.directory.ByUniqueID(ctx, userKey, attrs)
		if errors.Is(err, sentinel.ErrNotFound) {
			g.orphans = append(g.orphans, openRecords(group, now)...)
			continue
		}
		if err != nil {
			return g, derrors.Wrap(err, derrors.CodeInternal, "reading correlated entry")
		}
		g.liveTarget = true
		g.entries[entry.UniqueID] = entry
	}

	if person.SecondaryKey != "" {
		found, err := r.directory.SearchEqual(ctx, r.cfg.SecondaryKeyAttr, person.SecondaryKey, attrs)
		if err != nil {
			return g, derrors.Wrap(err, derrors.CodeInternal, "searching by secondary key")
		}
		for _, entry := range found {
			g.entries[entry.UniqueID] = entry
		}
	}

	if hint != nil {
		if _, ok := g.entries[hint.UniqueID]; !ok {
			g.entries[hint.UniqueID] = *hint
		}
	}

	return g, nil
}

// anyTargetAlive checks whether any of the given record targets still
// resolves in the directory. Only consulted for creation eligibility when
// no current record target and no secondary key exists.
func (r *Resolver) anyTargetAlive(ctx context.Context, userKeys []string) (bool, error) {
	for _, userKey := range userKeys {
		_, err := r.directory.ByUniqueID(ctx, userKey, nil)
		if errors.Is(err, sentinel.ErrNotFound) {
			continue
		}
		if err != nil {
			return false, derrors.Wrap(err, derrors.CodeInternal, "verifying correlation record target")
		}
		return true, nil
	}
	return false, nil
}

// repairOrphans end-dates every record whose target entry is gone, one
// concurrent task per record. A failed task is logged and never aborts the
// others: the next resolution will see the orphan again and retry.
func (r *Resolver) repairOrphans(ctx context.Context, orphans []domain.CorrelationRecord, now time.Time) {
	if len(orphans) == 0 {
		return
	}
	var g errgroup.Group
	for _, record := range orphans {
		g.Go(func() error {
			if err := r.registry.EndCorrelationRecord(ctx, record.ID, now); err != nil {
				r.logger.Error("ending orphaned correlation record failed",
					"record_id", record.ID,
					"user_key", record.UserKey,
					"error", err,
				)
				return nil
			}
			r.logger.Info("ended orphaned correlation record",
				"record_id", record.ID,
				"user_key", record.UserKey,
			)
			if r.observer != nil {
				r.observer.OrphanEnded()
			}
			return nil
		})
	}
	_ = g.Wait()
}

func (r *Resolver) discriminate(ctx context.Context, entries map[string]domain.Entry) (*domain.Entry, error) {
	if len(entries) == 0 {
		return nil, nil
	}

	candidates := make([]discriminator.Candidate, 0, len(entries))
	for _, entry := range entries {
		candidate := discriminator.Candidate{ID: entry.UniqueID}
		if r.cfg.Discriminator.Field != "" {
			if value, ok := entry.Attr(r.cfg.Discriminator.Field).One(); ok {
				candidate.Value = &value
			}
		}
		candidates = append(candidates, candidate)
	}

	winner, err := discriminator.Select(ctx, candidates, r.cfg.Discriminator, r.evaluator)
	if err != nil || winner == nil {
		return nil, err
	}
	entry := entries[winner.ID]
	return &entry, nil
}

func (r *Resolver) suggest(ctx context.Context, person domain.Person) (Suggestion, error) {
	nameParts := person.NameParts()
	user, err := r.generator.Username(ctx, nameParts, r.taken)
	if err != nil {
		return Suggestion{}, err
	}
	display, err := r.generator.DisplayName(ctx, nameParts, r.taken)
	if err != nil {
		return Suggestion{}, err
	}
	return Suggestion{Username: user, DisplayName: display}, nil
}

// Link records that the person now corresponds to the directory entry with
// the given unique id, valid from now on. Called by the create flow once the
// directory assigned the id.
func (r *Resolver) Link(ctx context.Context, person uuid.UUID, uniqueID string) error {
	now := r.now()
	record := domain.CorrelationRecord{
		ID:         uuid.New(),
		PersonUUID: person,
		UserKey:    uniqueID,
		Valid:      validity.Interval{Start: &now},
	}
	if err := r.registry.CreateCorrelationRecord(ctx, record); err != nil {
		return derrors.Wrap(err, derrors.CodeInternal, "creating correlation record")
	}
	r.logger.Info("created correlation record", "person", person, "user_key", uniqueID)
	return nil
}

func (r *Resolver) fetchAttrs() []string {
	attrs := make([]string, 0, 2)
	if r.cfg.Discriminator.Field != "" {
		attrs = append(attrs, r.cfg.Discriminator.Field)
	}
	if r.cfg.SecondaryKeyAttr != "" {
		attrs = append(attrs, r.cfg.SecondaryKeyAttr)
	}
	return attrs
}

func (r *Resolver) observe(err error, decision Decision, took time.Duration) {
	if r.observer == nil {
		return
	}
	outcome := outcomeError
	switch {
	case err == nil && decision.Use != nil:
		outcome = outcomeUse
	case err == nil:
		outcome = outcomeCreate
	case derrors.Is(err, derrors.CodeAmbiguousCandidate), derrors.Is(err, derrors.CodeAmbiguousValidity):
		outcome = outcomeAmbiguous
	case derrors.Is(err, derrors.CodeNoCorrelationKey):
		outcome = outcomeNoKey
	}
	r.observer.ObserveResolution(outcome, took)
}

func groupByUserKey(records []domain.CorrelationRecord) map[string][]domain.CorrelationRecord {
	groups := make(map[string][]domain.CorrelationRecord)
	for _, record := range records {
		groups[record.UserKey] = append(groups[record.UserKey], record)
	}
	return groups
}

// openRecords filters a record group down to the records still open at t;
// only those need end-dating when their target is gone.
func openRecords(records []domain.CorrelationRecord, t time.Time) []domain.CorrelationRecord {
	var open []domain.CorrelationRecord
	for _, record := range records {
		if !record.Valid.Ended(t) {
			open = append(open, record)
		}
	}
	return open
}

func recordInterval(r domain.CorrelationRecord) validity.Interval { return r.Valid }
