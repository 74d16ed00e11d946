package events

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"

	"github.com/go-ldap/ldap/v3"
	"github.com/google/uuid"
	"github.com/twmb/franz-go/pkg/kgo"

	"dirsync/internal/correlation"
	"dirsync/internal/domain"
	"dirsync/internal/platform/kafka"
	derrors "dirsync/pkg/domain-errors"
	"dirsync/pkg/platform/keylock"
	"dirsync/pkg/platform/sentinel"
)

// Registry is the person lookup surface the handlers need.
type Registry interface {
	PersonByUUID(ctx context.Context, id uuid.UUID) (domain.Person, error)
	PersonUUIDsBySecondaryKey(ctx context.Context, key string) ([]uuid.UUID, error)
	PersonUUIDsByCorrelationUserKey(ctx context.Context, userKey string) ([]uuid.UUID, error)
}

// Directory is the directory surface the handlers need: reads for entry
// events and writes for the create flow.
type Directory interface {
	ByUniqueID(ctx context.Context, uniqueID string, attrs []string) (domain.Entry, error)
	ByDN(ctx context.Context, dn string, attrs []string) (domain.Entry, error)
	Add(ctx context.Context, dn string, attributes map[string][]string) error
}

// Resolver is the decision engine the handlers drive.
type Resolver interface {
	Resolve(ctx context.Context, person domain.Person, hint *domain.Entry) (correlation.Decision, error)
	Link(ctx context.Context, person uuid.UUID, uniqueID string) error
}

// Observer counts create-flow outcomes.
type Observer interface {
	EntryCreated()
}

// HandlersConfig carries the create-flow policy and the attributes entry
// handling reads.
type HandlersConfig struct {
	// CreateOU is the subtree new entries are created under.
	CreateOU string
	// ObjectClasses stamped on created entries.
	ObjectClasses []string
	// UsernameAttr receives the generated username, e.g. uid.
	UsernameAttr string
	// SecondaryKeyAttr mirrors the person's secondary key onto created
	// entries and matches entry events back to persons.
	SecondaryKeyAttr string
	// ReadAttrs are fetched when an entry event is re-read.
	ReadAttrs []string
}

type Handlers struct {
	registry  Registry
	directory Directory
	resolver  Resolver
	locks     *keylock.KeyLock
	cfg       HandlersConfig
	logger    *slog.Logger
	observer  Observer
}

type HandlersOption func(*Handlers)

func WithLogger(logger *slog.Logger) HandlersOption {
	return func(h *Handlers) { h.logger = logger }
}

func WithObserver(observer Observer) HandlersOption {
	return func(h *Handlers) { h.observer = observer }
}

func NewHandlers(registry Registry, directory Directory, resolver Resolver, cfg HandlersConfig, opts ...HandlersOption) (*Handlers, error) {
	if registry == nil || directory == nil || resolver == nil {
		return nil, errors.New("registry, directory and resolver are required")
	}
	if cfg.UsernameAttr == "" {
		cfg.UsernameAttr = "uid"
	}
	h := &Handlers{
		registry:  registry,
		directory: directory,
		resolver:  resolver,
		locks:     keylock.New(),
		cfg:       cfg,
		logger:    slog.Default(),
	}
	for _, opt := range opts {
		opt(h)
	}
	return h, nil
}

// Route dispatches consumed records to the topic's handler.
func (h *Handlers) Route(personTopic, entryTopic string) kafka.Handler {
	return func(ctx context.Context, record *kgo.Record) error {
		switch record.Topic {
		case personTopic:
			var event PersonEvent
			if err := json.Unmarshal(record.Value, &event); err != nil {
				return derrors.Wrap(err, derrors.CodeInvalidInput, "decoding person event")
			}
			return h.HandlePerson(ctx, event)
		case entryTopic:
			var event EntryEvent
			if err := json.Unmarshal(record.Value, &event); err != nil {
				return derrors.Wrap(err, derrors.CodeInvalidInput, "decoding entry event")
			}
			return h.HandleEntry(ctx, event)
		default:
			return derrors.Newf(derrors.CodeInvalidInput, "no handler for topic %s", record.Topic)
		}
	}
}

// HandlePerson reconciles one registry person: resolve, and create a
// directory entry when the decision says so.
func (h *Handlers) HandlePerson(ctx context.Context, event PersonEvent) error {
	if event.PersonUUID == uuid.Nil {
		return derrors.New(derrors.CodeInvalidInput, "person event without a uuid")
	}
	unlock := h.locks.Lock(event.PersonUUID.String())
	defer unlock()
	return h.reconcile(ctx, event.PersonUUID, nil)
}

// HandleEntry reconciles every person an entry event may concern: persons
// holding a correlation record for the entry, plus persons sharing the
// entry's secondary key value. A deleted entry still triggers resolution for
// its record holders so the orphaned records get end-dated.
func (h *Handlers) HandleEntry(ctx context.Context, event EntryEvent) error {
	if event.UniqueID == "" {
		return derrors.New(derrors.CodeInvalidInput, "entry event without a unique id")
	}

	persons := make(map[uuid.UUID]struct{})
	ids, err := h.registry.PersonUUIDsByCorrelationUserKey(ctx, event.UniqueID)
	if err != nil {
		return derrors.Wrap(err, derrors.CodeInternal, "listing record holders")
	}
	for _, id := range ids {
		persons[id] = struct{}{}
	}

	var hint *domain.Entry
	entry, err := h.directory.ByUniqueID(ctx, event.UniqueID, h.cfg.ReadAttrs)
	switch {
	case errors.Is(err, sentinel.ErrNotFound):
		// Deleted entry; record holders above still get reconciled.
	case err != nil:
		return derrors.Wrap(err, derrors.CodeInternal, "reading changed entry")
	default:
		hint = &entry
		if h.cfg.SecondaryKeyAttr != "" {
			if key, ok := entry.Attr(h.cfg.SecondaryKeyAttr).One(); ok && key != "" {
				ids, err := h.registry.PersonUUIDsBySecondaryKey(ctx, key)
				if err != nil {
					return derrors.Wrap(err, derrors.CodeInternal, "matching entry by secondary key")
				}
				for _, id := range ids {
					persons[id] = struct{}{}
				}
			}
		}
	}

	if len(persons) == 0 {
		h.logger.Info("entry event matched no person", "unique_id", event.UniqueID, "dn", event.DN)
		return nil
	}

	// A retryable failure for any person requeues the whole event; the
	// other persons are reconciled again on redelivery, which is safe
	// because resolution is idempotent.
	var retry error
	for id := range persons {
		if err := h.reconcilePerson(ctx, id, hint); err != nil {
			if derrors.Retryable(err) {
				retry = err
				continue
			}
			h.logger.Error("reconciliation failed terminally",
				"person", id,
				"unique_id", event.UniqueID,
				"error", err,
			)
		}
	}
	return retry
}

func (h *Handlers) reconcilePerson(ctx context.Context, person uuid.UUID, hint *domain.Entry) error {
	unlock := h.locks.Lock(person.String())
	defer unlock()
	return h.reconcile(ctx, person, hint)
}

// reconcile must be called with the person's lock held.
func (h *Handlers) reconcile(ctx context.Context, personID uuid.UUID, hint *domain.Entry) error {
	person, err := h.registry.PersonByUUID(ctx, personID)
	if errors.Is(err, sentinel.ErrNotFound) {
		h.logger.Info("person no longer in registry", "person", personID)
		return nil
	}
	if err != nil {
		return derrors.Wrap(err, derrors.CodeInternal, "reading person")
	}

	decision, err := h.resolver.Resolve(ctx, person, hint)
	if err != nil {
		return err
	}
	if decision.Use != nil {
		h.logger.Info("person correlated",
			"person", personID,
			"unique_id", decision.Use.UniqueID,
			"dn", decision.Use.DN,
		)
		return nil
	}
	return h.create(ctx, person, *decision.Create)
}

// create adds the entry the resolver asked for and links it back to the
// person. The unique id is server-assigned, so the entry is read back by DN
// before linking.
func (h *Handlers) create(ctx context.Context, person domain.Person, suggestion correlation.Suggestion) error {
	if h.cfg.CreateOU == "" {
		return derrors.New(derrors.CodeInvalidInput, "entry creation is not configured")
	}

	dn := fmt.Sprintf("cn=%s,%s", ldap.EscapeDN(suggestion.DisplayName), h.cfg.CreateOU)
	surname := person.Surname
	if surname == "" {
		surname = suggestion.DisplayName
	}
	attributes := map[string][]string{
		"objectClass":      h.cfg.ObjectClasses,
		"cn":               {suggestion.DisplayName},
		"sn":               {surname},
		h.cfg.UsernameAttr: {suggestion.Username},
	}
	if person.GivenName != "" {
		attributes["givenName"] = []string{person.GivenName}
	}
	if person.SecondaryKey != "" && h.cfg.SecondaryKeyAttr != "" {
		attributes[h.cfg.SecondaryKeyAttr] = []string{person.SecondaryKey}
	}

	if err := h.directory.Add(ctx, dn, attributes); err != nil {
		// A conflict means someone else took the DN since the
		// suggestion was minted; a retry re-resolves and either finds
		// the entry or suggests a fresh name.
		return derrors.Wrap(err, derrors.CodeInternal, "creating directory entry")
	}

	created, err := h.directory.ByDN(ctx, dn, nil)
	if err != nil {
		return derrors.Wrap(err, derrors.CodeInternal, "reading back created entry")
	}
	if err := h.resolver.Link(ctx, person.UUID, created.UniqueID); err != nil {
		return err
	}
	if h.observer != nil {
		h.observer.EntryCreated()
	}
	h.logger.Info("created directory entry for person",
		"person", person.UUID,
		"dn", dn,
		"unique_id", created.UniqueID,
		"username", suggestion.Username,
	)
	return nil
}
