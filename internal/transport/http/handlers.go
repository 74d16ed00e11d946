// Package httptransport exposes the engine's admin surface: health,
// metrics, on-demand resolution and username previews.
package httptransport

import (
	"context"
	"log/slog"
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"

	"dirsync/internal/correlation"
	"dirsync/internal/domain"
	"dirsync/internal/events"
	"dirsync/internal/username"
	derrors "dirsync/pkg/domain-errors"
	"dirsync/pkg/platform/httputil"
)

// Registry is the person lookup the handlers need.
type Registry interface {
	PersonByUUID(ctx context.Context, id uuid.UUID) (domain.Person, error)
}

// Resolver runs one on-demand resolution.
type Resolver interface {
	Resolve(ctx context.Context, person domain.Person, hint *domain.Entry) (correlation.Decision, error)
}

// Publisher enqueues person events for the pipeline.
type Publisher interface {
	PublishJSON(ctx context.Context, topic, key string, payload any) error
}

type Handler struct {
	registry    Registry
	resolver    Resolver
	generator   *username.Generator
	taken       username.TakenFunc
	publisher   Publisher
	personTopic string
	logger      *slog.Logger
}

func NewHandler(
	registry Registry,
	resolver Resolver,
	generator *username.Generator,
	taken username.TakenFunc,
	publisher Publisher,
	personTopic string,
	logger *slog.Logger,
) *Handler {
	return &Handler{
		registry:    registry,
		resolver:    resolver,
		generator:   generator,
		taken:       taken,
		publisher:   publisher,
		personTopic: personTopic,
		logger:      logger,
	}
}

// Register mounts the admin endpoints on the router.
func (h *Handler) Register(r chi.Router) {
	r.Post("/persons/{uuid}/resolve", h.HandleResolve)
	r.Post("/persons/{uuid}/sync", h.HandleSync)
	r.Get("/usernames/preview", h.HandlePreview)
}

type resolveResponse struct {
	Decision    string `json:"decision"`
	UniqueID    string `json:"unique_id,omitempty"`
	DN          string `json:"dn,omitempty"`
	Username    string `json:"username,omitempty"`
	DisplayName string `json:"display_name,omitempty"`
}

// HandleResolve runs a resolution and reports the decision without acting on
// it. Orphaned records discovered along the way are still repaired; that is
// part of resolution, not of acting on the decision.
func (h *Handler) HandleResolve(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	personID, err := uuid.Parse(chi.URLParam(r, "uuid"))
	if err != nil {
		httputil.WriteError(w, derrors.New(derrors.CodeInvalidInput, "malformed person uuid"))
		return
	}

	person, err := h.registry.PersonByUUID(ctx, personID)
	if err != nil {
		httputil.WriteError(w, err)
		return
	}

	decision, err := h.resolver.Resolve(ctx, person, nil)
	if err != nil {
		h.logger.ErrorContext(ctx, "on-demand resolution failed",
			"person", personID,
			"subject", Subject(ctx),
			"error", err,
		)
		httputil.WriteError(w, err)
		return
	}

	response := resolveResponse{Decision: "use"}
	if decision.Use != nil {
		response.UniqueID = decision.Use.UniqueID
		response.DN = decision.Use.DN
	} else {
		response.Decision = "create"
		response.Username = decision.Create.Username
		response.DisplayName = decision.Create.DisplayName
	}
	httputil.WriteJSON(w, http.StatusOK, response)
}

// HandleSync enqueues a person event so the pipeline reconciles the person
// with the same code path as any registry change.
func (h *Handler) HandleSync(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	personID, err := uuid.Parse(chi.URLParam(r, "uuid"))
	if err != nil {
		httputil.WriteError(w, derrors.New(derrors.CodeInvalidInput, "malformed person uuid"))
		return
	}

	event := events.PersonEvent{PersonUUID: personID}
	if err := h.publisher.PublishJSON(ctx, h.personTopic, personID.String(), event); err != nil {
		h.logger.ErrorContext(ctx, "enqueueing sync failed", "person", personID, "error", err)
		httputil.WriteError(w, derrors.Wrap(err, derrors.CodeInternal, "enqueueing sync"))
		return
	}

	h.logger.InfoContext(ctx, "sync enqueued", "person", personID, "subject", Subject(ctx))
	httputil.WriteJSON(w, http.StatusAccepted, map[string]string{"status": "enqueued"})
}

type previewResponse struct {
	Username    string `json:"username"`
	DisplayName string `json:"display_name"`
}

// HandlePreview shows which identifiers would be generated for a name,
// without reserving anything.
func (h *Handler) HandlePreview(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	person := domain.Person{
		GivenName: r.URL.Query().Get("given_name"),
		Surname:   r.URL.Query().Get("surname"),
	}
	if person.GivenName == "" && person.Surname == "" {
		httputil.WriteError(w, derrors.New(derrors.CodeInvalidInput, "given_name or surname is required"))
		return
	}

	nameParts := person.NameParts()
	user, err := h.generator.Username(ctx, nameParts, h.taken)
	if err != nil {
		httputil.WriteError(w, err)
		return
	}
	display, err := h.generator.DisplayName(ctx, nameParts, h.taken)
	if err != nil {
		httputil.WriteError(w, err)
		return
	}
	httputil.WriteJSON(w, http.StatusOK, previewResponse{Username: user, DisplayName: display})
}
