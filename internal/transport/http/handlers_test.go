package httptransport

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"dirsync/internal/correlation"
	"dirsync/internal/domain"
	"dirsync/internal/platform/logger"
	"dirsync/internal/registry/store"
	"dirsync/internal/username"
	derrors "dirsync/pkg/domain-errors"
)

const signingKey = "test-signing-key"

type fakeResolver struct {
	decision correlation.Decision
	err      error
}

func (r *fakeResolver) Resolve(context.Context, domain.Person, *domain.Entry) (correlation.Decision, error) {
	return r.decision, r.err
}

type fakePublisher struct {
	topic   string
	key     string
	payload any
}

func (p *fakePublisher) PublishJSON(_ context.Context, topic, key string, payload any) error {
	p.topic = topic
	p.key = key
	p.payload = payload
	return nil
}

type testServer struct {
	*httptest.Server
	registry  *store.Memory
	resolver  *fakeResolver
	publisher *fakePublisher
}

func newTestServer(t *testing.T) *testServer {
	t.Helper()
	generator, err := username.NewGenerator(username.Policy{Patterns: []string{"FFFX", "LLLX"}})
	require.NoError(t, err)

	registry := store.NewMemory()
	resolver := &fakeResolver{}
	publisher := &fakePublisher{}
	log := logger.New("error")

	handler := NewHandler(
		registry, resolver, generator,
		username.TakenFuncOf(username.NewStaticSource()),
		publisher, "person-events", log,
	)
	router := NewRouter(handler, NewHMACValidator(signingKey), prometheus.NewRegistry(), log)

	server := httptest.NewServer(router)
	t.Cleanup(server.Close)
	return &testServer{Server: server, registry: registry, resolver: resolver, publisher: publisher}
}

func bearerToken(t *testing.T) string {
	t.Helper()
	token, err := jwt.NewWithClaims(jwt.SigningMethodHS256, jwt.MapClaims{"sub": "admin"}).
		SignedString([]byte(signingKey))
	require.NoError(t, err)
	return token
}

func doRequest(t *testing.T, server *testServer, method, path, token string) *http.Response {
	t.Helper()
	req, err := http.NewRequest(method, server.URL+path, nil)
	require.NoError(t, err)
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}
	resp, err := http.DefaultClient.Do(req)
	require.NoError(t, err)
	t.Cleanup(func() { resp.Body.Close() })
	return resp
}

func TestHealthzIsOpen(t *testing.T) {
	server := newTestServer(t)
	resp := doRequest(t, server, http.MethodGet, "/healthz", "")
	assert.Equal(t, http.StatusOK, resp.StatusCode)
}

func TestV1RequiresToken(t *testing.T) {
	server := newTestServer(t)

	resp := doRequest(t, server, http.MethodGet, "/v1/usernames/preview?surname=Smith", "")
	assert.Equal(t, http.StatusUnauthorized, resp.StatusCode)

	resp = doRequest(t, server, http.MethodGet, "/v1/usernames/preview?surname=Smith", "not-a-token")
	assert.Equal(t, http.StatusUnauthorized, resp.StatusCode)
}

func TestResolveUseDecision(t *testing.T) {
	server := newTestServer(t)
	person := domain.Person{UUID: uuid.New(), GivenName: "Aage", Surname: "Bach Klarskov"}
	require.NoError(t, server.registry.UpsertPerson(context.Background(), person))
	server.resolver.decision = correlation.Decision{Use: &domain.Entry{DN: "cn=abk", UniqueID: "uid-1"}}

	resp := doRequest(t, server, http.MethodPost, "/v1/persons/"+person.UUID.String()+"/resolve", bearerToken(t))
	require.Equal(t, http.StatusOK, resp.StatusCode)

	var body resolveResponse
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&body))
	assert.Equal(t, "use", body.Decision)
	assert.Equal(t, "uid-1", body.UniqueID)
	assert.Equal(t, "cn=abk", body.DN)
}

func TestResolveCreateDecision(t *testing.T) {
	server := newTestServer(t)
	person := domain.Person{UUID: uuid.New(), GivenName: "Aage", Surname: "Bach Klarskov"}
	require.NoError(t, server.registry.UpsertPerson(context.Background(), person))
	server.resolver.decision = correlation.Decision{
		Create: &correlation.Suggestion{Username: "aag2", DisplayName: "Aage Bach Klarskov"},
	}

	resp := doRequest(t, server, http.MethodPost, "/v1/persons/"+person.UUID.String()+"/resolve", bearerToken(t))
	require.Equal(t, http.StatusOK, resp.StatusCode)

	var body resolveResponse
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&body))
	assert.Equal(t, "create", body.Decision)
	assert.Equal(t, "aag2", body.Username)
}

func TestResolveUnknownPerson(t *testing.T) {
	server := newTestServer(t)
	resp := doRequest(t, server, http.MethodPost, "/v1/persons/"+uuid.NewString()+"/resolve", bearerToken(t))
	assert.Equal(t, http.StatusNotFound, resp.StatusCode)
}

func TestResolveMalformedUUID(t *testing.T) {
	server := newTestServer(t)
	resp := doRequest(t, server, http.MethodPost, "/v1/persons/banana/resolve", bearerToken(t))
	assert.Equal(t, http.StatusBadRequest, resp.StatusCode)
}

func TestResolveAmbiguousMapsToConflict(t *testing.T) {
	server := newTestServer(t)
	person := domain.Person{UUID: uuid.New()}
	require.NoError(t, server.registry.UpsertPerson(context.Background(), person))
	server.resolver.err = derrors.New(derrors.CodeAmbiguousCandidate, "two candidates")

	resp := doRequest(t, server, http.MethodPost, "/v1/persons/"+person.UUID.String()+"/resolve", bearerToken(t))
	assert.Equal(t, http.StatusConflict, resp.StatusCode)
}

func TestSyncEnqueuesPersonEvent(t *testing.T) {
	server := newTestServer(t)
	personID := uuid.New()

	resp := doRequest(t, server, http.MethodPost, "/v1/persons/"+personID.String()+"/sync", bearerToken(t))
	require.Equal(t, http.StatusAccepted, resp.StatusCode)

	assert.Equal(t, "person-events", server.publisher.topic)
	assert.Equal(t, personID.String(), server.publisher.key)
}

func TestUsernamePreview(t *testing.T) {
	server := newTestServer(t)

	resp := doRequest(t, server, http.MethodGet,
		"/v1/usernames/preview?given_name=Aage&surname=Bach+Klarskov", bearerToken(t))
	require.Equal(t, http.StatusOK, resp.StatusCode)

	var body previewResponse
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&body))
	assert.Equal(t, "aag2", body.Username)
	assert.Equal(t, "Aage Bach Klarskov", body.DisplayName)
}
