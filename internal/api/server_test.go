package api_test

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
	"go.uber.org/zap/zaptest"

	"github.com/jaxxstorm/smokestack/internal/admission"
	"github.com/jaxxstorm/smokestack/internal/api"
	"github.com/jaxxstorm/smokestack/internal/api/models"
	"github.com/jaxxstorm/smokestack/internal/config"
	"github.com/jaxxstorm/smokestack/internal/engine"
	"github.com/jaxxstorm/smokestack/internal/eventbus"
	"github.com/jaxxstorm/smokestack/internal/history/jsonl"
	"github.com/jaxxstorm/smokestack/internal/persistence"
	"github.com/jaxxstorm/smokestack/internal/store"
)

func newTestServer(t *testing.T) *api.Server {
	t.Helper()
	logger := zaptest.NewLogger(t)

	s := store.New()
	adm := admission.New(s, "admins")
	bus := eventbus.New(s, nil, logger)

	h, err := jsonl.Open(filepath.Join(t.TempDir(), "history.jsonl"), logger)
	require.NoError(t, err)
	t.Cleanup(func() { _ = h.Close() })

	journal := persistence.New(filepath.Join(t.TempDir(), "snapshot.json"), logger)
	eng := engine.New(s, adm, h, bus, journal, logger)

	ctx, cancel := context.WithCancel(context.Background())
	t.Cleanup(cancel)
	go eng.Run(ctx)

	cfg := &config.HTTPConfig{Host: "localhost", Port: 8080}
	return api.New(cfg, nil, eng, logger)
}

func doJSON(t *testing.T, srv *api.Server, method, path, actor string, body interface{}) *httptest.ResponseRecorder {
	t.Helper()
	var reader *bytes.Reader
	if body != nil {
		data, err := json.Marshal(body)
		require.NoError(t, err)
		reader = bytes.NewReader(data)
	} else {
		reader = bytes.NewReader(nil)
	}
	req := httptest.NewRequest(method, path, reader)
	req.Header.Set("Content-Type", "application/json")
	if actor != "" {
		req.Header.Set("X-Smokestack-Actor", actor)
	}
	rec := httptest.NewRecorder()
	srv.Router().ServeHTTP(rec, req)
	return rec
}

func createComponent(t *testing.T, srv *api.Server, name string) {
	t.Helper()
	rec := doJSON(t, srv, http.MethodPost, "/v1/components", "alice", map[string]interface{}{"name": name})
	require.Equal(t, http.StatusCreated, rec.Code, rec.Body.String())
}

func TestHealthEndpoint(t *testing.T) {
	srv := newTestServer(t)

	rec := doJSON(t, srv, http.MethodGet, "/health", "", nil)
	require.Equal(t, http.StatusOK, rec.Code)

	var body map[string]interface{}
	require.NoError(t, json.NewDecoder(rec.Body).Decode(&body))
	require.Equal(t, "ok", body["status"])
}

func TestReadyEndpoint(t *testing.T) {
	srv := newTestServer(t)

	rec := doJSON(t, srv, http.MethodGet, "/ready", "", nil)
	require.Equal(t, http.StatusOK, rec.Code)

	var body map[string]interface{}
	require.NoError(t, json.NewDecoder(rec.Body).Decode(&body))
	require.Equal(t, "ready", body["status"])
}

func TestCreateAndGetOperation(t *testing.T) {
	srv := newTestServer(t)
	createComponent(t, srv, "foo")

	rec := doJSON(t, srv, http.MethodPost, "/v1/operations", "alice", map[string]interface{}{
		"title":      "kernel update",
		"components": []string{"foo"},
	})
	require.Equal(t, http.StatusCreated, rec.Code, rec.Body.String())

	var created models.OperationResponse
	require.NoError(t, json.NewDecoder(rec.Body).Decode(&created))
	require.Equal(t, "kernel update", created.Title)
	require.Equal(t, "planned", string(created.Status))
	require.Contains(t, created.Operators, "alice")

	rec = doJSON(t, srv, http.MethodGet, fmt.Sprintf("/v1/operations/%d", created.ID), "", nil)
	require.Equal(t, http.StatusOK, rec.Code)
}

func TestCreateOperationRejectsUnknownFields(t *testing.T) {
	srv := newTestServer(t)

	rec := doJSON(t, srv, http.MethodPost, "/v1/operations", "alice", map[string]interface{}{
		"title": "typo test",
		"lokcs": []string{"foo"},
	})
	require.Equal(t, http.StatusBadRequest, rec.Code)

	var resp models.ErrorResponse
	require.NoError(t, json.NewDecoder(rec.Body).Decode(&resp))
	require.Equal(t, "invalid_input", resp.Error)
}

func TestCreateOperationFromYAML(t *testing.T) {
	srv := newTestServer(t)
	createComponent(t, srv, "foo")

	body := "title: db migration\ncomponents:\n  - foo\n"
	req := httptest.NewRequest(http.MethodPost, "/v1/operations", strings.NewReader(body))
	req.Header.Set("Content-Type", "application/yaml")
	req.Header.Set("X-Smokestack-Actor", "alice")
	rec := httptest.NewRecorder()
	srv.Router().ServeHTTP(rec, req)
	require.Equal(t, http.StatusCreated, rec.Code, rec.Body.String())

	// Unknown YAML fields are rejected too.
	bad := "title: db migration\nlokcs: [foo]\n"
	req = httptest.NewRequest(http.MethodPost, "/v1/operations", strings.NewReader(bad))
	req.Header.Set("Content-Type", "application/yaml")
	req.Header.Set("X-Smokestack-Actor", "alice")
	rec = httptest.NewRecorder()
	srv.Router().ServeHTTP(rec, req)
	require.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestTransitionHappyPath(t *testing.T) {
	srv := newTestServer(t)
	createComponent(t, srv, "foo")

	rec := doJSON(t, srv, http.MethodPost, "/v1/operations", "alice", map[string]interface{}{
		"title": "op", "components": []string{"foo"},
	})
	require.Equal(t, http.StatusCreated, rec.Code)
	var op models.OperationResponse
	require.NoError(t, json.NewDecoder(rec.Body).Decode(&op))

	rec = doJSON(t, srv, http.MethodPost, fmt.Sprintf("/v1/operations/%d/transition", op.ID), "alice",
		map[string]interface{}{"to": "in_progress"})
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	require.NoError(t, json.NewDecoder(rec.Body).Decode(&op))
	require.Equal(t, "in_progress", string(op.Status))
	require.NotNil(t, op.StartsAt)

	rec = doJSON(t, srv, http.MethodPost, fmt.Sprintf("/v1/operations/%d/transition", op.ID), "alice",
		map[string]interface{}{"to": "completed", "note": "all good"})
	require.Equal(t, http.StatusOK, rec.Code)
	require.NoError(t, json.NewDecoder(rec.Body).Decode(&op))
	require.Equal(t, "completed", string(op.Status))
	require.NotNil(t, op.EndsAt)

	// History carries both transitions, newest first.
	rec = doJSON(t, srv, http.MethodGet, fmt.Sprintf("/v1/operations/%d/history", op.ID), "", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	var hist struct {
		Records []models.HistoryRecordResponse `json:"records"`
		Total   int                            `json:"total"`
	}
	require.NoError(t, json.NewDecoder(rec.Body).Decode(&hist))
	require.Equal(t, 2, hist.Total)
	require.Equal(t, "completed", string(hist.Records[0].To))
	require.Equal(t, "all good", hist.Records[0].Note)
}

func TestInvalidTransitionIsConflict(t *testing.T) {
	srv := newTestServer(t)
	createComponent(t, srv, "foo")

	rec := doJSON(t, srv, http.MethodPost, "/v1/operations", "alice", map[string]interface{}{
		"title": "op", "components": []string{"foo"},
	})
	var op models.OperationResponse
	require.NoError(t, json.NewDecoder(rec.Body).Decode(&op))

	rec = doJSON(t, srv, http.MethodPost, fmt.Sprintf("/v1/operations/%d/transition", op.ID), "alice",
		map[string]interface{}{"to": "completed"})
	require.Equal(t, http.StatusConflict, rec.Code)

	var resp models.ErrorResponse
	require.NoError(t, json.NewDecoder(rec.Body).Decode(&resp))
	require.Equal(t, "invalid_transition", resp.Error)
}

func TestLockConflictSurfacesBlockingOperation(t *testing.T) {
	srv := newTestServer(t)
	createComponent(t, srv, "foo")
	createComponent(t, srv, "bar")

	rec := doJSON(t, srv, http.MethodPost, "/v1/operations", "alice", map[string]interface{}{
		"title": "locker", "components": []string{"foo", "bar"}, "locks": []string{"bar"},
	})
	var locker models.OperationResponse
	require.NoError(t, json.NewDecoder(rec.Body).Decode(&locker))
	rec = doJSON(t, srv, http.MethodPost, fmt.Sprintf("/v1/operations/%d/transition", locker.ID), "alice",
		map[string]interface{}{"to": "in_progress"})
	require.Equal(t, http.StatusOK, rec.Code)

	rec = doJSON(t, srv, http.MethodPost, "/v1/operations", "bob", map[string]interface{}{
		"title": "blocked", "components": []string{"bar"},
	})
	var blocked models.OperationResponse
	require.NoError(t, json.NewDecoder(rec.Body).Decode(&blocked))

	rec = doJSON(t, srv, http.MethodPost, fmt.Sprintf("/v1/operations/%d/transition", blocked.ID), "bob",
		map[string]interface{}{"to": "in_progress"})
	require.Equal(t, http.StatusConflict, rec.Code)

	var resp models.ErrorResponse
	require.NoError(t, json.NewDecoder(rec.Body).Decode(&resp))
	require.Equal(t, "lock_conflict", resp.Error)
}

func TestEditVersionConflict(t *testing.T) {
	srv := newTestServer(t)
	createComponent(t, srv, "foo")
	// Edits check that every operator is a registered user.
	rec := doJSON(t, srv, http.MethodPut, "/v1/users/alice", "alice", map[string]interface{}{"kind": "human"})
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())

	rec = doJSON(t, srv, http.MethodPost, "/v1/operations", "alice", map[string]interface{}{
		"title": "op", "components": []string{"foo"},
	})
	var op models.OperationResponse
	require.NoError(t, json.NewDecoder(rec.Body).Decode(&op))

	stale := op.Version + 7
	rec = doJSON(t, srv, http.MethodPatch, fmt.Sprintf("/v1/operations/%d", op.ID), "alice",
		map[string]interface{}{"purpose": "late edit", "version": stale})
	require.Equal(t, http.StatusConflict, rec.Code)

	rec = doJSON(t, srv, http.MethodPatch, fmt.Sprintf("/v1/operations/%d", op.ID), "alice",
		map[string]interface{}{"purpose": "on time", "version": op.Version})
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
}

func TestApproveEndpointIsIdempotent(t *testing.T) {
	srv := newTestServer(t)
	createComponent(t, srv, "foo")

	rec := doJSON(t, srv, http.MethodPost, "/v1/operations", "alice", map[string]interface{}{
		"title": "op", "components": []string{"foo"},
	})
	var op models.OperationResponse
	require.NoError(t, json.NewDecoder(rec.Body).Decode(&op))

	for i := 0; i < 3; i++ {
		rec = doJSON(t, srv, http.MethodPost, fmt.Sprintf("/v1/operations/%d/approve", op.ID), "bob", nil)
		require.Equal(t, http.StatusOK, rec.Code)
	}
	require.NoError(t, json.NewDecoder(rec.Body).Decode(&op))
	require.Equal(t, []string{"bob"}, op.ApprovedBy)
}

func TestListOperationsFilters(t *testing.T) {
	srv := newTestServer(t)
	createComponent(t, srv, "foo")
	createComponent(t, srv, "bar")

	doJSON(t, srv, http.MethodPost, "/v1/operations", "alice", map[string]interface{}{
		"title": "on foo", "components": []string{"foo"},
	})
	doJSON(t, srv, http.MethodPost, "/v1/operations", "bob", map[string]interface{}{
		"title": "on bar", "components": []string{"bar"},
	})

	rec := doJSON(t, srv, http.MethodGet, "/v1/operations?component=foo", "", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	var list models.ListOperationsResponse
	require.NoError(t, json.NewDecoder(rec.Body).Decode(&list))
	require.Equal(t, 1, list.Total)
	require.Equal(t, "on foo", list.Operations[0].Title)

	rec = doJSON(t, srv, http.MethodGet, "/v1/operations?mine=true", "bob", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	list = models.ListOperationsResponse{}
	require.NoError(t, json.NewDecoder(rec.Body).Decode(&list))
	require.Equal(t, 1, list.Total)
	require.Equal(t, "on bar", list.Operations[0].Title)

	rec = doJSON(t, srv, http.MethodGet, "/v1/operations?status=planned", "", nil)
	list = models.ListOperationsResponse{}
	require.NoError(t, json.NewDecoder(rec.Body).Decode(&list))
	require.Equal(t, 2, list.Total)
}

func TestSubscriptionLifecycle(t *testing.T) {
	srv := newTestServer(t)
	createComponent(t, srv, "foo")

	sub := map[string]interface{}{"selector": map[string]interface{}{"kind": "component", "value": "foo"}}
	rec := doJSON(t, srv, http.MethodPost, "/v1/subscriptions", "alice", sub)
	require.Equal(t, http.StatusCreated, rec.Code, rec.Body.String())

	// Idempotent: adding the same subscription twice keeps one.
	rec = doJSON(t, srv, http.MethodPost, "/v1/subscriptions", "alice", sub)
	require.Equal(t, http.StatusCreated, rec.Code)

	rec = doJSON(t, srv, http.MethodGet, "/v1/subscriptions", "alice", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	var listing struct {
		Total int `json:"total"`
	}
	require.NoError(t, json.NewDecoder(rec.Body).Decode(&listing))
	require.Equal(t, 1, listing.Total)

	rec = doJSON(t, srv, http.MethodDelete, "/v1/subscriptions", "alice", sub)
	require.Equal(t, http.StatusNoContent, rec.Code)

	rec = doJSON(t, srv, http.MethodGet, "/v1/subscriptions", "alice", nil)
	require.NoError(t, json.NewDecoder(rec.Body).Decode(&listing))
	require.Equal(t, 0, listing.Total)
}

func TestDeleteComponentBlockedByNonTerminalOperation(t *testing.T) {
	srv := newTestServer(t)
	createComponent(t, srv, "foo")

	rec := doJSON(t, srv, http.MethodPost, "/v1/operations", "alice", map[string]interface{}{
		"title": "op", "components": []string{"foo"},
	})
	var op models.OperationResponse
	require.NoError(t, json.NewDecoder(rec.Body).Decode(&op))

	rec = doJSON(t, srv, http.MethodDelete, "/v1/components/foo", "alice", nil)
	require.Equal(t, http.StatusConflict, rec.Code)

	rec = doJSON(t, srv, http.MethodPost, fmt.Sprintf("/v1/operations/%d/transition", op.ID), "alice",
		map[string]interface{}{"to": "canceled"})
	require.Equal(t, http.StatusOK, rec.Code)

	rec = doJSON(t, srv, http.MethodDelete, "/v1/components/foo", "alice", nil)
	require.Equal(t, http.StatusNoContent, rec.Code)
}

func TestExportDescriptionRoundTrips(t *testing.T) {
	srv := newTestServer(t)
	createComponent(t, srv, "foo")

	starts := time.Now().Add(time.Hour).UTC().Truncate(time.Second).Format(time.RFC3339)
	rec := doJSON(t, srv, http.MethodPost, "/v1/operations", "alice", map[string]interface{}{
		"title": "scheduled", "components": []string{"foo"}, "starts_at": starts,
	})
	var op models.OperationResponse
	require.NoError(t, json.NewDecoder(rec.Body).Decode(&op))

	rec = doJSON(t, srv, http.MethodGet, fmt.Sprintf("/v1/operations/%d/description.yaml", op.ID), "", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	require.Contains(t, rec.Header().Get("Content-Type"), "yaml")
	require.Contains(t, rec.Body.String(), "title: scheduled")
}

func TestNotesHTMLRendersMarkdown(t *testing.T) {
	srv := newTestServer(t)
	createComponent(t, srv, "foo")

	rec := doJSON(t, srv, http.MethodPost, "/v1/operations", "alice", map[string]interface{}{
		"title": "op", "purpose": "update **everything**", "components": []string{"foo"},
	})
	var op models.OperationResponse
	require.NoError(t, json.NewDecoder(rec.Body).Decode(&op))

	rec = doJSON(t, srv, http.MethodPost, fmt.Sprintf("/v1/operations/%d/comments", op.ID), "bob",
		map[string]interface{}{"body": "looks *fine* to me"})
	require.Equal(t, http.StatusCreated, rec.Code, rec.Body.String())

	rec = doJSON(t, srv, http.MethodGet, fmt.Sprintf("/v1/operations/%d/notes.html", op.ID), "", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	require.Contains(t, rec.Header().Get("Content-Type"), "text/html")
	require.Contains(t, rec.Body.String(), "<strong>everything</strong>")
	require.Contains(t, rec.Body.String(), "<em>fine</em>")
}
