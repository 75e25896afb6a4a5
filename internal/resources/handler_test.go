package resources

import (
	"context"
	"encoding/json"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	miniredis "github.com/alicebob/miniredis/v2"
	"github.com/go-chi/chi/v5"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/leofleet/fleet-console/internal/fleetapi"
	"github.com/leofleet/fleet-console/internal/platform/cache"
	"github.com/leofleet/fleet-console/internal/rbac"
	"github.com/leofleet/fleet-console/internal/shared"
)

type memoryStore struct {
	mu      sync.Mutex
	records map[fleetapi.Collection][]fleetapi.Record
	listErr error
	lastOpt fleetapi.ListOptions
	deleted []string
}

func (m *memoryStore) List(ctx context.Context, c fleetapi.Collection, opts fleetapi.ListOptions) ([]fleetapi.Record, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.lastOpt = opts
	if m.listErr != nil {
		return nil, m.listErr
	}
	return m.records[c], nil
}

func (m *memoryStore) Get(ctx context.Context, c fleetapi.Collection, id string) (fleetapi.Record, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, rec := range m.records[c] {
		if rec["name"] == id {
			return rec, nil
		}
	}
	return nil, &fleetapi.APIError{Status: http.StatusNotFound, Message: string(c) + " " + id + " not found"}
}

func (m *memoryStore) Create(ctx context.Context, c fleetapi.Collection, rec fleetapi.Record) (fleetapi.Record, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if rec["plate"] == "" {
		return nil, &fleetapi.APIError{Status: http.StatusUnprocessableEntity, Message: "plate is required"}
	}
	rec["name"] = "V-NEW"
	m.records[c] = append(m.records[c], rec)
	return rec, nil
}

func (m *memoryStore) Update(ctx context.Context, c fleetapi.Collection, id string, rec fleetapi.Record) (fleetapi.Record, error) {
	rec["name"] = id
	return rec, nil
}

func (m *memoryStore) Delete(ctx context.Context, c fleetapi.Collection, id string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.deleted = append(m.deleted, id)
	return nil
}

func newTestRouter(t *testing.T, store *memoryStore) (http.Handler, *miniredis.Miniredis) {
	t.Helper()
	mr := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { _ = client.Close() })

	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	svc := NewService(store, cache.NewCache(client, "fleet"), time.Hour, logger)
	h := NewHandler(logger, svc, rbac.Middleware{Evaluator: rbac.NewEvaluator(nil), Logger: logger})
	r := chi.NewRouter()
	h.MountRoutes(r)
	return r, mr
}

func as(p *rbac.Profile, req *http.Request) *http.Request {
	if p == nil {
		return req
	}
	return req.WithContext(rbac.ContextWithProfile(req.Context(), p))
}

func do(h http.Handler, req *http.Request) *httptest.ResponseRecorder {
	rr := httptest.NewRecorder()
	h.ServeHTTP(rr, req)
	return rr
}

var fleetReader = &rbac.Profile{ID: "ops", Permissions: rbac.Permissions{rbac.ModuleVehicle: {rbac.ActionRead}}}

func TestListRequiresReadPermission(t *testing.T) {
	store := &memoryStore{records: map[fleetapi.Collection][]fleetapi.Record{
		fleetapi.CollectionVehicle: {{"name": "V-1", "plate": "KDA 001A"}},
	}}
	router, _ := newTestRouter(t, store)

	rr := do(router, httptest.NewRequest(http.MethodGet, "/vehicles", nil))
	assert.Equal(t, http.StatusUnauthorized, rr.Code)

	rr = do(router, as(fleetReader, httptest.NewRequest(http.MethodGet, "/drivers", nil)))
	assert.Equal(t, http.StatusForbidden, rr.Code)

	rr = do(router, as(fleetReader, httptest.NewRequest(http.MethodGet, "/vehicles?page=2&per_page=10", nil)))
	require.Equal(t, http.StatusOK, rr.Code)
	var page Page
	require.NoError(t, json.Unmarshal(rr.Body.Bytes(), &page))
	assert.Len(t, page.Data, 1)
	assert.Equal(t, 2, page.Page)
	assert.Equal(t, 10, store.lastOpt.Limit)
	assert.Equal(t, 10, store.lastOpt.Offset)
}

func TestListRejectsBadFilters(t *testing.T) {
	router, _ := newTestRouter(t, &memoryStore{})
	rr := do(router, as(fleetReader, httptest.NewRequest(http.MethodGet, "/vehicles?filters=nope", nil)))
	assert.Equal(t, http.StatusBadRequest, rr.Code)
}

func TestWritesNeedMatchingAction(t *testing.T) {
	store := &memoryStore{records: map[fleetapi.Collection][]fleetapi.Record{}}
	router, _ := newTestRouter(t, store)

	body := `{"plate":"KDB 100B"}`
	rr := do(router, as(fleetReader, httptest.NewRequest(http.MethodPost, "/vehicles", strings.NewReader(body))))
	assert.Equal(t, http.StatusForbidden, rr.Code)

	creator := &rbac.Profile{ID: "fm", Permissions: rbac.Permissions{rbac.ModuleVehicle: {rbac.ActionCreate}}}
	rr = do(router, as(creator, httptest.NewRequest(http.MethodPost, "/vehicles", strings.NewReader(body))))
	require.Equal(t, http.StatusCreated, rr.Code)
	assert.Contains(t, rr.Body.String(), `"V-NEW"`)

	rr = do(router, as(creator, httptest.NewRequest(http.MethodPut, "/vehicles/V-NEW", strings.NewReader(body))))
	assert.Equal(t, http.StatusForbidden, rr.Code)

	admin := &rbac.Profile{ID: "root", Role: rbac.RoleAdmin}
	rr = do(router, as(admin, httptest.NewRequest(http.MethodDelete, "/vehicles/V-NEW", nil)))
	assert.Equal(t, http.StatusNoContent, rr.Code)
	assert.Equal(t, []string{"V-NEW"}, store.deleted)
}

func TestUpstreamErrorsKeepStatusAndMessage(t *testing.T) {
	store := &memoryStore{records: map[fleetapi.Collection][]fleetapi.Record{}}
	router, _ := newTestRouter(t, store)
	admin := &rbac.Profile{ID: "root", Role: rbac.RoleAdmin}

	rr := do(router, as(admin, httptest.NewRequest(http.MethodPost, "/vehicles", strings.NewReader(`{"plate":""}`))))
	require.Equal(t, http.StatusUnprocessableEntity, rr.Code)
	assert.Contains(t, rr.Body.String(), "plate is required")

	rr = do(router, as(admin, httptest.NewRequest(http.MethodGet, "/vehicles/V-404", nil)))
	assert.Equal(t, http.StatusNotFound, rr.Code)
}

func TestReferenceListFallsBackToCache(t *testing.T) {
	store := &memoryStore{records: map[fleetapi.Collection][]fleetapi.Record{
		fleetapi.CollectionVehicleMake: {{"name": "Toyota"}, {"name": "Isuzu"}},
	}}
	router, mr := newTestRouter(t, store)
	anyone := &rbac.Profile{ID: "driver"}

	rr := do(router, httptest.NewRequest(http.MethodGet, "/vehicle-makes", nil))
	assert.Equal(t, http.StatusUnauthorized, rr.Code)

	rr = do(router, as(anyone, httptest.NewRequest(http.MethodGet, "/vehicle-makes", nil)))
	require.Equal(t, http.StatusOK, rr.Code)
	assert.True(t, mr.Exists("fleet:reference:vehicle-makes"))
	assert.Zero(t, store.lastOpt.Limit)

	store.mu.Lock()
	store.listErr = &fleetapi.APIError{Status: http.StatusBadGateway, Message: "proxy error"}
	store.mu.Unlock()

	rr = do(router, as(anyone, httptest.NewRequest(http.MethodGet, "/vehicle-makes", nil)))
	require.Equal(t, http.StatusOK, rr.Code)
	var page Page
	require.NoError(t, json.Unmarshal(rr.Body.Bytes(), &page))
	assert.True(t, page.Stale)
	assert.Len(t, page.Data, 2)

	rr = do(router, as(anyone, httptest.NewRequest(http.MethodGet, "/departments", nil)))
	assert.Equal(t, http.StatusBadGateway, rr.Code)

	rr = do(router, as(anyone, httptest.NewRequest(http.MethodPost, "/vehicle-makes", strings.NewReader(`{}`))))
	assert.Equal(t, http.StatusMethodNotAllowed, rr.Code)
}

func TestPaginationDefaults(t *testing.T) {
	p := shared.PaginationFromQuery(nil, maxPerPage)
	assert.Equal(t, 1, p.Page)
	assert.Equal(t, 20, p.PerPage)
}
