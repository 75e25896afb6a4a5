package dashboard

import (
	"encoding/json"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/leofleet/fleet-console/internal/guard"
	"github.com/leofleet/fleet-console/internal/rbac"
)

func TestDescribe(t *testing.T) {
	cases := map[string]Page{
		"/dashboard":                      {Page: "home", Title: "Dashboard"},
		"/dashboard/vehicles":             {Page: "vehicles.list", Title: "Vehicles", Section: "vehicles"},
		"/dashboard/vehicles/new":         {Page: "vehicles.new", Title: "New Vehicle", Section: "vehicles"},
		"/dashboard/issues/edit/ISS-4":    {Page: "issues.edit", Title: "Edit Vehicle Issue", Section: "issues", RecordID: "ISS-4"},
		"/dashboard/insurance/POL-9":      {Page: "insurance.detail", Title: "Insurance", Section: "insurance", RecordID: "POL-9"},
		"/dashboard/reports/fuel/monthly": {Page: "reports.view", Title: "Reports", Section: "reports", RecordID: "fuel/monthly"},
	}
	for path, want := range cases {
		got, ok := Describe(path)
		require.True(t, ok, path)
		assert.Equal(t, want, got, path)
	}

	_, ok := Describe("/dashboard/unknown")
	assert.False(t, ok)
	_, ok = Describe("/dashboard/vehicles/a/b/c")
	assert.False(t, ok)
}

func newRouter() http.Handler {
	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	evaluator := rbac.NewEvaluator(nil)
	gh := guard.NewHandler(guard.New(guard.Config{}, evaluator), guard.NewCooldown(2*time.Second), logger, nil)
	r := chi.NewRouter()
	r.Route("/dashboard", NewHandler(gh, evaluator).MountRoutes)
	return r
}

func TestDashboardPageIsGuarded(t *testing.T) {
	router := newRouter()
	reader := &rbac.Profile{ID: "ops", Permissions: rbac.Permissions{rbac.ModuleVehicle: {rbac.ActionRead}}}

	req := httptest.NewRequest(http.MethodGet, "/dashboard/vehicles", nil)
	req = req.WithContext(rbac.ContextWithProfile(req.Context(), reader))
	rr := httptest.NewRecorder()
	router.ServeHTTP(rr, req)
	require.Equal(t, http.StatusOK, rr.Code)

	var page Page
	require.NoError(t, json.Unmarshal(rr.Body.Bytes(), &page))
	assert.Equal(t, "vehicles.list", page.Page)
	assert.Equal(t, []rbac.Action{rbac.ActionRead}, page.Capabilities[rbac.ModuleVehicle])

	req = httptest.NewRequest(http.MethodGet, "/dashboard/vehicles/new", nil)
	req = req.WithContext(rbac.ContextWithProfile(req.Context(), reader))
	rr = httptest.NewRecorder()
	router.ServeHTTP(rr, req)
	assert.Equal(t, http.StatusSeeOther, rr.Code)

	rr = httptest.NewRecorder()
	router.ServeHTTP(rr, httptest.NewRequest(http.MethodGet, "/dashboard", nil))
	assert.Equal(t, http.StatusSeeOther, rr.Code)
	assert.Contains(t, rr.Header().Get("Location"), "/login")
}
