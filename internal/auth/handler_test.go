package auth

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"net/url"
	"strings"
	"testing"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/leofleet/fleet-console/internal/fleetapi"
	"github.com/leofleet/fleet-console/internal/guard"
	"github.com/leofleet/fleet-console/internal/rbac"
	"github.com/leofleet/fleet-console/internal/shared"
)

type handlerFixture struct {
	*fixture
	sessions *shared.SessionManager
	router   chi.Router
}

func newHandlerFixture(t *testing.T, ident *stubIdentity, degraded DegradedPolicy) *handlerFixture {
	t.Helper()
	f := newFixture(t, ident)
	sessions := shared.NewSessionManager("session-secret", time.Hour, false)
	h := NewHandler(HandlerConfig{
		Logger:    f.logger,
		Service:   f.service(nil, degraded),
		Evaluator: f.evaluator,
		Sessions:  sessions,
		CSRF:      shared.NewCSRFManager("csrf-secret", false),
		Cooldown:  guard.NewCooldown(2 * time.Second),
	})
	r := chi.NewRouter()
	h.MountRoutes(r)
	return &handlerFixture{fixture: f, sessions: sessions, router: r}
}

func (hf *handlerFixture) serve(req *http.Request) *httptest.ResponseRecorder {
	rr := httptest.NewRecorder()
	hf.router.ServeHTTP(rr, req)
	return rr
}

func jsonLogin(email, password string) *http.Request {
	body, _ := json.Marshal(map[string]string{"email": email, "password": password})
	req := httptest.NewRequest(http.MethodPost, "/login", strings.NewReader(string(body)))
	req.Header.Set("Content-Type", "application/json")
	return req
}

func cookieNamed(rr *httptest.ResponseRecorder, name string) *http.Cookie {
	for _, c := range rr.Result().Cookies() {
		if c.Name == name {
			return c
		}
	}
	return nil
}

func TestLoginHandlerPersistsSession(t *testing.T) {
	hf := newHandlerFixture(t, &stubIdentity{details: map[string]string{"ana@leofleet.test": anaDetails}}, DegradedPolicy{})

	rr := hf.serve(jsonLogin("Ana@leofleet.test", "pw"))
	require.Equal(t, http.StatusOK, rr.Code)

	var body loginResponse
	require.NoError(t, json.Unmarshal(rr.Body.Bytes(), &body))
	assert.True(t, body.OK)
	assert.Equal(t, "ana@leofleet.test", body.Profile.Email)
	assert.Equal(t, []rbac.Action{rbac.ActionRead, rbac.ActionWrite}, body.Capabilities[rbac.ModuleVehicle])

	req := httptest.NewRequest(http.MethodGet, "/", nil)
	req.AddCookie(cookieNamed(rr, shared.UserIDCookie))
	req.AddCookie(cookieNamed(rr, shared.UserDataCookie))
	state := hf.sessions.Load(req)
	assert.Equal(t, "ana@leofleet.test", state.Token)
	p, err := DecodeProfile(state.Profile)
	require.NoError(t, err)
	assert.Equal(t, "Fleet Manager", p.Role)
}

func TestLoginHandlerAcceptsForm(t *testing.T) {
	hf := newHandlerFixture(t, &stubIdentity{details: map[string]string{"ana@leofleet.test": anaDetails}}, DegradedPolicy{})

	form := url.Values{"email": {"ana@leofleet.test"}, "password": {"pw"}}
	req := httptest.NewRequest(http.MethodPost, "/login", strings.NewReader(form.Encode()))
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")

	rr := hf.serve(req)
	assert.Equal(t, http.StatusOK, rr.Code)
	assert.NotNil(t, cookieNamed(rr, shared.UserIDCookie))
}

func TestLoginHandlerFailures(t *testing.T) {
	cases := []struct {
		name     string
		identity *stubIdentity
		email    string
		status   int
		message  string
	}{
		{
			name:     "rejected",
			identity: &stubIdentity{loginErr: &fleetapi.APIError{Status: 401, Message: "Invalid login credentials"}},
			email:    "ana@leofleet.test",
			status:   http.StatusUnauthorized,
			message:  "Invalid login credentials",
		},
		{
			name:     "upstream down",
			identity: &stubIdentity{loginErr: errIdentityDown},
			email:    "ana@leofleet.test",
			status:   http.StatusServiceUnavailable,
			message:  "The fleet service is unavailable. Please try again later.",
		},
		{
			name:     "invalid email",
			identity: &stubIdentity{},
			email:    "not-an-email",
			status:   http.StatusBadRequest,
			message:  "email and password are required",
		},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			hf := newHandlerFixture(t, tc.identity, DegradedPolicy{})
			rr := hf.serve(jsonLogin(tc.email, "pw"))

			require.Equal(t, tc.status, rr.Code)
			var body loginResponse
			require.NoError(t, json.Unmarshal(rr.Body.Bytes(), &body))
			assert.False(t, body.OK)
			assert.Equal(t, tc.message, body.Error)
			assert.Nil(t, cookieNamed(rr, shared.UserIDCookie))
		})
	}
}

func TestLoginHandlerDegraded(t *testing.T) {
	hf := newHandlerFixture(t, &stubIdentity{loginErr: errIdentityDown}, DegradedPolicy{Enabled: true, AdminEmails: []string{"ops@leofleet.test"}})

	rr := hf.serve(jsonLogin("ops@leofleet.test", "pw"))
	require.Equal(t, http.StatusOK, rr.Code)
	var body loginResponse
	require.NoError(t, json.Unmarshal(rr.Body.Bytes(), &body))
	assert.True(t, body.Degraded)
	assert.Equal(t, rbac.RoleAdmin, body.Profile.Role)
}

func withSession(req *http.Request, token string, p *rbac.Profile) *http.Request {
	ctx := shared.ContextWithSession(req.Context(), shared.SessionState{Token: token})
	if p != nil {
		ctx = rbac.ContextWithProfile(ctx, p)
	}
	return req.WithContext(ctx)
}

func TestLogoutHandlerRedirectsOnce(t *testing.T) {
	ident := &stubIdentity{}
	hf := newHandlerFixture(t, ident, DegradedPolicy{})

	rr := hf.serve(withSession(httptest.NewRequest(http.MethodPost, "/logout", nil), "ana@leofleet.test", nil))
	require.Equal(t, http.StatusSeeOther, rr.Code)
	assert.Equal(t, "/login", rr.Header().Get("Location"))
	idCookie := cookieNamed(rr, shared.UserIDCookie)
	require.NotNil(t, idCookie)
	assert.Less(t, idCookie.MaxAge, 0)
	assert.Equal(t, []string{"ana@leofleet.test"}, ident.logouts)

	rr = hf.serve(withSession(httptest.NewRequest(http.MethodPost, "/logout", nil), "ana@leofleet.test", nil))
	assert.Equal(t, http.StatusNoContent, rr.Code)
	assert.NotNil(t, cookieNamed(rr, shared.UserDataCookie))
}

func TestRefreshHandlerRewritesProfile(t *testing.T) {
	hf := newHandlerFixture(t, &stubIdentity{details: map[string]string{"ana@leofleet.test": anaDetails}}, DegradedPolicy{})

	rr := hf.serve(withSession(httptest.NewRequest(http.MethodPost, "/refresh", nil), "ana@leofleet.test", nil))
	require.Equal(t, http.StatusOK, rr.Code)
	assert.NotNil(t, cookieNamed(rr, shared.UserDataCookie))
	assert.Nil(t, cookieNamed(rr, shared.UserIDCookie))

	rr = hf.serve(httptest.NewRequest(http.MethodPost, "/refresh", nil))
	assert.Equal(t, http.StatusUnauthorized, rr.Code)
}

func TestMeHandler(t *testing.T) {
	hf := newHandlerFixture(t, &stubIdentity{}, DegradedPolicy{})

	rr := hf.serve(httptest.NewRequest(http.MethodGet, "/me", nil))
	assert.Equal(t, http.StatusUnauthorized, rr.Code)

	p := &rbac.Profile{ID: superAdmin, Email: superAdmin, Role: "Driver"}
	rr = hf.serve(withSession(httptest.NewRequest(http.MethodGet, "/me", nil), superAdmin, p))
	require.Equal(t, http.StatusOK, rr.Code)
	var body struct {
		Admin bool `json:"admin"`
	}
	require.NoError(t, json.Unmarshal(rr.Body.Bytes(), &body))
	assert.True(t, body.Admin)
}

func TestCSRFHandlerIssuesToken(t *testing.T) {
	hf := newHandlerFixture(t, &stubIdentity{}, DegradedPolicy{})

	rr := hf.serve(httptest.NewRequest(http.MethodGet, "/csrf", nil))
	require.Equal(t, http.StatusOK, rr.Code)
	var body map[string]string
	require.NoError(t, json.Unmarshal(rr.Body.Bytes(), &body))
	cookie := cookieNamed(rr, shared.CSRFCookieName)
	require.NotNil(t, cookie)
	assert.Equal(t, cookie.Value, body["csrf_token"])
}
