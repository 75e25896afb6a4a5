package auth

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/leofleet/fleet-console/internal/fleetapi"
	"github.com/leofleet/fleet-console/internal/rbac"
	"github.com/leofleet/fleet-console/internal/shared"
)

func TestLoginThenResolveYieldsLowercasedEmail(t *testing.T) {
	ident := &stubIdentity{details: map[string]string{"ana@leofleet.test": anaDetails}}
	f := newFixture(t, ident)
	repo := &recordingRepo{}
	svc := f.service(repo, DegradedPolicy{})

	res, err := svc.Login(context.Background(), "  Ana@LeoFleet.TEST ", "pw", ClientMeta{IP: "10.0.0.7", UserAgent: "test"})
	require.NoError(t, err)
	assert.False(t, res.Degraded)
	assert.Equal(t, "ana@leofleet.test", res.Token)
	assert.Equal(t, "ana@leofleet.test", res.Profile.Email)
	assert.Equal(t, "Ana Driver", res.Profile.DisplayName)

	require.Len(t, repo.logins, 1)
	assert.Equal(t, "ana@leofleet.test", repo.logins[0].UserID)
	assert.Equal(t, "10.0.0.7", repo.logins[0].IP)
	assert.Equal(t, repo.logins[0].CreatedAt.Add(svc.sessionTTL), repo.logins[0].ExpiresAt)

	resolved := f.resolver(DegradedPolicy{}).Resolve(context.Background(), shared.SessionState{
		Token:   res.Token,
		Profile: mustEncode(t, res.Profile),
	})
	require.NotNil(t, resolved.Profile)
	assert.Equal(t, "ana@leofleet.test", resolved.Profile.Email)
	assert.False(t, resolved.Changed)
}

func TestLoginSuperAdminBecomesAdmin(t *testing.T) {
	ident := &stubIdentity{details: map[string]string{superAdmin: `{"role":"Driver","permissions":{"Driver":["read"]}}`}}
	f := newFixture(t, ident)

	res, err := f.service(nil, DegradedPolicy{}).Login(context.Background(), "LeoFleet@gmail.com", "pw", ClientMeta{})
	require.NoError(t, err)
	assert.Equal(t, rbac.RoleAdmin, res.Profile.Role)
	assert.Equal(t, rbac.FullAccess(), res.Profile.Permissions)
	for _, m := range rbac.Modules() {
		assert.True(t, f.evaluator.HasPermission(res.Profile, m, rbac.ActionDelete))
	}
}

func TestLoginRejectedCredentials(t *testing.T) {
	ident := &stubIdentity{loginErr: &fleetapi.APIError{Status: 401, Message: "Invalid login credentials"}}
	f := newFixture(t, ident)

	_, err := f.service(nil, DegradedPolicy{Enabled: true}).Login(context.Background(), "ana@leofleet.test", "bad", ClientMeta{})
	var credErr *CredentialError
	require.ErrorAs(t, err, &credErr)
	assert.Equal(t, "Invalid login credentials", credErr.Message)
	assert.ErrorIs(t, err, shared.ErrInvalidCredentials)
}

func TestLoginRequiresEmailAndPassword(t *testing.T) {
	f := newFixture(t, &stubIdentity{})
	_, err := f.service(nil, DegradedPolicy{}).Login(context.Background(), " ", "pw", ClientMeta{})
	assert.ErrorIs(t, err, shared.ErrInvalidCredentials)
}

func TestLoginUpstreamUnavailable(t *testing.T) {
	ident := &stubIdentity{loginErr: errIdentityDown}
	f := newFixture(t, ident)

	_, err := f.service(nil, DegradedPolicy{}).Login(context.Background(), "ops@leofleet.test", "pw", ClientMeta{})
	assert.ErrorIs(t, err, shared.ErrUpstreamUnavailable)

	repo := &recordingRepo{}
	res, err := f.service(repo, DegradedPolicy{Enabled: true}).Login(context.Background(), "ops@leofleet.test", "pw", ClientMeta{})
	require.NoError(t, err)
	assert.True(t, res.Degraded)
	assert.Equal(t, "ops@leofleet.test", res.Token)
	assert.Equal(t, "Viewer", res.Profile.Role)
	require.Len(t, repo.logins, 1)
	assert.True(t, repo.logins[0].Degraded)
}

func TestLoginWithoutDetailsHasNoGrants(t *testing.T) {
	ident := &stubIdentity{fullName: "Ops Night Shift", detailsErr: errIdentityDown}
	f := newFixture(t, ident)

	res, err := f.service(nil, DegradedPolicy{}).Login(context.Background(), "ops@leofleet.test", "pw", ClientMeta{})
	require.NoError(t, err)
	assert.Equal(t, "Ops Night Shift", res.Profile.DisplayName)
	assert.Empty(t, res.Profile.Permissions)
	assert.False(t, f.evaluator.HasPermission(res.Profile, rbac.ModuleVehicle, rbac.ActionRead))
}

func TestLogoutIsBestEffort(t *testing.T) {
	ident := &stubIdentity{details: map[string]string{"ana@leofleet.test": anaDetails}}
	f := newFixture(t, ident)
	repo := &recordingRepo{}
	svc := f.service(repo, DegradedPolicy{})

	_, err := f.profiles.Fetch(context.Background(), "ana@leofleet.test", "ana@leofleet.test")
	require.NoError(t, err)

	svc.Logout(context.Background(), shared.SessionState{Token: "ana@leofleet.test", ID: "3f1c9a56-0d4e-4b7a-9a57-1d2e3f4a5b6c"})
	assert.Equal(t, []string{"ana@leofleet.test"}, ident.logouts)
	assert.Equal(t, []string{"3f1c9a56-0d4e-4b7a-9a57-1d2e3f4a5b6c"}, repo.logouts)
	_, ok, _ := f.profiles.Fresh(context.Background(), "ana@leofleet.test")
	assert.False(t, ok)

	svc.Logout(context.Background(), shared.SessionState{})
	assert.Len(t, ident.logouts, 1)
}

func TestLogoutEndsOnlyThatSession(t *testing.T) {
	ident := &stubIdentity{details: map[string]string{"ana@leofleet.test": anaDetails}}
	f := newFixture(t, ident)
	repo := &recordingRepo{}
	svc := f.service(repo, DegradedPolicy{})
	ctx := context.Background()

	laptop, err := svc.Login(ctx, "ana@leofleet.test", "pw", ClientMeta{UserAgent: "laptop"})
	require.NoError(t, err)
	phone, err := svc.Login(ctx, "ana@leofleet.test", "pw", ClientMeta{UserAgent: "phone"})
	require.NoError(t, err)
	require.NotEqual(t, laptop.SessionID, phone.SessionID)
	require.Len(t, repo.logins, 2)
	assert.Equal(t, laptop.SessionID, repo.logins[0].ID.String())

	expires := time.Now().Add(time.Hour)
	laptopState := shared.SessionState{Token: laptop.Token, ID: laptop.SessionID, ExpiresAt: expires, Profile: mustEncode(t, laptop.Profile)}
	phoneState := shared.SessionState{Token: phone.Token, ID: phone.SessionID, ExpiresAt: expires, Profile: mustEncode(t, phone.Profile)}

	svc.Logout(ctx, laptopState)
	assert.Equal(t, []string{laptop.SessionID}, repo.logouts)

	r := f.resolver(DegradedPolicy{Enabled: true})
	ended := r.Resolve(ctx, laptopState)
	assert.Nil(t, ended.Profile, "a signed-out cookie must not resolve")
	assert.Equal(t, SourceNone, ended.Source)

	active := r.Resolve(ctx, phoneState)
	require.NotNil(t, active.Profile)
	assert.Equal(t, "ana@leofleet.test", active.Profile.Email)
}

func TestLoginDisplayNameSurvivesRefresh(t *testing.T) {
	ident := &stubIdentity{
		fullName: "Jane Q. Operator",
		details:  map[string]string{"jane@leofleet.test": `{"role":"Driver","permissions":{"Vehicle":["read"]}}`},
	}
	f := newFixture(t, ident)
	ctx := context.Background()

	res, err := f.service(nil, DegradedPolicy{}).Login(ctx, "jane@leofleet.test", "pw", ClientMeta{})
	require.NoError(t, err)
	require.Equal(t, "Jane Q. Operator", res.Profile.DisplayName)

	state := shared.SessionState{Token: res.Token, ID: res.SessionID, Profile: mustEncode(t, res.Profile)}
	r := f.resolver(DegradedPolicy{})

	resolved := r.Resolve(ctx, state)
	require.NotNil(t, resolved.Profile)
	assert.False(t, resolved.Changed)
	assert.Equal(t, "Jane Q. Operator", resolved.Profile.DisplayName)
	assert.Equal(t, 1, ident.calls())

	f.redis.FastForward(2 * time.Minute)
	resolved = r.Resolve(ctx, state)
	require.NotNil(t, resolved.Profile)
	assert.Equal(t, SourceRefreshed, resolved.Source)
	assert.False(t, resolved.Changed)
	assert.Equal(t, "Jane Q. Operator", resolved.Profile.DisplayName)
	assert.Equal(t, 2, ident.calls())

	refreshed, err := f.service(nil, DegradedPolicy{}).Refresh(ctx, state)
	require.NoError(t, err)
	assert.Equal(t, "Jane Q. Operator", refreshed.DisplayName)
}

func TestRefresh(t *testing.T) {
	ident := &stubIdentity{details: map[string]string{"ana@leofleet.test": anaDetails}}
	f := newFixture(t, ident)
	svc := f.service(nil, DegradedPolicy{})

	_, err := svc.Refresh(context.Background(), shared.SessionState{})
	assert.ErrorIs(t, err, shared.ErrUnauthenticated)

	p, err := svc.Refresh(context.Background(), shared.SessionState{Token: "ana@leofleet.test"})
	require.NoError(t, err)
	assert.Equal(t, "ana@leofleet.test", p.ID)

	ident.setDetailsErr(errIdentityDown)
	_, err = svc.Refresh(context.Background(), shared.SessionState{Token: "ana@leofleet.test"})
	assert.ErrorIs(t, err, shared.ErrUpstreamUnavailable)

	ident.setDetailsErr(nil)
	ident.details = map[string]string{}
	_, err = svc.Refresh(context.Background(), shared.SessionState{Token: "ana@leofleet.test"})
	assert.ErrorIs(t, err, shared.ErrUpstreamUnavailable)
}
