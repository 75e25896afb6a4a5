package shared

import (
	"crypto/subtle"
	"encoding/base64"
	"math"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"github.com/google/uuid"
	"golang.org/x/crypto/blake2b"
)

const (
	// UserIDCookie carries the opaque session id token.
	UserIDCookie = "user_id"
	// UserDataCookie carries the URL-encoded JSON profile blob.
	UserDataCookie = "user_data"
)

// SessionState is the raw session presented by the browser. Token is empty
// when no valid session cookie was sent. ID names this sign-in and ExpiresAt
// is the signed end of its lifetime. Profile holds the cached profile JSON
// and ProfileErr explains why it is absent when a user_data cookie was present
// but unusable.
type SessionState struct {
	Token      string
	ID         string
	ExpiresAt  time.Time
	Profile    []byte
	ProfileErr error
}

// Authenticated reports whether the state carries a session token.
func (s SessionState) Authenticated() bool {
	return s.Token != ""
}

// SessionManager reads and writes the signed session cookies. Each sealed
// value carries its expiry under the MAC, so a copied cookie stops working
// once the session lifetime has passed regardless of what the browser keeps.
type SessionManager struct {
	ttl    time.Duration
	secure bool
	key    [32]byte
	now    func() time.Time
}

// NewSessionManager constructs a SessionManager. secret keys the cookie MAC.
func NewSessionManager(secret string, ttl time.Duration, secure bool) *SessionManager {
	return &SessionManager{
		ttl:    ttl,
		secure: secure,
		key:    blake2b.Sum256([]byte(secret)),
		now:    time.Now,
	}
}

// Load extracts the session state from the request cookies. Cookies with a
// bad signature or a passed expiry are ignored.
func (sm *SessionManager) Load(r *http.Request) SessionState {
	var state SessionState
	idCookie, err := r.Cookie(UserIDCookie)
	if err != nil || idCookie.Value == "" {
		return state
	}
	payload, exp, ok := sm.open(idCookie.Value, "")
	if !ok {
		return state
	}
	encodedToken, sid, ok := strings.Cut(payload, ".")
	if !ok || sid == "" {
		return state
	}
	token, err := base64.RawURLEncoding.DecodeString(encodedToken)
	if err != nil || len(token) == 0 {
		return state
	}
	state.Token = string(token)
	state.ID = sid
	state.ExpiresAt = exp

	dataCookie, err := r.Cookie(UserDataCookie)
	if err != nil || dataCookie.Value == "" {
		return state
	}
	encoded, _, ok := sm.open(dataCookie.Value, profileBinding(state.Token, state.ID))
	if !ok {
		state.ProfileErr = ErrMalformedSession
		return state
	}
	decoded, err := url.QueryUnescape(encoded)
	if err != nil {
		state.ProfileErr = ErrMalformedSession
		return state
	}
	state.Profile = []byte(decoded)
	return state
}

// Persist starts a session: both cookies expire one TTL from now. An empty
// sessionID is replaced by a random one. It returns the written state.
func (sm *SessionManager) Persist(w http.ResponseWriter, token, sessionID string, profile []byte) SessionState {
	if sessionID == "" {
		sessionID = uuid.NewString()
	}
	exp := sm.now().Add(sm.ttl)
	payload := base64.RawURLEncoding.EncodeToString([]byte(token)) + "." + sessionID
	http.SetCookie(w, sm.cookie(UserIDCookie, sm.seal(payload, "", exp), exp))
	state := SessionState{Token: token, ID: sessionID, ExpiresAt: exp, Profile: profile}
	sm.PersistProfile(w, state, profile)
	return state
}

// PersistProfile rewrites the profile blob of an existing session without
// extending its lifetime.
func (sm *SessionManager) PersistProfile(w http.ResponseWriter, state SessionState, profile []byte) {
	exp := state.ExpiresAt
	if exp.IsZero() {
		exp = sm.now().Add(sm.ttl)
	}
	sealed := sm.seal(url.QueryEscape(string(profile)), profileBinding(state.Token, state.ID), exp)
	http.SetCookie(w, sm.cookie(UserDataCookie, sealed, exp))
}

// Clear expires both session cookies.
func (sm *SessionManager) Clear(w http.ResponseWriter) {
	for _, name := range []string{UserIDCookie, UserDataCookie} {
		c := sm.cookie(name, "", time.Unix(0, 0))
		c.MaxAge = -1
		http.SetCookie(w, c)
	}
}

// TTL exposes the configured session lifetime.
func (sm *SessionManager) TTL() time.Duration {
	return sm.ttl
}

func (sm *SessionManager) cookie(name, value string, exp time.Time) *http.Cookie {
	maxAge := int(math.Ceil(exp.Sub(sm.now()).Seconds()))
	if maxAge < 1 {
		maxAge = 1
	}
	return &http.Cookie{
		Name:     name,
		Value:    value,
		Path:     "/",
		HttpOnly: true,
		Secure:   sm.secure,
		SameSite: http.SameSiteLaxMode,
		Expires:  exp,
		MaxAge:   maxAge,
	}
}

// profileBinding ties a profile blob to one sign-in of one user.
func profileBinding(token, sessionID string) string {
	return token + "|" + sessionID
}

// seal appends the unix expiry and a MAC over value, expiry and bind.
func (sm *SessionManager) seal(value, bind string, exp time.Time) string {
	signed := value + "." + strconv.FormatInt(exp.Unix(), 10)
	return signed + "." + sm.mac(signed, bind)
}

// open verifies a sealed value and returns its payload and expiry. Values
// whose expiry has passed are rejected.
func (sm *SessionManager) open(sealed, bind string) (string, time.Time, bool) {
	i := strings.LastIndexByte(sealed, '.')
	if i < 0 {
		return "", time.Time{}, false
	}
	signed, sig := sealed[:i], sealed[i+1:]
	if subtle.ConstantTimeCompare([]byte(sig), []byte(sm.mac(signed, bind))) != 1 {
		return "", time.Time{}, false
	}
	j := strings.LastIndexByte(signed, '.')
	if j < 0 {
		return "", time.Time{}, false
	}
	unix, err := strconv.ParseInt(signed[j+1:], 10, 64)
	if err != nil {
		return "", time.Time{}, false
	}
	exp := time.Unix(unix, 0)
	if !sm.now().Before(exp) {
		return "", time.Time{}, false
	}
	return signed[:j], exp, true
}

func (sm *SessionManager) mac(value, bind string) string {
	h, _ := blake2b.New256(sm.key[:])
	_, _ = h.Write([]byte(bind))
	_, _ = h.Write([]byte{0})
	_, _ = h.Write([]byte(value))
	return base64.RawURLEncoding.EncodeToString(h.Sum(nil))
}
