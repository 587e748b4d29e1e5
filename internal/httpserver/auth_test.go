package httpserver

import (
	"context"
	"encoding/json"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"strconv"
	"strings"
	"sync"
	"testing"

	"github.com/glebarez/sqlite"
	"github.com/labstack/echo/v4"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gorm.io/gorm"

	"github.com/Skotchmaster/auth_service/internal/models"
	"github.com/Skotchmaster/auth_service/internal/repo"
	"github.com/Skotchmaster/auth_service/internal/service"
	"github.com/Skotchmaster/auth_service/pkg/tokens"
)

type fakeProducer struct {
	mu     sync.Mutex
	events []string
}

func (p *fakeProducer) PublishEvent(ctx context.Context, topic, key string, event interface{}) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	if m, ok := event.(echo.Map); ok {
		if typ, ok := m["type"].(string); ok {
			p.events = append(p.events, typ)
		}
	}
	return nil
}

func (p *fakeProducer) Close() error { return nil }

func (p *fakeProducer) published() []string {
	p.mu.Lock()
	defer p.mu.Unlock()
	return append([]string(nil), p.events...)
}

type testEnv struct {
	e        *echo.Echo
	db       *gorm.DB
	svc      *service.AuthService
	users    *repo.UserRepo
	producer *fakeProducer
}

func newTestEnv(t *testing.T) *testEnv {
	t.Helper()

	db, err := gorm.Open(sqlite.Open(":memory:"), &gorm.Config{})
	require.NoError(t, err)
	require.NoError(t, db.AutoMigrate(&models.User{}, &models.Role{}, &models.RefreshToken{}))

	users := repo.NewUserRepo(db)
	require.NoError(t, users.SeedRoles(context.Background()))

	svc := &service.AuthService{
		Users:         users,
		Tokens:        repo.NewTokenRepo(db),
		JWTSecret:     []byte("access-secret"),
		RefreshSecret: []byte("refresh-secret"),
		AccessTTL:     tokens.AccessTTL,
		RefreshTTL:    tokens.RefreshTTL,
	}

	producer := &fakeProducer{}
	handler := &AuthHTTP{Svc: svc, Users: users, Producer: producer}

	e := echo.New()
	Register(e, &Deps{
		AuthHandler: handler,
		Svc:         svc,
		Log:         slog.New(slog.NewJSONHandler(io.Discard, nil)),
	})

	return &testEnv{e: e, db: db, svc: svc, users: users, producer: producer}
}

type reqOpt func(*http.Request)

func withBearer(token string) reqOpt {
	return func(r *http.Request) { r.Header.Set("Authorization", "Bearer "+token) }
}

func withCookie(c *http.Cookie) reqOpt {
	return func(r *http.Request) { r.AddCookie(c) }
}

func (env *testEnv) do(method, path, body string, opts ...reqOpt) *httptest.ResponseRecorder {
	req := httptest.NewRequest(method, path, strings.NewReader(body))
	if body != "" {
		req.Header.Set(echo.HeaderContentType, echo.MIMEApplicationJSON)
	}
	for _, opt := range opts {
		opt(req)
	}
	rec := httptest.NewRecorder()
	env.e.ServeHTTP(rec, req)
	return rec
}

func (env *testEnv) signup(t *testing.T, username, email, password string) {
	t.Helper()
	rec := env.do(http.MethodPost, "/signup",
		`{"username":"`+username+`","email":"`+email+`","password":"`+password+`"}`)
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
}

// login returns the access token and the refresh cookie the server set.
func (env *testEnv) login(t *testing.T, email, password string) (string, *http.Cookie) {
	t.Helper()
	rec := env.do(http.MethodPost, "/login",
		`{"email":"`+email+`","password":"`+password+`"}`)
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())

	var body struct {
		AccessToken string `json:"access_token"`
	}
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &body))
	require.NotEmpty(t, body.AccessToken)

	var refresh *http.Cookie
	for _, c := range rec.Result().Cookies() {
		if c.Name == "refreshToken" {
			refresh = c
		}
	}
	require.NotNil(t, refresh)
	return body.AccessToken, refresh
}

func TestHealthz(t *testing.T) {
	env := newTestEnv(t)
	rec := env.do(http.MethodGet, "/healthz", "")
	assert.Equal(t, http.StatusOK, rec.Code)
}

func TestSignup(t *testing.T) {
	env := newTestEnv(t)

	rec := env.do(http.MethodPost, "/signup",
		`{"username":"alice","email":"alice@x.com","password":"Secret1!"}`)
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())

	var body map[string]interface{}
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &body))
	assert.Equal(t, "alice", body["username"])
	assert.Equal(t, "alice@x.com", body["email"])
	// the hash never leaves the server
	assert.NotContains(t, rec.Body.String(), "password")

	assert.Contains(t, env.producer.published(), "user_registered")
}

func TestSignup_Validation(t *testing.T) {
	env := newTestEnv(t)

	rec := env.do(http.MethodPost, "/signup",
		`{"username":"alice","email":"alice@x.com","password":"weak"}`)
	assert.Equal(t, http.StatusBadRequest, rec.Code)

	rec = env.do(http.MethodPost, "/signup",
		`{"username":"alice","email":"not-an-email","password":"Secret1!"}`)
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestSignup_DuplicateEmail(t *testing.T) {
	env := newTestEnv(t)
	env.signup(t, "alice", "alice@x.com", "Secret1!")

	rec := env.do(http.MethodPost, "/signup",
		`{"username":"other","email":"alice@x.com","password":"Secret2!"}`)
	assert.Equal(t, http.StatusConflict, rec.Code)
}

func TestLogin_SetsRefreshCookie(t *testing.T) {
	env := newTestEnv(t)
	env.signup(t, "alice", "alice@x.com", "Secret1!")

	_, cookie := env.login(t, "alice@x.com", "Secret1!")
	assert.True(t, cookie.HttpOnly)
	assert.True(t, cookie.Secure)
	assert.Equal(t, http.SameSiteLaxMode, cookie.SameSite)
	assert.Equal(t, "/", cookie.Path)
	assert.Equal(t, 30*24*60*60, cookie.MaxAge)
}

func TestLogin_BadCredentials(t *testing.T) {
	env := newTestEnv(t)
	env.signup(t, "alice", "alice@x.com", "Secret1!")

	rec := env.do(http.MethodPost, "/login",
		`{"email":"nobody@x.com","password":"Secret1!"}`)
	require.Equal(t, http.StatusUnauthorized, rec.Code)
	unknownEmail := rec.Body.String()

	rec = env.do(http.MethodPost, "/login",
		`{"email":"alice@x.com","password":"WrongSecret1!"}`)
	require.Equal(t, http.StatusUnauthorized, rec.Code)

	// same body either way
	assert.Equal(t, unknownEmail, rec.Body.String())
}

func TestRefreshToken(t *testing.T) {
	env := newTestEnv(t)
	env.signup(t, "alice", "alice@x.com", "Secret1!")
	_, cookie := env.login(t, "alice@x.com", "Secret1!")

	rec := env.do(http.MethodPost, "/refresh_token", "", withCookie(cookie))
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())

	var body struct {
		AccessToken string `json:"access_token"`
	}
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &body))
	require.NotEmpty(t, body.AccessToken)

	// the minted token works as a bearer credential
	me := env.do(http.MethodGet, "/me", "", withBearer(body.AccessToken))
	assert.Equal(t, http.StatusOK, me.Code)
}

func TestRefreshToken_MissingCookie(t *testing.T) {
	env := newTestEnv(t)

	rec := env.do(http.MethodPost, "/refresh_token", "")
	assert.Equal(t, http.StatusUnauthorized, rec.Code)
}

func TestRefreshToken_Garbage(t *testing.T) {
	env := newTestEnv(t)

	rec := env.do(http.MethodPost, "/refresh_token", "",
		withCookie(&http.Cookie{Name: "refreshToken", Value: "garbage"}))
	assert.Equal(t, http.StatusUnauthorized, rec.Code)
}

// closeDB severs the store under a live server to simulate a backend fault.
func (env *testEnv) closeDB(t *testing.T) {
	t.Helper()
	sqlDB, err := env.db.DB()
	require.NoError(t, err)
	require.NoError(t, sqlDB.Close())
}

func TestRefreshToken_StoreFaultIs500(t *testing.T) {
	env := newTestEnv(t)
	env.signup(t, "alice", "alice@x.com", "Secret1!")
	_, cookie := env.login(t, "alice@x.com", "Secret1!")

	env.closeDB(t)

	// a backend fault is not a credentials problem
	rec := env.do(http.MethodPost, "/refresh_token", "", withCookie(cookie))
	assert.Equal(t, http.StatusInternalServerError, rec.Code, rec.Body.String())
}

func TestRequireAuth_StoreFaultIs500(t *testing.T) {
	env := newTestEnv(t)
	env.signup(t, "alice", "alice@x.com", "Secret1!")
	access, _ := env.login(t, "alice@x.com", "Secret1!")

	env.closeDB(t)

	rec := env.do(http.MethodGet, "/me", "", withBearer(access))
	assert.Equal(t, http.StatusInternalServerError, rec.Code, rec.Body.String())
}

func TestMe(t *testing.T) {
	env := newTestEnv(t)
	env.signup(t, "alice", "alice@x.com", "Secret1!")
	access, _ := env.login(t, "alice@x.com", "Secret1!")

	rec := env.do(http.MethodGet, "/me", "", withBearer(access))
	require.Equal(t, http.StatusOK, rec.Code)

	var body map[string]interface{}
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &body))
	assert.Equal(t, "alice", body["username"])
	assert.Equal(t, "alice@x.com", body["email"])
	assert.NotZero(t, body["id"])
}

func TestMe_Unauthorized(t *testing.T) {
	env := newTestEnv(t)

	rec := env.do(http.MethodGet, "/me", "")
	assert.Equal(t, http.StatusUnauthorized, rec.Code)

	rec = env.do(http.MethodGet, "/me", "", withBearer("garbage"))
	assert.Equal(t, http.StatusUnauthorized, rec.Code)
}

func TestLogout(t *testing.T) {
	env := newTestEnv(t)
	env.signup(t, "alice", "alice@x.com", "Secret1!")
	_, cookie := env.login(t, "alice@x.com", "Secret1!")

	rec := env.do(http.MethodPost, "/logout", "", withCookie(cookie))
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	assert.JSONEq(t, `{"message":"Logged out successfully"}`, rec.Body.String())
	assert.Equal(t, "no-cache, no-store, must-revalidate", rec.Header().Get("Cache-Control"))
	assert.Equal(t, "no-cache", rec.Header().Get("Pragma"))
	assert.Equal(t, "0", rec.Header().Get("Expires"))

	// the server clears the cookie
	var cleared *http.Cookie
	for _, c := range rec.Result().Cookies() {
		if c.Name == "refreshToken" {
			cleared = c
		}
	}
	require.NotNil(t, cleared)
	assert.Empty(t, cleared.Value)
	assert.Equal(t, -1, cleared.MaxAge)

	// the revoked token no longer refreshes
	refresh := env.do(http.MethodPost, "/refresh_token", "", withCookie(cookie))
	assert.Equal(t, http.StatusUnauthorized, refresh.Code)

	assert.Contains(t, env.producer.published(), "user_logged_out")
}

func TestLogout_MissingCookie(t *testing.T) {
	env := newTestEnv(t)

	rec := env.do(http.MethodPost, "/logout", "")
	assert.Equal(t, http.StatusUnauthorized, rec.Code)
}

func TestLogout_UnknownToken(t *testing.T) {
	env := newTestEnv(t)

	rec := env.do(http.MethodPost, "/logout", "",
		withCookie(&http.Cookie{Name: "refreshToken", Value: "never-issued"}))
	assert.Equal(t, http.StatusNotFound, rec.Code)
}

func TestLogoutAll(t *testing.T) {
	env := newTestEnv(t)
	env.signup(t, "alice", "alice@x.com", "Secret1!")
	_, first := env.login(t, "alice@x.com", "Secret1!")
	access, second := env.login(t, "alice@x.com", "Secret1!")

	rec := env.do(http.MethodPost, "/logout_all", "", withBearer(access))
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	assert.JSONEq(t, `{"message":"Logged out from all sessions"}`, rec.Body.String())

	for _, cookie := range []*http.Cookie{first, second} {
		refresh := env.do(http.MethodPost, "/refresh_token", "", withCookie(cookie))
		assert.Equal(t, http.StatusUnauthorized, refresh.Code)
	}
}

func TestChangePassword(t *testing.T) {
	env := newTestEnv(t)
	env.signup(t, "alice", "alice@x.com", "Secret1!")
	access, _ := env.login(t, "alice@x.com", "Secret1!")

	rec := env.do(http.MethodPost, "/change_password",
		`{"current_password":"WrongSecret1!","new_password":"NewSecret2!"}`, withBearer(access))
	assert.Equal(t, http.StatusBadRequest, rec.Code)

	rec = env.do(http.MethodPost, "/change_password",
		`{"current_password":"Secret1!","new_password":"weak"}`, withBearer(access))
	assert.Equal(t, http.StatusBadRequest, rec.Code)

	rec = env.do(http.MethodPost, "/change_password",
		`{"current_password":"Secret1!","new_password":"NewSecret2!"}`, withBearer(access))
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())

	// old password is dead, new one logs in
	login := env.do(http.MethodPost, "/login", `{"email":"alice@x.com","password":"Secret1!"}`)
	assert.Equal(t, http.StatusUnauthorized, login.Code)
	env.login(t, "alice@x.com", "NewSecret2!")
}

func TestChangeUsername(t *testing.T) {
	env := newTestEnv(t)
	env.signup(t, "alice", "alice@x.com", "Secret1!")
	access, _ := env.login(t, "alice@x.com", "Secret1!")

	rec := env.do(http.MethodPost, "/change_username", `{"username":""}`, withBearer(access))
	assert.Equal(t, http.StatusBadRequest, rec.Code)

	rec = env.do(http.MethodPost, "/change_username", `{"username":"alice2"}`, withBearer(access))
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())

	me := env.do(http.MethodGet, "/me", "", withBearer(access))
	assert.Contains(t, me.Body.String(), "alice2")
}

func TestChangeEmail(t *testing.T) {
	env := newTestEnv(t)
	env.signup(t, "alice", "alice@x.com", "Secret1!")
	env.signup(t, "bob", "bob@x.com", "Secret1!")
	access, _ := env.login(t, "alice@x.com", "Secret1!")

	rec := env.do(http.MethodPost, "/change_email", `{"email":"broken"}`, withBearer(access))
	assert.Equal(t, http.StatusBadRequest, rec.Code)

	rec = env.do(http.MethodPost, "/change_email", `{"email":"bob@x.com"}`, withBearer(access))
	assert.Equal(t, http.StatusConflict, rec.Code)

	rec = env.do(http.MethodPost, "/change_email", `{"email":"alice2@x.com"}`, withBearer(access))
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
}

func TestAdmin_RequiresAdminRole(t *testing.T) {
	env := newTestEnv(t)
	env.signup(t, "alice", "alice@x.com", "Secret1!")
	access, _ := env.login(t, "alice@x.com", "Secret1!")

	// plain user, no role at all
	rec := env.do(http.MethodGet, "/admin/users", "", withBearer(access))
	assert.Equal(t, http.StatusForbidden, rec.Code)

	// no credentials at all is a 401, not a 403
	rec = env.do(http.MethodGet, "/admin/users", "")
	assert.Equal(t, http.StatusUnauthorized, rec.Code)
}

func TestAdmin_ListUsersAndSetRole(t *testing.T) {
	env := newTestEnv(t)
	env.signup(t, "root", "root@x.com", "Secret1!")
	env.signup(t, "alice", "alice@x.com", "Secret1!")

	admin, err := env.users.GetByEmail(context.Background(), "root@x.com")
	require.NoError(t, err)
	require.NoError(t, env.users.SetRole(context.Background(), admin.ID, models.RoleAdmin))

	access, _ := env.login(t, "root@x.com", "Secret1!")

	rec := env.do(http.MethodGet, "/admin/users", "", withBearer(access))
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())

	var listed []models.User
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &listed))
	assert.Len(t, listed, 2)

	alice, err := env.users.GetByEmail(context.Background(), "alice@x.com")
	require.NoError(t, err)

	rec = env.do(http.MethodPost, "/admin/users/"+itoa(alice.ID)+"/role",
		`{"role":"moderator"}`, withBearer(access))
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())

	role, err := env.users.GetRole(context.Background(), alice.ID)
	require.NoError(t, err)
	assert.Equal(t, models.RoleModerator, role)

	rec = env.do(http.MethodPost, "/admin/users/"+itoa(alice.ID)+"/role",
		`{"role":"emperor"}`, withBearer(access))
	assert.Equal(t, http.StatusNotFound, rec.Code)

	rec = env.do(http.MethodPost, "/admin/users/9999/role",
		`{"role":"moderator"}`, withBearer(access))
	assert.Equal(t, http.StatusNotFound, rec.Code)
}

func itoa(id uint) string {
	return strconv.FormatUint(uint64(id), 10)
}
