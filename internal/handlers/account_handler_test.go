package handlers_test

import (
	"bytes"
	"context"
	"encoding/json"
	"io"
	"log"
	"net/http"
	"net/http/httptest"
	"os"
	"regexp"
	"strings"
	"sync"
	"testing"
	"time"

	"accounts/internal/database"
	"accounts/internal/handlers"
	"accounts/internal/middleware"
	"accounts/internal/models"
	"accounts/internal/repositories"
	"accounts/internal/services"
	"accounts/pkg/mailer"

	"github.com/gofiber/fiber/v2"
	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"golang.org/x/crypto/bcrypt"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"
)

var resetLinkPattern = regexp.MustCompile(`/resetpassword/([0-9a-zA-Z-]+)`)

// outbox records every email instead of sending it.
type outbox struct {
	mu   sync.Mutex
	sent []mailer.Message
	err  error
}

func (o *outbox) Send(_ context.Context, msg mailer.Message) error {
	o.mu.Lock()
	defer o.mu.Unlock()
	if o.err != nil {
		return o.err
	}
	o.sent = append(o.sent, msg)
	return nil
}

func (o *outbox) lastResetToken(t *testing.T) string {
	t.Helper()
	o.mu.Lock()
	defer o.mu.Unlock()
	require.NotEmpty(t, o.sent)
	match := resetLinkPattern.FindStringSubmatch(o.sent[len(o.sent)-1].HTMLBody)
	require.Len(t, match, 2)
	return match[1]
}

type testEnv struct {
	app    *fiber.App
	db     *gorm.DB
	outbox *outbox
}

// setupApp builds the account API on a private in-memory SQLite database.
func setupApp(t *testing.T) *testEnv {
	t.Helper()

	dsn := "file:" + uuid.New().String() + "?mode=memory&cache=shared"
	db, err := gorm.Open(sqlite.Open(dsn), &gorm.Config{
		TranslateError: true,
		Logger:         logger.Default.LogMode(logger.Silent),
	})
	require.NoError(t, err)
	require.NoError(t, database.Migrate(db))
	t.Cleanup(func() { _ = database.CloseGORM(db) })

	hasher := services.NewBcryptHasher(bcrypt.MinCost)
	resets := services.NewResetTokenService(repositories.NewGORMResetTokenRepository(db), hasher, 30*time.Minute)
	box := &outbox{}
	accountService := services.NewAccountService(
		repositories.NewGORMUserRepository(db),
		hasher,
		services.NewTokenService("test_jwt_secret", 24*time.Hour),
		resets,
		box,
		services.AccountOptions{AppName: "Accounts", FrontendURL: "http://localhost:3000", EmailFrom: "no-reply@example.com"},
	)

	extract := middleware.FromCookie(middleware.SessionCookie)
	accountHandler := handlers.NewAccountHandler(accountService, handlers.HandlerOptions{
		RequestTimeout: 5 * time.Second,
		TokenExtractor: extract,
	})

	app := fiber.New(fiber.Config{ErrorHandler: handlers.ErrorHandler})
	accountHandler.RegisterRoutes(app.Group("/api"), middleware.AuthRequired(accountService, extract))

	return &testEnv{app: app, db: db, outbox: box}
}

// TestMain runs setup and teardown for all tests
func TestMain(m *testing.M) {
	// Suppress logging during tests for cleaner output
	log.SetOutput(io.Discard)
	os.Exit(m.Run())
}

func (e *testEnv) do(t *testing.T, method, path string, body interface{}, cookie *http.Cookie) *http.Response {
	t.Helper()
	var reader io.Reader
	if body != nil {
		raw, err := json.Marshal(body)
		require.NoError(t, err)
		reader = bytes.NewReader(raw)
	}
	req := httptest.NewRequest(method, path, reader)
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	if cookie != nil {
		req.AddCookie(cookie)
	}
	resp, err := e.app.Test(req, -1)
	require.NoError(t, err)
	t.Cleanup(func() { resp.Body.Close() })
	return resp
}

func decode(t *testing.T, resp *http.Response) map[string]interface{} {
	t.Helper()
	var out map[string]interface{}
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&out))
	return out
}

func sessionCookie(resp *http.Response) *http.Cookie {
	for _, c := range resp.Cookies() {
		if c.Name == middleware.SessionCookie {
			return c
		}
	}
	return nil
}

func (e *testEnv) register(t *testing.T, name, email, password string) *http.Cookie {
	t.Helper()
	resp := e.do(t, http.MethodPost, "/api/users/register", map[string]string{
		"name": name, "email": email, "password": password,
	}, nil)
	require.Equal(t, http.StatusCreated, resp.StatusCode)
	cookie := sessionCookie(resp)
	require.NotNil(t, cookie)
	return cookie
}

func TestRegister(t *testing.T) {
	env := setupApp(t)

	resp := env.do(t, http.MethodPost, "/api/users/register", map[string]string{
		"name":     "Ada",
		"email":    "ada@example.com",
		"password": "secret1",
	}, nil)
	assert.Equal(t, http.StatusCreated, resp.StatusCode)

	cookie := sessionCookie(resp)
	require.NotNil(t, cookie)
	assert.True(t, cookie.HttpOnly)
	assert.Equal(t, "/", cookie.Path)
	assert.WithinDuration(t, time.Now().Add(24*time.Hour), cookie.Expires, time.Minute)

	body := decode(t, resp)
	assert.NotEmpty(t, body["id"])
	assert.Equal(t, "Ada", body["name"])
	assert.Equal(t, "ada@example.com", body["email"])
	assert.Equal(t, models.DefaultPhoto, body["photo"])
	assert.Equal(t, models.DefaultPhone, body["phone"])
	assert.Equal(t, models.DefaultBio, body["bio"])
	assert.Equal(t, cookie.Value, body["token"])
	assert.NotContains(t, body, "password")

	var stored models.User
	require.NoError(t, env.db.First(&stored, "email = ?", "ada@example.com").Error)
	assert.NotEqual(t, "secret1", stored.Password)
	assert.True(t, strings.HasPrefix(stored.Password, "$2"))
}

func TestRegisterDuplicateAndValidation(t *testing.T) {
	env := setupApp(t)
	env.register(t, "Ada", "ada@example.com", "secret1")

	resp := env.do(t, http.MethodPost, "/api/users/register", map[string]string{
		"name": "Ada", "email": "ADA@example.com", "password": "secret1",
	}, nil)
	assert.Equal(t, http.StatusConflict, resp.StatusCode)
	assert.Equal(t, "Email has already been registered", decode(t, resp)["message"])

	resp = env.do(t, http.MethodPost, "/api/users/register", map[string]string{
		"email": "bob@example.com",
	}, nil)
	assert.Equal(t, http.StatusBadRequest, resp.StatusCode)
	assert.Equal(t, "Please fill in all required fields", decode(t, resp)["message"])

	resp = env.do(t, http.MethodPost, "/api/users/register", map[string]string{
		"name": "Bob", "email": "bob@example.com", "password": "abc",
	}, nil)
	assert.Equal(t, http.StatusBadRequest, resp.StatusCode)
	assert.Equal(t, "Password must be between 6 and 23 characters", decode(t, resp)["message"])
}

func TestMalformedBody(t *testing.T) {
	env := setupApp(t)

	req := httptest.NewRequest(http.MethodPost, "/api/users/login", strings.NewReader("{not json"))
	req.Header.Set("Content-Type", "application/json")
	resp, err := env.app.Test(req, -1)
	require.NoError(t, err)
	defer resp.Body.Close()

	assert.Equal(t, http.StatusBadRequest, resp.StatusCode)
	assert.Equal(t, "Invalid request body", decode(t, resp)["message"])
}

func TestLogin(t *testing.T) {
	env := setupApp(t)
	env.register(t, "Ada", "ada@example.com", "secret1")

	resp := env.do(t, http.MethodPost, "/api/users/login", map[string]string{
		"email": "ada@example.com", "password": "secret1",
	}, nil)
	assert.Equal(t, http.StatusOK, resp.StatusCode)
	require.NotNil(t, sessionCookie(resp))
	body := decode(t, resp)
	assert.Equal(t, "ada@example.com", body["email"])
	assert.NotEmpty(t, body["token"])

	resp = env.do(t, http.MethodPost, "/api/users/login", map[string]string{
		"email": "ada@example.com", "password": "wrong12",
	}, nil)
	assert.Equal(t, http.StatusUnauthorized, resp.StatusCode)
	assert.Equal(t, "Invalid email or password", decode(t, resp)["message"])
	assert.Nil(t, sessionCookie(resp))

	resp = env.do(t, http.MethodPost, "/api/users/login", map[string]string{
		"email": "nobody@example.com", "password": "secret1",
	}, nil)
	assert.Equal(t, http.StatusNotFound, resp.StatusCode)
	assert.Equal(t, "User not found, please signup", decode(t, resp)["message"])
}

func TestLoginStatusAndLogout(t *testing.T) {
	env := setupApp(t)
	cookie := env.register(t, "Ada", "ada@example.com", "secret1")

	readBool := func(resp *http.Response) string {
		raw, err := io.ReadAll(resp.Body)
		require.NoError(t, err)
		return strings.TrimSpace(string(raw))
	}

	resp := env.do(t, http.MethodGet, "/api/users/loggedin", nil, nil)
	assert.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Equal(t, "false", readBool(resp))

	resp = env.do(t, http.MethodGet, "/api/users/loggedin", nil, cookie)
	assert.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Equal(t, "true", readBool(resp))

	resp = env.do(t, http.MethodGet, "/api/users/loggedin", nil, &http.Cookie{Name: middleware.SessionCookie, Value: cookie.Value + "x"})
	assert.Equal(t, "false", readBool(resp))

	resp = env.do(t, http.MethodGet, "/api/users/logout", nil, cookie)
	assert.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Equal(t, "Successfully Logged Out", decode(t, resp)["message"])
	cleared := sessionCookie(resp)
	require.NotNil(t, cleared)
	assert.Empty(t, cleared.Value)
	assert.True(t, cleared.Expires.Before(time.Now()))
}

func TestGetUser(t *testing.T) {
	env := setupApp(t)
	cookie := env.register(t, "Ada", "ada@example.com", "secret1")

	resp := env.do(t, http.MethodGet, "/api/users/getuser", nil, cookie)
	assert.Equal(t, http.StatusOK, resp.StatusCode)
	body := decode(t, resp)
	assert.Equal(t, "Ada", body["name"])
	assert.NotContains(t, body, "password")
	assert.NotContains(t, body, "token")

	resp = env.do(t, http.MethodGet, "/api/users/getuser", nil, nil)
	assert.Equal(t, http.StatusUnauthorized, resp.StatusCode)
	assert.Equal(t, "Not authorized, please login", decode(t, resp)["message"])
}

func TestUpdateUser(t *testing.T) {
	env := setupApp(t)
	cookie := env.register(t, "Ada", "ada@example.com", "secret1")

	resp := env.do(t, http.MethodPatch, "/api/users/updateuser", map[string]string{
		"bio":   "Mathematician",
		"phone": "+2348000000000",
		"email": "hijack@example.com",
	}, cookie)
	assert.Equal(t, http.StatusOK, resp.StatusCode)
	body := decode(t, resp)
	assert.Equal(t, "Mathematician", body["bio"])
	assert.Equal(t, "+2348000000000", body["phone"])
	assert.Equal(t, "Ada", body["name"])
	assert.Equal(t, "ada@example.com", body["email"])

	resp = env.do(t, http.MethodPatch, "/api/users/updateuser", map[string]string{
		"bio": strings.Repeat("b", 251),
	}, cookie)
	assert.Equal(t, http.StatusBadRequest, resp.StatusCode)
	assert.Equal(t, "Bio must not be more than 250 characters", decode(t, resp)["message"])

	resp = env.do(t, http.MethodPatch, "/api/users/updateuser", map[string]string{"bio": "x"}, nil)
	assert.Equal(t, http.StatusUnauthorized, resp.StatusCode)
}

func TestChangePassword(t *testing.T) {
	env := setupApp(t)
	cookie := env.register(t, "Ada", "ada@example.com", "secret1")

	resp := env.do(t, http.MethodPatch, "/api/users/changepassword", map[string]string{
		"oldPassword": "wrong12", "password": "newsecret",
	}, cookie)
	assert.Equal(t, http.StatusUnauthorized, resp.StatusCode)
	assert.Equal(t, "Old password is incorrect", decode(t, resp)["message"])

	resp = env.do(t, http.MethodPatch, "/api/users/changepassword", map[string]string{
		"oldPassword": "secret1", "password": "newsecret",
	}, cookie)
	assert.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Equal(t, "Password change successful", decode(t, resp)["message"])

	resp = env.do(t, http.MethodPost, "/api/users/login", map[string]string{
		"email": "ada@example.com", "password": "newsecret",
	}, nil)
	assert.Equal(t, http.StatusOK, resp.StatusCode)
}

func TestForgotAndResetPassword(t *testing.T) {
	env := setupApp(t)
	env.register(t, "Ada", "ada@example.com", "secret1")

	var user models.User
	require.NoError(t, env.db.First(&user, "email = ?", "ada@example.com").Error)

	resp := env.do(t, http.MethodPost, "/api/users/forgotpassword", map[string]string{"email": "ada@example.com"}, nil)
	assert.Equal(t, http.StatusOK, resp.StatusCode)
	body := decode(t, resp)
	assert.Equal(t, true, body["success"])
	assert.Equal(t, "Reset Email Sent", body["message"])

	var tokens []models.ResetToken
	require.NoError(t, env.db.Where("user_id = ?", user.ID).Find(&tokens).Error)
	require.Len(t, tokens, 1)
	assert.WithinDuration(t, time.Now().Add(30*time.Minute), tokens[0].ExpiresAt, time.Minute)

	first := env.outbox.lastResetToken(t)
	assert.NotEqual(t, first, tokens[0].TokenHash)

	// A second request replaces the first token.
	resp = env.do(t, http.MethodPost, "/api/users/forgotpassword", map[string]string{"email": "ada@example.com"}, nil)
	assert.Equal(t, http.StatusOK, resp.StatusCode)
	require.NoError(t, env.db.Where("user_id = ?", user.ID).Find(&tokens).Error)
	require.Len(t, tokens, 1)
	second := env.outbox.lastResetToken(t)

	resp = env.do(t, http.MethodPut, "/api/users/resetpassword/"+first, map[string]string{"password": "newsecret"}, nil)
	assert.Equal(t, http.StatusNotFound, resp.StatusCode)
	assert.Equal(t, "Invalid or expired token", decode(t, resp)["message"])

	resp = env.do(t, http.MethodPut, "/api/users/resetpassword/"+second, map[string]string{"password": "newsecret"}, nil)
	assert.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Equal(t, "Password Reset Successful, Please Login", decode(t, resp)["message"])

	resp = env.do(t, http.MethodPut, "/api/users/resetpassword/"+second, map[string]string{"password": "another1"}, nil)
	assert.Equal(t, http.StatusNotFound, resp.StatusCode)

	var count int64
	require.NoError(t, env.db.Model(&models.ResetToken{}).Where("user_id = ?", user.ID).Count(&count).Error)
	assert.Zero(t, count)

	resp = env.do(t, http.MethodPost, "/api/users/login", map[string]string{
		"email": "ada@example.com", "password": "newsecret",
	}, nil)
	assert.Equal(t, http.StatusOK, resp.StatusCode)
}

func TestForgotPasswordFailures(t *testing.T) {
	env := setupApp(t)
	env.register(t, "Ada", "ada@example.com", "secret1")

	resp := env.do(t, http.MethodPost, "/api/users/forgotpassword", map[string]string{"email": "nobody@example.com"}, nil)
	assert.Equal(t, http.StatusNotFound, resp.StatusCode)
	assert.Equal(t, "User does not exist", decode(t, resp)["message"])

	env.outbox.err = assert.AnError
	resp = env.do(t, http.MethodPost, "/api/users/forgotpassword", map[string]string{"email": "ada@example.com"}, nil)
	assert.Equal(t, http.StatusInternalServerError, resp.StatusCode)
	assert.Equal(t, "Email not sent, please try again", decode(t, resp)["message"])
}

func TestUnknownRoute(t *testing.T) {
	env := setupApp(t)

	resp := env.do(t, http.MethodGet, "/api/users/nothing", nil, nil)
	assert.Equal(t, http.StatusNotFound, resp.StatusCode)
	assert.NotEmpty(t, decode(t, resp)["message"])
}
