package http

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/sirupsen/logrus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"espresso-tracker/internal/repository/sqlite"
	"espresso-tracker/internal/service"
	"espresso-tracker/internal/token"
)

type sentMail struct {
	To      string
	Subject string
	Body    string
}

type fakeMailer struct {
	sent []sentMail
}

func (f *fakeMailer) Send(_ context.Context, to, subject, body string) error {
	f.sent = append(f.sent, sentMail{To: to, Subject: subject, Body: body})
	return nil
}

type testEnv struct {
	router *gin.Engine
	mails  *fakeMailer
}

func setupAPI(t *testing.T) *testEnv {
	t.Helper()
	gin.SetMode(gin.TestMode)

	db, err := sqlite.Open(":memory:")
	require.NoError(t, err)
	t.Cleanup(func() { _ = db.Close() })

	ctx := context.Background()
	userRepo := sqlite.NewUserRepository(db)
	require.NoError(t, userRepo.Init(ctx))
	entryRepo := sqlite.NewEntryRepository(db)
	require.NoError(t, entryRepo.Init(ctx))

	mails := &fakeMailer{}
	logger := logrus.New()
	tokens := token.NewManager("test-secret", time.Hour, time.Hour)

	handler := NewHandler(
		service.NewUserService(userRepo),
		service.NewEntryService(entryRepo),
		tokens,
		mails,
		nil,
		"", "",
		"data/test.db",
		"http://localhost:8080",
		logger,
	)

	router := gin.New()
	handler.RegisterRoutes(router)
	return &testEnv{router: router, mails: mails}
}

func (e *testEnv) do(t *testing.T, method, path, bearer string, body any) *httptest.ResponseRecorder {
	t.Helper()
	var buf bytes.Buffer
	if body != nil {
		require.NoError(t, json.NewEncoder(&buf).Encode(body))
	}
	req := httptest.NewRequest(method, path, &buf)
	req.Header.Set("Content-Type", "application/json")
	if bearer != "" {
		req.Header.Set("Authorization", "Bearer "+bearer)
	}
	w := httptest.NewRecorder()
	e.router.ServeHTTP(w, req)
	return w
}

func decode(t *testing.T, w *httptest.ResponseRecorder) map[string]any {
	t.Helper()
	var out map[string]any
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &out))
	return out
}

func (e *testEnv) registerUser(t *testing.T, email string) string {
	t.Helper()
	w := e.do(t, http.MethodPost, "/api/auth/register", "", gin.H{
		"email": email, "password": "espresso1",
	})
	require.Equal(t, http.StatusCreated, w.Code, w.Body.String())
	tok, _ := decode(t, w)["token"].(string)
	require.NotEmpty(t, tok)
	return tok
}

func (e *testEnv) addEntry(t *testing.T, bearer, coffee string, in, out float64) int64 {
	t.Helper()
	w := e.do(t, http.MethodPost, "/api/entries", bearer, gin.H{
		"coffee":          coffee,
		"grinder_setting": "2.5",
		"input_weight":    in,
		"output_weight":   out,
	})
	require.Equal(t, http.StatusCreated, w.Code, w.Body.String())
	id, _ := decode(t, w)["id"].(float64)
	require.Positive(t, id)
	return int64(id)
}

func TestRegisterAndLogin(t *testing.T) {
	env := setupAPI(t)

	env.registerUser(t, "barista@example.com")

	w := env.do(t, http.MethodPost, "/api/auth/register", "", gin.H{
		"email": "Barista@example.com", "password": "espresso1",
	})
	assert.Equal(t, http.StatusConflict, w.Code)

	w = env.do(t, http.MethodPost, "/api/auth/login", "", gin.H{
		"email": "barista@example.com", "password": "espresso1",
	})
	assert.Equal(t, http.StatusOK, w.Code)

	w = env.do(t, http.MethodPost, "/api/auth/login", "", gin.H{
		"email": "barista@example.com", "password": "wrongpass",
	})
	assert.Equal(t, http.StatusUnauthorized, w.Code)
}

func TestEntryLifecycleAndRatio(t *testing.T) {
	env := setupAPI(t)
	bearer := env.registerUser(t, "barista@example.com")

	id := env.addEntry(t, bearer, "Kenya", 18, 36)

	w := env.do(t, http.MethodGet, fmt.Sprintf("/api/entries/%d", id), bearer, nil)
	require.Equal(t, http.StatusOK, w.Code)
	resp := decode(t, w)
	entry := resp["entry"].(map[string]any)
	assert.InDelta(t, 2.0, entry["extraction_ratio"].(float64), 1e-9)
	assert.Equal(t, true, resp["is_owner"])

	// anonymous readers see the entry but own nothing
	w = env.do(t, http.MethodGet, fmt.Sprintf("/api/entries/%d", id), "", nil)
	require.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, false, decode(t, w)["is_owner"])

	w = env.do(t, http.MethodDelete, fmt.Sprintf("/api/entries/%d", id), bearer, nil)
	require.Equal(t, http.StatusOK, w.Code)

	w = env.do(t, http.MethodGet, fmt.Sprintf("/api/entries/%d", id), "", nil)
	assert.Equal(t, http.StatusNotFound, w.Code)
}

func TestEntryMutationRequiresAuth(t *testing.T) {
	env := setupAPI(t)

	w := env.do(t, http.MethodPost, "/api/entries", "", gin.H{
		"coffee": "Kenya", "grinder_setting": "2", "input_weight": 18.0, "output_weight": 36.0,
	})
	assert.Equal(t, http.StatusUnauthorized, w.Code)
}

func TestEntryMutationByNonOwner(t *testing.T) {
	env := setupAPI(t)
	alice := env.registerUser(t, "alice@example.com")
	bob := env.registerUser(t, "bob@example.com")

	id := env.addEntry(t, alice, "Kenya", 18, 36)

	w := env.do(t, http.MethodPut, fmt.Sprintf("/api/entries/%d", id), bob, gin.H{
		"coffee": "Stolen", "grinder_setting": "9", "input_weight": 1.0, "output_weight": 1.0,
	})
	assert.Equal(t, http.StatusForbidden, w.Code)

	w = env.do(t, http.MethodDelete, fmt.Sprintf("/api/entries/%d", id), bob, nil)
	assert.Equal(t, http.StatusForbidden, w.Code)

	// entry survives untouched
	w = env.do(t, http.MethodGet, fmt.Sprintf("/api/entries/%d", id), "", nil)
	require.Equal(t, http.StatusOK, w.Code)
	entry := decode(t, w)["entry"].(map[string]any)
	assert.Equal(t, "Kenya", entry["coffee"])
}

func TestListEntriesPartition(t *testing.T) {
	env := setupAPI(t)
	alice := env.registerUser(t, "alice@example.com")
	bob := env.registerUser(t, "bob@example.com")

	env.addEntry(t, alice, "Kenya", 18, 36)
	env.addEntry(t, bob, "Kenya", 17, 34)

	w := env.do(t, http.MethodGet, "/api/entries?coffee=Kenya", alice, nil)
	require.Equal(t, http.StatusOK, w.Code)
	resp := decode(t, w)
	assert.Len(t, resp["mine"], 1)
	assert.Len(t, resp["community"], 1)

	w = env.do(t, http.MethodGet, "/api/entries?coffee=Kenya", "", nil)
	require.Equal(t, http.StatusOK, w.Code)
	resp = decode(t, w)
	assert.Len(t, resp["mine"], 0)
	assert.Len(t, resp["community"], 2)
}

func TestListCoffees(t *testing.T) {
	env := setupAPI(t)
	bearer := env.registerUser(t, "barista@example.com")

	env.addEntry(t, bearer, "Kenya", 18, 36)
	env.addEntry(t, bearer, "Brazil", 18, 36)
	env.addEntry(t, bearer, "Kenya", 18, 38)

	w := env.do(t, http.MethodGet, "/api/coffees", "", nil)
	require.Equal(t, http.StatusOK, w.Code)
	var coffees []string
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &coffees))
	assert.Equal(t, []string{"Brazil", "Kenya"}, coffees)
}

func TestCreateEntryValidation(t *testing.T) {
	env := setupAPI(t)
	bearer := env.registerUser(t, "barista@example.com")

	// missing output weight never reaches the domain layer
	w := env.do(t, http.MethodPost, "/api/entries", bearer, gin.H{
		"coffee": "Kenya", "grinder_setting": "2", "input_weight": 18.0,
	})
	assert.Equal(t, http.StatusBadRequest, w.Code)
}

func TestPasswordResetFlow(t *testing.T) {
	env := setupAPI(t)
	env.registerUser(t, "barista@example.com")

	// unknown addresses get the same answer and no mail
	w := env.do(t, http.MethodPost, "/api/auth/forgot-password", "", gin.H{"email": "nobody@example.com"})
	assert.Equal(t, http.StatusAccepted, w.Code)
	assert.Empty(t, env.mails.sent)

	w = env.do(t, http.MethodPost, "/api/auth/forgot-password", "", gin.H{"email": "barista@example.com"})
	assert.Equal(t, http.StatusAccepted, w.Code)
	require.Len(t, env.mails.sent, 1)
	assert.Equal(t, "barista@example.com", env.mails.sent[0].To)

	resetToken := tokenFromMail(t, env.mails.sent[0].Body)

	w = env.do(t, http.MethodPost, "/api/auth/reset-password", "", gin.H{
		"token": resetToken, "password": "newpass1",
	})
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())

	w = env.do(t, http.MethodPost, "/api/auth/login", "", gin.H{
		"email": "barista@example.com", "password": "espresso1",
	})
	assert.Equal(t, http.StatusUnauthorized, w.Code)

	w = env.do(t, http.MethodPost, "/api/auth/login", "", gin.H{
		"email": "barista@example.com", "password": "newpass1",
	})
	assert.Equal(t, http.StatusOK, w.Code)
}

func TestResetPasswordRejectsBadToken(t *testing.T) {
	env := setupAPI(t)

	w := env.do(t, http.MethodPost, "/api/auth/reset-password", "", gin.H{
		"token": "garbage", "password": "newpass1",
	})
	assert.Equal(t, http.StatusBadRequest, w.Code)
}

func TestBackupsUnavailableWhenNotConfigured(t *testing.T) {
	env := setupAPI(t)
	bearer := env.registerUser(t, "barista@example.com")

	w := env.do(t, http.MethodPost, "/api/backups", bearer, nil)
	assert.Equal(t, http.StatusServiceUnavailable, w.Code)

	w = env.do(t, http.MethodGet, "/api/backups", bearer, nil)
	assert.Equal(t, http.StatusServiceUnavailable, w.Code)
}

func tokenFromMail(t *testing.T, body string) string {
	t.Helper()
	idx := strings.Index(body, "token=")
	require.GreaterOrEqual(t, idx, 0, "mail body must contain the reset link")
	rest := body[idx+len("token="):]
	if end := strings.IndexAny(rest, "\n \t"); end >= 0 {
		rest = rest[:end]
	}
	require.NotEmpty(t, rest)
	return rest
}
