package handlers

import (
	"bytes"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/gin-contrib/sessions"
	"github.com/gin-contrib/sessions/cookie"
	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/require"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"

	"github.com/taskstream/taskstream-api/internal/middleware"
	"github.com/taskstream/taskstream-api/internal/models"
	"github.com/taskstream/taskstream-api/internal/repository"
	"github.com/taskstream/taskstream-api/internal/services"
)

type authTestEnv struct {
	router  *gin.Engine
	handler *AuthHandler
}

// setupAuthTestEnv builds a router with cookie-backed sessions around the
// auth routes.
func setupAuthTestEnv(t *testing.T) *authTestEnv {
	gin.SetMode(gin.TestMode)

	db, err := gorm.Open(sqlite.Open(":memory:"), &gorm.Config{})
	require.NoError(t, err)

	err = db.AutoMigrate(&models.User{})
	require.NoError(t, err)

	t.Cleanup(func() {
		sqlDB, err := db.DB()
		require.NoError(t, err)
		sqlDB.Close()
	})

	handler := NewAuthHandler(services.NewAuthService(repository.NewUserRepository(db)))

	router := gin.New()
	store := cookie.NewStore([]byte("test-secret"))
	router.Use(sessions.Sessions("task_session", store))

	auth := router.Group("/api/auth")
	{
		auth.POST("/signup", handler.Signup)
		auth.POST("/login", handler.Login)
		auth.POST("/logout", handler.Logout)
		auth.GET("/me", middleware.RequireAuth(), handler.GetCurrentUser)
	}
	router.GET("/api/users", middleware.RequireAuth(), handler.ListUsers)

	return &authTestEnv{router: router, handler: handler}
}

func (env *authTestEnv) request(t *testing.T, method, target string, body interface{}, cookies []*http.Cookie) *httptest.ResponseRecorder {
	var buf bytes.Buffer
	if body != nil {
		require.NoError(t, json.NewEncoder(&buf).Encode(body))
	}
	req := httptest.NewRequest(method, target, &buf)
	req.Header.Set("Content-Type", "application/json")
	for _, c := range cookies {
		req.AddCookie(c)
	}

	w := httptest.NewRecorder()
	env.router.ServeHTTP(w, req)
	return w
}

func decodeEnvelope(t *testing.T, w *httptest.ResponseRecorder) map[string]interface{} {
	var envelope map[string]interface{}
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &envelope))
	return envelope
}

func TestSignupEndpoint(t *testing.T) {
	env := setupAuthTestEnv(t)

	w := env.request(t, http.MethodPost, "/api/auth/signup", gin.H{
		"email":    "alice@example.com",
		"name":     "Alice",
		"password": "password123",
	}, nil)

	require.Equal(t, http.StatusCreated, w.Code)
	envelope := decodeEnvelope(t, w)
	require.Equal(t, true, envelope["success"])

	data := envelope["data"].(map[string]interface{})
	require.Equal(t, "alice@example.com", data["email"])
	require.Equal(t, "Alice", data["name"])
	// The password hash is never serialized.
	require.NotContains(t, w.Body.String(), "password")
}

func TestSignupEndpoint_DuplicateEmail(t *testing.T) {
	env := setupAuthTestEnv(t)

	body := gin.H{"email": "alice@example.com", "name": "Alice", "password": "password123"}
	w := env.request(t, http.MethodPost, "/api/auth/signup", body, nil)
	require.Equal(t, http.StatusCreated, w.Code)

	w = env.request(t, http.MethodPost, "/api/auth/signup", body, nil)
	require.Equal(t, http.StatusConflict, w.Code)
	require.Equal(t, "ALREADY_EXISTS", decodeEnvelope(t, w)["code"])
}

func TestSignupEndpoint_InvalidBody(t *testing.T) {
	env := setupAuthTestEnv(t)

	w := env.request(t, http.MethodPost, "/api/auth/signup", gin.H{
		"email":    "not-an-email",
		"name":     "Alice",
		"password": "password123",
	}, nil)
	require.Equal(t, http.StatusBadRequest, w.Code)
}

func TestLoginEndpoint_SessionFlow(t *testing.T) {
	env := setupAuthTestEnv(t)

	w := env.request(t, http.MethodPost, "/api/auth/signup", gin.H{
		"email":    "alice@example.com",
		"name":     "Alice",
		"password": "password123",
	}, nil)
	require.Equal(t, http.StatusCreated, w.Code)

	// Without a session, /me is rejected.
	w = env.request(t, http.MethodGet, "/api/auth/me", nil, nil)
	require.Equal(t, http.StatusUnauthorized, w.Code)

	w = env.request(t, http.MethodPost, "/api/auth/login", gin.H{
		"email":    "alice@example.com",
		"password": "password123",
	}, nil)
	require.Equal(t, http.StatusOK, w.Code)
	cookies := w.Result().Cookies()
	require.NotEmpty(t, cookies)

	// The session cookie authenticates subsequent requests.
	w = env.request(t, http.MethodGet, "/api/auth/me", nil, cookies)
	require.Equal(t, http.StatusOK, w.Code)
	data := decodeEnvelope(t, w)["data"].(map[string]interface{})
	require.Equal(t, "alice@example.com", data["email"])

	// Logout invalidates the session.
	w = env.request(t, http.MethodPost, "/api/auth/logout", nil, cookies)
	require.Equal(t, http.StatusOK, w.Code)
	cleared := w.Result().Cookies()

	w = env.request(t, http.MethodGet, "/api/auth/me", nil, cleared)
	require.Equal(t, http.StatusUnauthorized, w.Code)
}

func TestLoginEndpoint_InvalidCredentials(t *testing.T) {
	env := setupAuthTestEnv(t)

	w := env.request(t, http.MethodPost, "/api/auth/signup", gin.H{
		"email":    "alice@example.com",
		"name":     "Alice",
		"password": "password123",
	}, nil)
	require.Equal(t, http.StatusCreated, w.Code)

	w = env.request(t, http.MethodPost, "/api/auth/login", gin.H{
		"email":    "alice@example.com",
		"password": "wrongpassword",
	}, nil)
	require.Equal(t, http.StatusUnauthorized, w.Code)
	require.Equal(t, "INVALID_CREDENTIALS", decodeEnvelope(t, w)["code"])
}

func TestListUsersEndpoint(t *testing.T) {
	env := setupAuthTestEnv(t)

	for _, email := range []string{"a@example.com", "b@example.com"} {
		w := env.request(t, http.MethodPost, "/api/auth/signup", gin.H{
			"email":    email,
			"name":     email,
			"password": "password123",
		}, nil)
		require.Equal(t, http.StatusCreated, w.Code)
	}

	w := env.request(t, http.MethodPost, "/api/auth/login", gin.H{
		"email":    "a@example.com",
		"password": "password123",
	}, nil)
	require.Equal(t, http.StatusOK, w.Code)
	cookies := w.Result().Cookies()

	w = env.request(t, http.MethodGet, "/api/users", nil, cookies)
	require.Equal(t, http.StatusOK, w.Code)
	data := decodeEnvelope(t, w)["data"].([]interface{})
	require.Len(t, data, 2)
}
