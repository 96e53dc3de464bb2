package middleware

import (
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/go-playground/assert/v2"
	"github.com/golang-jwt/jwt/v5"
)

const testSecret = "test-secret"

func sign(t *testing.T, userID uint64, typ string, ttl time.Duration) string {
	t.Helper()
	claims := &Claims{
		UserID:   userID,
		Username: "alice",
		Type:     typ,
		RegisteredClaims: jwt.RegisteredClaims{
			ExpiresAt: jwt.NewNumericDate(time.Now().Add(ttl)),
		},
	}
	s, err := jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString([]byte(testSecret))
	if err != nil {
		t.Fatalf("sign token: %v", err)
	}
	return s
}

func newRouter(cfg AuthConfig) *gin.Engine {
	gin.SetMode(gin.TestMode)
	r := gin.New()
	r.Use(AuthMiddleware(cfg, nil))
	r.GET("/me", func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{"userId": c.GetUint64("userId"), "username": c.GetString("username")})
	})
	return r
}

func TestLocalAuthAcceptsBearerAndQuery(t *testing.T) {
	r := newRouter(AuthConfig{Secret: testSecret})
	token := sign(t, 42, "access", time.Minute)

	w := httptest.NewRecorder()
	req := httptest.NewRequest(http.MethodGet, "/me", nil)
	req.Header.Set("Authorization", "Bearer "+token)
	r.ServeHTTP(w, req)
	assert.Equal(t, w.Code, http.StatusOK)
	assert.Equal(t, w.Body.String(), `{"userId":42,"username":"alice"}`)

	w = httptest.NewRecorder()
	r.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/me?token="+token, nil))
	assert.Equal(t, w.Code, http.StatusOK)
}

func TestLocalAuthRejects(t *testing.T) {
	r := newRouter(AuthConfig{Secret: testSecret})
	cases := map[string]string{
		"missing": "",
		"refresh": sign(t, 42, "refresh", time.Minute),
		"expired": sign(t, 42, "access", -time.Minute),
		"garbage": "not-a-token",
	}
	for name, token := range cases {
		w := httptest.NewRecorder()
		req := httptest.NewRequest(http.MethodGet, "/me", nil)
		if token != "" {
			req.Header.Set("Authorization", "Bearer "+token)
		}
		r.ServeHTTP(w, req)
		if w.Code != http.StatusUnauthorized {
			t.Fatalf("%s: expected 401, got %d", name, w.Code)
		}
	}
}

func TestRemoteAuth(t *testing.T) {
	upstream := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/v1/auth/verify" {
			w.WriteHeader(http.StatusNotFound)
			return
		}
		if r.Header.Get("Authorization") != "Bearer good" {
			w.WriteHeader(http.StatusUnauthorized)
			_, _ = w.Write([]byte(`{"error":"bad token"}`))
			return
		}
		_, _ = w.Write([]byte(`{"userId":7,"username":"bob","type":"access"}`))
	}))
	defer upstream.Close()

	r := newRouter(AuthConfig{Path: upstream.URL + "/"})

	w := httptest.NewRecorder()
	req := httptest.NewRequest(http.MethodGet, "/me", nil)
	req.Header.Set("Authorization", "bearer good")
	r.ServeHTTP(w, req)
	assert.Equal(t, w.Code, http.StatusOK)
	assert.Equal(t, w.Body.String(), `{"userId":7,"username":"bob"}`)

	w = httptest.NewRecorder()
	r.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/me?token=bad", nil))
	assert.Equal(t, w.Code, http.StatusUnauthorized)
}

func TestExtractBearer(t *testing.T) {
	assert.Equal(t, extractBearer("Bearer abc"), "abc")
	assert.Equal(t, extractBearer("BEARER  abc "), "abc")
	assert.Equal(t, extractBearer("Basic abc"), "")
	assert.Equal(t, extractBearer(""), "")
}
