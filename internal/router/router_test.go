package router

import (
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/alicebob/miniredis/v2"
	"github.com/gin-gonic/gin"
	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"

	"github.com/stemsi/exstem-proctor/internal/config"
	"github.com/stemsi/exstem-proctor/internal/handler"
	"github.com/stemsi/exstem-proctor/internal/model"
	"github.com/stemsi/exstem-proctor/internal/service"
)

type stubTokens map[string]model.Role

func (s stubTokens) ValidateToken(tok string) (*service.Claims, error) {
	role, ok := s[tok]
	if !ok {
		return nil, errors.Join(errors.New("parse token"), jwt.ErrTokenSignatureInvalid)
	}
	return &service.Claims{UserID: 1, Role: role, Email: "u@example.com"}, nil
}

func newRouter(t *testing.T) *gin.Engine {
	t.Helper()
	mr := miniredis.RunT(t)
	rdb := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { _ = rdb.Close() })

	log := zerolog.Nop()
	handlers := &Handlers{
		Auth:    handler.NewAuthHandler(nil, log),
		Test:    handler.NewTestHandler(nil, nil, log),
		Result:  handler.NewResultHandler(nil, log),
		Proctor: handler.NewProctorHandler(nil, nil, log, nil),
	}
	cfg := &config.Config{GinMode: gin.TestMode, RateLimitPerMinute: 30}
	tokens := stubTokens{"student": model.RoleStudent, "admin": model.RoleAdmin}
	return SetupRouter(tokens, handlers, rdb, cfg, log)
}

func TestRouter_Guards(t *testing.T) {
	r := newRouter(t)
	id := uuid.NewString()

	tests := []struct {
		name   string
		method string
		path   string
		token  string
		want   int
	}{
		{"health is public", http.MethodGet, "/health", "", http.StatusOK},
		{"tests need a token", http.MethodGet, "/api/v1/tests", "", http.StatusUnauthorized},
		{"bad token", http.MethodGet, "/api/v1/results", "forged", http.StatusUnauthorized},
		{"ws needs a token", http.MethodGet, "/ws/v1/tests/" + id + "/proctor", "", http.StatusUnauthorized},
		{"student cannot author", http.MethodPost, "/api/v1/admin/tests", "student", http.StatusForbidden},
		{"student cannot list submissions", http.MethodGet, "/api/v1/admin/tests/" + id + "/submissions", "student", http.StatusForbidden},
		{"student cannot watch live", http.MethodGet, "/api/v1/admin/tests/" + id + "/proctor/live", "student", http.StatusForbidden},
		{"unknown route", http.MethodGet, "/api/v1/nope", "admin", http.StatusNotFound},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			req := httptest.NewRequest(tt.method, tt.path, nil)
			if tt.token != "" {
				req.Header.Set("Authorization", "Bearer "+tt.token)
			}
			w := httptest.NewRecorder()
			r.ServeHTTP(w, req)
			assert.Equal(t, tt.want, w.Code)
			if tt.want != http.StatusNotFound {
				assert.NotEmpty(t, w.Header().Get("X-Request-ID"))
			}
		})
	}
}
