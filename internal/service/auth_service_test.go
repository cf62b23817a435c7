package service

import (
	"context"
	"testing"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"golang.org/x/crypto/bcrypt"

	"github.com/stemsi/exstem-proctor/internal/config"
	"github.com/stemsi/exstem-proctor/internal/model"
)

func newAuth() *AuthService {
	cfg := &config.Config{JWTSecret: "test-secret", JWTExpiry: time.Hour, BcryptCost: bcrypt.MinCost}
	return NewAuthService(cfg, newFakeUsers(), zerolog.Nop())
}

func TestRegisterAndLogin(t *testing.T) {
	svc := newAuth()
	ctx := context.Background()

	u, err := svc.Register(ctx, &model.RegisterRequest{Email: " Taker@Example.com ", Password: "hunter22"})
	require.NoError(t, err)
	assert.Equal(t, "taker@example.com", u.Email)
	assert.Equal(t, model.RoleStudent, u.Role)
	assert.NotEqual(t, "hunter22", u.PasswordHash)

	_, err = svc.Register(ctx, &model.RegisterRequest{Email: "taker@example.com", Password: "x123456"})
	assert.ErrorIs(t, err, ErrEmailTaken)

	resp, err := svc.Login(ctx, &model.LoginRequest{Email: "taker@example.com", Password: "hunter22"})
	require.NoError(t, err)

	claims, err := svc.ValidateToken(resp.Token)
	require.NoError(t, err)
	assert.Equal(t, model.Identity{UserID: u.ID, Role: model.RoleStudent, Email: u.Email}, claims.Identity())

	me, err := svc.Me(ctx, claims.Identity())
	require.NoError(t, err)
	assert.Equal(t, u.ID, me.ID)
}

func TestLogin_InvalidCredentials(t *testing.T) {
	svc := newAuth()
	ctx := context.Background()
	_, err := svc.Register(ctx, &model.RegisterRequest{Email: "a@b.io", Password: "correct-horse", Role: model.RoleAdmin})
	require.NoError(t, err)

	_, err = svc.Login(ctx, &model.LoginRequest{Email: "a@b.io", Password: "wrong"})
	assert.ErrorIs(t, err, ErrInvalidCredentials)

	_, err = svc.Login(ctx, &model.LoginRequest{Email: "nobody@b.io", Password: "correct-horse"})
	assert.ErrorIs(t, err, ErrInvalidCredentials)
}

func TestValidateToken_Rejects(t *testing.T) {
	svc := newAuth()
	u := &model.User{ID: 3, Email: "x@y.z", Role: model.RoleAdmin}

	good, err := svc.GenerateToken(u)
	require.NoError(t, err)

	other := NewAuthService(&config.Config{JWTSecret: "other", JWTExpiry: time.Hour}, newFakeUsers(), zerolog.Nop())
	_, err = other.ValidateToken(good)
	assert.Error(t, err, "wrong secret")

	expired := jwt.NewWithClaims(jwt.SigningMethodHS256, Claims{
		RegisteredClaims: jwt.RegisteredClaims{ExpiresAt: jwt.NewNumericDate(time.Now().Add(-time.Minute))},
		UserID:           3,
		Role:             model.RoleAdmin,
	})
	signed, err := expired.SignedString([]byte("test-secret"))
	require.NoError(t, err)
	_, err = svc.ValidateToken(signed)
	assert.ErrorIs(t, err, jwt.ErrTokenExpired)

	badRole := jwt.NewWithClaims(jwt.SigningMethodHS256, Claims{UserID: 3, Role: "ROOT"})
	signed, err = badRole.SignedString([]byte("test-secret"))
	require.NoError(t, err)
	_, err = svc.ValidateToken(signed)
	assert.Error(t, err)
}

func TestResetPassword(t *testing.T) {
	svc := newAuth()
	ctx := context.Background()
	_, err := svc.Register(ctx, &model.RegisterRequest{Email: "root@b.io", Password: "old-secret", Role: model.RoleAdmin})
	require.NoError(t, err)

	_, err = svc.ResetPassword(ctx, "root@b.io", "new-secret")
	require.NoError(t, err)

	_, err = svc.Login(ctx, &model.LoginRequest{Email: "root@b.io", Password: "old-secret"})
	assert.ErrorIs(t, err, ErrInvalidCredentials)
	_, err = svc.Login(ctx, &model.LoginRequest{Email: "root@b.io", Password: "new-secret"})
	assert.NoError(t, err)

	_, err = svc.ResetPassword(ctx, "ghost@b.io", "whatever")
	assert.ErrorIs(t, err, ErrInvalidCredentials)
}
