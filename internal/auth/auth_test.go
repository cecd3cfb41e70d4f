package auth

import (
	"errors"
	"testing"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const testSecret = "0123456789abcdef0123456789abcdef"

func TestGenerateAndValidate(t *testing.T) {
	m := NewJWTManager(testSecret, time.Hour)

	token, err := m.GenerateToken("ops-bot", []string{RoleOperator})
	require.NoError(t, err)

	claims, err := m.ValidateToken(token)
	require.NoError(t, err)
	assert.Equal(t, "ops-bot", claims.Subject)
	assert.Equal(t, []string{RoleOperator}, claims.Roles)
	assert.Equal(t, issuer, claims.Issuer)
}

func TestGenerateRejectsBadRoles(t *testing.T) {
	m := NewJWTManager(testSecret, time.Hour)

	_, err := m.GenerateToken("x", nil)
	assert.ErrorIs(t, err, ErrNoRoles)

	_, err = m.GenerateToken("x", []string{"root"})
	assert.ErrorIs(t, err, ErrUnknownRole)
}

func TestValidateRejects(t *testing.T) {
	m := NewJWTManager(testSecret, time.Hour)
	good, err := m.GenerateToken("alice", []string{RoleViewer})
	require.NoError(t, err)

	other := NewJWTManager("ffffffffffffffffffffffffffffffff", time.Hour)
	foreign, err := other.GenerateToken("alice", []string{RoleAdmin})
	require.NoError(t, err)

	expired := NewJWTManager(testSecret, time.Hour)
	expired.now = func() time.Time { return time.Now().Add(-2 * time.Hour) }
	stale, err := expired.GenerateToken("alice", []string{RoleAdmin})
	require.NoError(t, err)

	none := jwt.NewWithClaims(jwt.SigningMethodNone, Claims{
		Roles: []string{RoleAdmin},
		RegisteredClaims: jwt.RegisteredClaims{
			Issuer:    issuer,
			ExpiresAt: jwt.NewNumericDate(time.Now().Add(time.Hour)),
		},
	})
	unsigned, err := none.SignedString(jwt.UnsafeAllowNoneSignatureType)
	require.NoError(t, err)

	tests := []struct {
		name  string
		token string
		ok    bool
	}{
		{"valid", good, true},
		{"wrong secret", foreign, false},
		{"expired", stale, false},
		{"alg none", unsigned, false},
		{"garbage", "not.a.token", false},
		{"empty", "", false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := m.ValidateToken(tt.token)
			if tt.ok {
				assert.NoError(t, err)
				return
			}
			assert.True(t, errors.Is(err, ErrInvalidToken), "got %v", err)
		})
	}
}

func TestHasPermission(t *testing.T) {
	tests := []struct {
		roles []string
		perm  string
		want  bool
	}{
		{[]string{RoleAdmin}, PermissionDelete, true},
		{[]string{RoleOperator}, PermissionDelete, true},
		{[]string{RoleViewer}, PermissionDelete, false},
		{[]string{RoleViewer}, PermissionViewHistory, true},
		{[]string{RoleViewer}, PermissionMonitor, true},
		{[]string{"ghost", RoleViewer}, PermissionMonitor, true},
		{[]string{"ghost"}, PermissionViewHistory, false},
		{nil, PermissionViewHistory, false},
	}
	for _, tt := range tests {
		assert.Equal(t, tt.want, HasPermission(tt.roles, tt.perm), "%v %s", tt.roles, tt.perm)
	}
}

func TestRequirePermission(t *testing.T) {
	check := RequirePermission(PermissionDelete)
	assert.NoError(t, check(&Claims{Roles: []string{RoleAdmin}}))
	assert.ErrorIs(t, check(&Claims{Roles: []string{RoleViewer}}), ErrUnauthorized)
	assert.ErrorIs(t, check(nil), ErrUnauthorized)
}
