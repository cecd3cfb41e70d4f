package auth

import (
	"errors"
	"fmt"
	"time"

	"github.com/golang-jwt/jwt/v5"
)

const issuer = "folder-deleter"

var (
	ErrInvalidToken = errors.New("invalid or expired token")
	ErrNoRoles      = errors.New("token needs at least one role")
)

// Claims are the JWT claims carried by every token
type Claims struct {
	Roles []string `json:"roles"`
	jwt.RegisteredClaims
}

// JWTManager issues and verifies HS256 tokens
type JWTManager struct {
	secret []byte
	expiry time.Duration
	now    func() time.Time
}

func NewJWTManager(secret string, expiry time.Duration) *JWTManager {
	return &JWTManager{
		secret: []byte(secret),
		expiry: expiry,
		now:    time.Now,
	}
}

// Expiry is the lifetime given to tokens without an explicit ttl
func (m *JWTManager) Expiry() time.Duration {
	return m.expiry
}

// GenerateToken signs a token for subject with the default expiry
func (m *JWTManager) GenerateToken(subject string, roles []string) (string, error) {
	return m.GenerateTokenWithTTL(subject, roles, m.expiry)
}

// GenerateTokenWithTTL signs a token valid for ttl
func (m *JWTManager) GenerateTokenWithTTL(subject string, roles []string, ttl time.Duration) (string, error) {
	if len(roles) == 0 {
		return "", ErrNoRoles
	}
	for _, r := range roles {
		if !ValidRole(r) {
			return "", fmt.Errorf("%w: %s", ErrUnknownRole, r)
		}
	}

	now := m.now()
	claims := Claims{
		Roles: roles,
		RegisteredClaims: jwt.RegisteredClaims{
			Issuer:    issuer,
			Subject:   subject,
			IssuedAt:  jwt.NewNumericDate(now),
			NotBefore: jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(now.Add(ttl)),
		},
	}

	token := jwt.NewWithClaims(jwt.SigningMethodHS256, claims)
	signed, err := token.SignedString(m.secret)
	if err != nil {
		return "", fmt.Errorf("sign token: %w", err)
	}
	return signed, nil
}

// ValidateToken parses tokenString and returns its claims. Only HS256 is accepted.
func (m *JWTManager) ValidateToken(tokenString string) (*Claims, error) {
	claims := &Claims{}
	token, err := jwt.ParseWithClaims(tokenString, claims, func(t *jwt.Token) (interface{}, error) {
		return m.secret, nil
	},
		jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}),
		jwt.WithIssuer(issuer),
		jwt.WithExpirationRequired(),
		jwt.WithTimeFunc(m.now),
	)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidToken, err)
	}
	if !token.Valid {
		return nil, ErrInvalidToken
	}
	return claims, nil
}
