package auth

import (
	"errors"
	"time"

	"github.com/golang-jwt/jwt/v5"

	"mcpgate/internal/domain"
)

var (
	ErrInvalidToken     = errors.New("auth: invalid token")
	ErrExpiredToken     = errors.New("auth: token has expired")
	ErrInvalidAlgorithm = errors.New("auth: invalid signing algorithm")
	ErrEmptySecretKey   = errors.New("auth: secret key cannot be empty")
)

// claims is the JWT payload; it embeds domain.AuthClaims so decoded
// tokens convert to the domain type with no copying.
type claims struct {
	domain.AuthClaims
	jwt.RegisteredClaims
}

// TokenService issues and verifies bearer access tokens (C1 auth).
type TokenService struct {
	secret   []byte
	issuer   string
	accessTTL time.Duration
}

func NewTokenService(secret, issuer string, accessTTL time.Duration) (*TokenService, error) {
	if secret == "" {
		return nil, ErrEmptySecretKey
	}
	return &TokenService{secret: []byte(secret), issuer: issuer, accessTTL: accessTTL}, nil
}

// IssueAccessToken signs a short-lived bearer token carrying the
// user's identity and current act-as scope.
func (s *TokenService) IssueAccessToken(ac domain.AuthClaims) (string, time.Time, error) {
	now := time.Now()
	expiresAt := now.Add(s.accessTTL)
	c := claims{
		AuthClaims: ac,
		RegisteredClaims: jwt.RegisteredClaims{
			Issuer:    s.issuer,
			Subject:   ac.UserID,
			ExpiresAt: jwt.NewNumericDate(expiresAt),
			IssuedAt:  jwt.NewNumericDate(now),
			NotBefore: jwt.NewNumericDate(now),
		},
	}
	token := jwt.NewWithClaims(jwt.SigningMethodHS256, c)
	signed, err := token.SignedString(s.secret)
	return signed, expiresAt, err
}

// Verify parses and validates a bearer token, returning the decoded
// claims.
func (s *TokenService) Verify(tokenString string) (*domain.AuthClaims, error) {
	var c claims
	token, err := jwt.ParseWithClaims(tokenString, &c, func(t *jwt.Token) (interface{}, error) {
		if _, ok := t.Method.(*jwt.SigningMethodHMAC); !ok {
			return nil, ErrInvalidAlgorithm
		}
		return s.secret, nil
	})
	if err != nil {
		if errors.Is(err, jwt.ErrTokenExpired) {
			return nil, ErrExpiredToken
		}
		return nil, ErrInvalidToken
	}
	if !token.Valid {
		return nil, ErrInvalidToken
	}
	return &c.AuthClaims, nil
}
