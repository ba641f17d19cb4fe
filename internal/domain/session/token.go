package session

import (
	stderrors "errors"
	"fmt"
	"time"

	"github.com/golang-jwt/jwt/v5"
)

// CookieName is the browser cookie carrying the signed session token.
const CookieName = "ip_session"

const tokenIssuer = "image-processor"

// TokenSigner signs and verifies session id tokens (HS256 JWT).
type TokenSigner struct {
	secretKey []byte
	ttl       time.Duration
}

// NewTokenSigner builds a signer using the provided secret.
func NewTokenSigner(secretKey string, ttl time.Duration) (*TokenSigner, error) {
	if secretKey == "" {
		return nil, stderrors.New("session token secret is empty")
	}
	if ttl <= 0 {
		ttl = 24 * time.Hour
	}
	return &TokenSigner{secretKey: []byte(secretKey), ttl: ttl}, nil
}

// TTL returns the token lifetime.
func (ts *TokenSigner) TTL() time.Duration {
	return ts.ttl
}

// Issue returns a signed token for sessionID.
func (ts *TokenSigner) Issue(sessionID string) (string, error) {
	now := time.Now()
	claims := jwt.RegisteredClaims{
		Subject:   sessionID,
		Issuer:    tokenIssuer,
		IssuedAt:  jwt.NewNumericDate(now),
		ExpiresAt: jwt.NewNumericDate(now.Add(ts.ttl)),
	}
	token := jwt.NewWithClaims(jwt.SigningMethodHS256, claims)
	signed, err := token.SignedString(ts.secretKey)
	if err != nil {
		return "", fmt.Errorf("failed to sign token: %w", err)
	}
	return signed, nil
}

// Parse validates tokenString and returns the session id it carries.
func (ts *TokenSigner) Parse(tokenString string) (string, error) {
	id, _, err := ts.ParseIssued(tokenString)
	return id, err
}

// ParseIssued is Parse that also reports when the token was issued.
func (ts *TokenSigner) ParseIssued(tokenString string) (string, time.Time, error) {
	claims := &jwt.RegisteredClaims{}
	token, err := jwt.ParseWithClaims(tokenString, claims, func(*jwt.Token) (interface{}, error) {
		return ts.secretKey, nil
	},
		jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}),
		jwt.WithIssuer(tokenIssuer),
		jwt.WithExpirationRequired(),
	)
	if err != nil {
		return "", time.Time{}, fmt.Errorf("failed to parse token: %w", err)
	}
	if !token.Valid || claims.Subject == "" {
		return "", time.Time{}, stderrors.New("invalid token")
	}
	var issued time.Time
	if claims.IssuedAt != nil {
		issued = claims.IssuedAt.Time
	}
	return claims.Subject, issued, nil
}
