package identity

import (
	"fmt"
	"time"

	"github.com/golang-jwt/jwt/v5"
)

// tokenClaims is the JWT payload carried by staff identity tokens.
type tokenClaims struct {
	Email      string `json:"email"`
	Role       string `json:"role"`
	Department *int64 `json:"department_id"`
	jwt.RegisteredClaims
}

// Tokens signs and verifies staff identity tokens (HS256).
type Tokens struct {
	signingKey []byte
	ttl        time.Duration
	now        func() time.Time
}

// NewTokens builds a token signer/verifier with the given key and lifetime.
func NewTokens(signingKey string, ttl time.Duration) *Tokens {
	return &Tokens{signingKey: []byte(signingKey), ttl: ttl, now: time.Now}
}

// Issue signs a token for the actor.
func (t *Tokens) Issue(actor Actor) (string, error) {
	now := t.now()
	claims := tokenClaims{
		Email:      actor.Email,
		Role:       string(actor.Role),
		Department: actor.Department,
		RegisteredClaims: jwt.RegisteredClaims{
			IssuedAt:  jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(now.Add(t.ttl)),
		},
	}
	token := jwt.NewWithClaims(jwt.SigningMethodHS256, claims)
	signed, err := token.SignedString(t.signingKey)
	if err != nil {
		return "", fmt.Errorf("sign token: %w", err)
	}
	return signed, nil
}

// Verify parses and validates a token, returning the embedded actor.
func (t *Tokens) Verify(tokenString string) (Actor, error) {
	var claims tokenClaims
	_, err := jwt.ParseWithClaims(tokenString, &claims, func(token *jwt.Token) (any, error) {
		if _, ok := token.Method.(*jwt.SigningMethodHMAC); !ok {
			return nil, fmt.Errorf("unexpected signing method %v", token.Header["alg"])
		}
		return t.signingKey, nil
	}, jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}))
	if err != nil {
		return Actor{}, fmt.Errorf("parse token: %w", err)
	}

	role, err := ParseRole(claims.Role)
	if err != nil {
		return Actor{}, err
	}
	return Actor{Email: claims.Email, Role: role, Department: claims.Department}, nil
}
