package auth

import (
	"context"
	"errors"
	"fmt"
	"time"

	"courtside/internal/domain"

	"github.com/MicahParks/keyfunc"
	jwtv4 "github.com/golang-jwt/jwt/v4"
	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"
)

var ErrInvalidToken = errors.New("invalid access token")

type Claims struct {
	Identity  domain.Identity
	SessionID string
	ExpiresAt time.Time
}

type Verifier interface {
	Verify(ctx context.Context, token string) (Claims, error)
}

type accessClaims struct {
	Email     string `json:"email"`
	SessionID string `json:"session_id"`
	jwt.RegisteredClaims
}

// HMACVerifier validates HS256 tokens signed with the project's shared secret.
type HMACVerifier struct {
	secret []byte
	issuer string
}

func NewHMACVerifier(secret, issuer string) *HMACVerifier {
	return &HMACVerifier{secret: []byte(secret), issuer: issuer}
}

func (v *HMACVerifier) Verify(_ context.Context, token string) (Claims, error) {
	opts := []jwt.ParserOption{jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}), jwt.WithExpirationRequired()}
	if v.issuer != "" {
		opts = append(opts, jwt.WithIssuer(v.issuer))
	}
	var claims accessClaims
	_, err := jwt.ParseWithClaims(token, &claims, func(t *jwt.Token) (any, error) {
		return v.secret, nil
	}, opts...)
	if err != nil {
		return Claims{}, fmt.Errorf("%w: %v", ErrInvalidToken, err)
	}
	return toClaims(claims.Subject, claims.Email, claims.SessionID, claims.ExpiresAt.Time)
}

type jwksClaims struct {
	Email     string `json:"email"`
	SessionID string `json:"session_id"`
	jwtv4.RegisteredClaims
}

// JWKSVerifier validates asymmetrically signed tokens against the auth
// service's published key set.
type JWKSVerifier struct {
	jwks   *keyfunc.JWKS
	issuer string
}

func NewJWKSVerifier(jwksURL, issuer string) (*JWKSVerifier, error) {
	jwks, err := keyfunc.Get(jwksURL, keyfunc.Options{
		RefreshInterval:   time.Hour,
		RefreshRateLimit:  5 * time.Minute,
		RefreshTimeout:    10 * time.Second,
		RefreshUnknownKID: true,
	})
	if err != nil {
		return nil, fmt.Errorf("load jwks: %w", err)
	}
	return &JWKSVerifier{jwks: jwks, issuer: issuer}, nil
}

func (v *JWKSVerifier) Verify(_ context.Context, token string) (Claims, error) {
	var claims jwksClaims
	parsed, err := jwtv4.ParseWithClaims(token, &claims, v.jwks.Keyfunc)
	if err != nil || !parsed.Valid {
		return Claims{}, fmt.Errorf("%w: %v", ErrInvalidToken, err)
	}
	if v.issuer != "" && !claims.VerifyIssuer(v.issuer, true) {
		return Claims{}, fmt.Errorf("%w: issuer mismatch", ErrInvalidToken)
	}
	if claims.ExpiresAt == nil {
		return Claims{}, fmt.Errorf("%w: missing exp", ErrInvalidToken)
	}
	return toClaims(claims.Subject, claims.Email, claims.SessionID, claims.ExpiresAt.Time)
}

func (v *JWKSVerifier) Close() { v.jwks.EndBackground() }

func toClaims(sub, email, sessionID string, exp time.Time) (Claims, error) {
	id, err := uuid.Parse(sub)
	if err != nil {
		return Claims{}, fmt.Errorf("%w: subject is not a uuid", ErrInvalidToken)
	}
	return Claims{
		Identity:  domain.Identity{ID: id, Email: email},
		SessionID: sessionID,
		ExpiresAt: exp,
	}, nil
}
