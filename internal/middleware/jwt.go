package middleware

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/golang-jwt/jwt/v5"
)

// JWTConfig configures HS256 tokens signed with a shared secret.
type JWTConfig struct {
	Secret   string
	Issuer   string
	Audience string
	// Leeway tolerates clock differences on exp, nbf and iat.
	Leeway time.Duration
}

// JWTVerifier accepts HS256 tokens signed with the configured secret.
type JWTVerifier struct {
	key    []byte
	parser *jwt.Parser
}

// NewJWTVerifier validates cfg and builds the token parser.
func NewJWTVerifier(cfg JWTConfig) (*JWTVerifier, error) {
	if cfg.Secret == "" {
		return nil, errors.New("jwt secret is required")
	}
	opts := []jwt.ParserOption{
		jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}),
		jwt.WithLeeway(cfg.Leeway),
		jwt.WithIssuedAt(),
	}
	if cfg.Issuer != "" {
		opts = append(opts, jwt.WithIssuer(cfg.Issuer))
	}
	if cfg.Audience != "" {
		opts = append(opts, jwt.WithAudience(cfg.Audience))
	}
	return &JWTVerifier{key: []byte(cfg.Secret), parser: jwt.NewParser(opts...)}, nil
}

func (v *JWTVerifier) Method() string {
	return "jwt"
}

func (v *JWTVerifier) Verify(_ context.Context, token string) (AuthContext, error) {
	claims := jwt.MapClaims{}
	_, err := v.parser.ParseWithClaims(token, claims, func(*jwt.Token) (any, error) {
		return v.key, nil
	})
	switch {
	case err == nil:
	case errors.Is(err, jwt.ErrTokenExpired):
		return AuthContext{}, &TokenError{Reason: ReasonExpired, Err: err}
	case errors.Is(err, jwt.ErrTokenNotValidYet), errors.Is(err, jwt.ErrTokenUsedBeforeIssued):
		return AuthContext{}, &TokenError{Reason: ReasonNotYetValid, Err: err}
	case errors.Is(err, jwt.ErrTokenInvalidClaims):
		return AuthContext{}, &TokenError{Reason: ReasonInvalidClaims, Err: err}
	default:
		return AuthContext{}, &TokenError{Reason: ReasonInvalidToken, Err: err}
	}

	subject, err := claims.GetSubject()
	if err != nil {
		return AuthContext{}, &TokenError{Reason: ReasonInvalidClaims, Err: fmt.Errorf("sub: %w", err)}
	}
	issuer, _ := claims.GetIssuer()
	audience, _ := claims.GetAudience()
	return AuthContext{
		Subject:  subject,
		Issuer:   issuer,
		Audience: audience,
		Claims:   claims,
	}, nil
}
