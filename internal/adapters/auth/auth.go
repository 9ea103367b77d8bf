// Package auth holds Authenticator implementations.
package auth

import (
	"context"
	"errors"
	"fmt"
	"strconv"

	"github.com/dkeye/Board/internal/config"
	"github.com/dkeye/Board/internal/core"
	"github.com/dkeye/Board/internal/domain"
	"github.com/golang-jwt/jwt/v5"
)

var ErrInvalidToken = errors.New("invalid token")

// JWTAuthenticator accepts HS256 tokens carrying a userId claim. The claim
// may be a string or a number.
type JWTAuthenticator struct {
	secret []byte
	parser *jwt.Parser
}

func NewJWTAuthenticator(secret string) *JWTAuthenticator {
	return &JWTAuthenticator{
		secret: []byte(secret),
		parser: jwt.NewParser(jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()})),
	}
}

func (a *JWTAuthenticator) Verify(_ context.Context, token string) (*domain.User, error) {
	if token == "" {
		return nil, ErrInvalidToken
	}
	claims := jwt.MapClaims{}
	_, err := a.parser.ParseWithClaims(token, claims, func(*jwt.Token) (any, error) {
		return a.secret, nil
	})
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidToken, err)
	}

	var id string
	switch v := claims["userId"].(type) {
	case string:
		id = v
	case float64:
		id = strconv.FormatFloat(v, 'f', -1, 64)
	default:
		return nil, fmt.Errorf("%w: missing userId", ErrInvalidToken)
	}
	name, _ := claims["username"].(string)
	user, err := domain.NewUser(id, name)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidToken, err)
	}
	return user, nil
}

// StaticAuthenticator looks tokens up in a fixed table.
type StaticAuthenticator struct {
	tokens map[string]string
}

func NewStaticAuthenticator(tokens map[string]string) *StaticAuthenticator {
	cp := make(map[string]string, len(tokens))
	for k, v := range tokens {
		cp[k] = v
	}
	return &StaticAuthenticator{tokens: cp}
}

func (a *StaticAuthenticator) Verify(_ context.Context, token string) (*domain.User, error) {
	id, ok := a.tokens[token]
	if !ok || token == "" {
		return nil, ErrInvalidToken
	}
	user, err := domain.NewUser(id, "")
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidToken, err)
	}
	return user, nil
}

// New picks the JWT authenticator when a secret is configured and the static
// table otherwise.
func New(cfg config.AuthConfig) core.Authenticator {
	if cfg.Secret != "" {
		return NewJWTAuthenticator(cfg.Secret)
	}
	return NewStaticAuthenticator(cfg.TokenTable())
}
