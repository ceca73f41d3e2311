package auth

import (
	"errors"
	"fmt"

	"github.com/golang-jwt/jwt/v5"
)

// Claims are the scoped-token claims issued by the token collaborator.
// Exactly one of TripID or UserID must be set.
type Claims struct {
	TripID string `json:"trip_id,omitempty"`
	UserID string `json:"user_id,omitempty"`
	jwt.RegisteredClaims
}

// ParseScopedToken validates a scoped JWT and returns the single Execution
// Scope it binds. Verification failure, expiry, or an ambiguous scope (zero
// or both ids) all fail outright.
func ParseScopedToken(tokenString string, secret []byte) (Scope, error) {
	if tokenString == "" {
		return Scope{}, fmt.Errorf("%w: empty token", ErrInvalidToken)
	}
	if len(secret) == 0 {
		return Scope{}, errors.New("auth: empty secret")
	}

	parser := jwt.NewParser(jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}))
	claims := &Claims{}
	token, err := parser.ParseWithClaims(tokenString, claims, func(token *jwt.Token) (any, error) {
		if _, ok := token.Method.(*jwt.SigningMethodHMAC); !ok {
			return nil, errors.New("auth: invalid signing method")
		}
		return secret, nil
	})
	if err != nil {
		return Scope{}, fmt.Errorf("%w: %v", ErrInvalidToken, err)
	}
	if !token.Valid {
		return Scope{}, ErrInvalidToken
	}

	switch {
	case claims.TripID != "" && claims.UserID != "":
		return Scope{}, fmt.Errorf("%w: token binds both trip and user", ErrInvalidToken)
	case claims.TripID != "":
		return Scope{Column: ScopeTrip, ID: claims.TripID}, nil
	case claims.UserID != "":
		return Scope{Column: ScopeUser, ID: claims.UserID}, nil
	default:
		return Scope{}, fmt.Errorf("%w: token binds no scope", ErrInvalidToken)
	}
}
