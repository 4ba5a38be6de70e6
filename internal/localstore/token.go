package localstore

import (
	"errors"
	"fmt"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"

	"github.com/starford/notesapp/internal/apperr"
)

type claims struct {
	Email string `json:"email"`
	jwt.RegisteredClaims
}

func (db *DB) issueToken(userID, email string) (string, time.Time, error) {
	now := db.now()
	exp := now.Add(db.ttl)
	c := claims{
		Email: email,
		RegisteredClaims: jwt.RegisteredClaims{
			Subject:   userID,
			ID:        uuid.NewString(),
			IssuedAt:  jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(exp),
		},
	}
	signed, err := jwt.NewWithClaims(jwt.SigningMethodHS256, c).SignedString(db.secret)
	if err != nil {
		return "", time.Time{}, fmt.Errorf("localstore: sign token: %w", err)
	}
	return signed, exp, nil
}

func (db *DB) parseToken(raw string) (*claims, error) {
	var c claims
	_, err := jwt.ParseWithClaims(raw, &c, func(t *jwt.Token) (any, error) {
		return db.secret, nil
	},
		jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}),
		jwt.WithTimeFunc(db.now),
		jwt.WithExpirationRequired(),
	)
	if err != nil {
		if errors.Is(err, jwt.ErrTokenExpired) {
			return nil, fmt.Errorf("localstore: session expired: %w", apperr.ErrUnauthenticated)
		}
		return nil, fmt.Errorf("localstore: invalid token: %w", apperr.ErrUnauthenticated)
	}
	if c.Subject == "" {
		return nil, fmt.Errorf("localstore: token has no subject: %w", apperr.ErrUnauthenticated)
	}
	return &c, nil
}
