// Package auth turns bearer tokens issued by the identity service into
// request identities. Tokens are never minted here.
package auth

import (
	"errors"
	"strings"

	"github.com/golang-jwt/jwt/v5"
)

const (
	RoleAdmin = "admin"
	RoleUser  = "user"
)

type Identity struct {
	UserID  string
	IsAdmin bool
}

func (i Identity) Role() string {
	if i.IsAdmin {
		return RoleAdmin
	}
	return RoleUser
}

type Claims struct {
	Role string `json:"role,omitempty"`
	jwt.RegisteredClaims
}

type Verifier struct {
	issuer string
	secret []byte
}

func NewVerifier(issuer string, secret []byte) *Verifier {
	return &Verifier{issuer: issuer, secret: secret}
}

func (v *Verifier) ParseToken(token string) (Identity, error) {
	parsed, err := jwt.ParseWithClaims(token, &Claims{}, func(t *jwt.Token) (interface{}, error) {
		if _, ok := t.Method.(*jwt.SigningMethodHMAC); !ok {
			return nil, errors.New("invalid signing method")
		}
		return v.secret, nil
	}, jwt.WithIssuer(v.issuer), jwt.WithExpirationRequired())
	if err != nil {
		return Identity{}, err
	}
	claims, ok := parsed.Claims.(*Claims)
	if !ok || !parsed.Valid {
		return Identity{}, errors.New("invalid token")
	}
	if strings.TrimSpace(claims.Subject) == "" {
		return Identity{}, errors.New("invalid subject")
	}
	return Identity{UserID: claims.Subject, IsAdmin: claims.Role == RoleAdmin}, nil
}
