package collab

import (
	"context"
	"errors"
	"strconv"

	"github.com/golang-jwt/jwt/v5"
)

// AppClaims mirrors the teacher's JWT claims shape: a subject (here, the
// player's numeric id as a string, per JWT convention) plus a display name
// and language tag carried as custom claims instead of an http-scoped
// permission list.
type AppClaims struct {
	Name     string `json:"name,omitempty"`
	Language string `json:"lang,omitempty"`
	jwt.RegisteredClaims
}

// JWTAuthProvider validates the Authenticate token as an HMAC-signed JWT,
// generalized from the teacher's middleware.NewAuthMiddleware, which parses
// the same AppClaims shape out of a cookie instead of the wire protocol's
// token field.
type JWTAuthProvider struct {
	secret []byte
}

// NewJWTAuthProvider builds a provider keyed on secret.
func NewJWTAuthProvider(secret string) *JWTAuthProvider {
	return &JWTAuthProvider{secret: []byte(secret)}
}

var _ AuthProvider = (*JWTAuthProvider)(nil)

func (p *JWTAuthProvider) Authenticate(_ context.Context, token string) (Identity, error) {
	parsed, err := jwt.ParseWithClaims(token, &AppClaims{}, func(t *jwt.Token) (any, error) {
		if _, ok := t.Method.(*jwt.SigningMethodHMAC); !ok {
			return nil, jwt.ErrSignatureInvalid
		}
		return p.secret, nil
	})
	if err != nil || !parsed.Valid {
		return Identity{}, errors.New("invalid token")
	}

	claims, ok := parsed.Claims.(*AppClaims)
	if !ok || claims.Subject == "" {
		return Identity{}, errors.New("token missing subject")
	}

	userID, err := strconv.ParseInt(claims.Subject, 10, 32)
	if err != nil {
		return Identity{}, errors.New("token subject is not a numeric user id")
	}

	return Identity{
		UserID:   int32(userID),
		Name:     claims.Name,
		Language: claims.Language,
	}, nil
}
