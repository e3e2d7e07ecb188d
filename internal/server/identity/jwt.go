package identity

import (
	"context"
	"errors"
	"time"

	"github.com/golang-jwt/jwt/v5"
)

var ErrInvalidToken = errors.New("invalid token")

// Claims includes the registered claims plus the principal fields.
type Claims struct {
	jwt.RegisteredClaims
	PrincipalID   string
	PrincipalName string
}

// JWTVerifier validates HS256 tokens issued by the auth service.
type JWTVerifier struct {
	secret []byte
}

func NewJWTVerifier(secret []byte) *JWTVerifier {
	return &JWTVerifier{secret: secret}
}

func (v *JWTVerifier) Verify(_ context.Context, tokenString string) (Principal, error) {
	claims := &Claims{}

	token, err := jwt.ParseWithClaims(tokenString, claims, func(t *jwt.Token) (interface{}, error) {
		return v.secret, nil
	})
	if err != nil {
		return Principal{}, err
	}

	if !token.Valid || claims.PrincipalID == "" {
		return Principal{}, ErrInvalidToken
	}

	return Principal{ID: claims.PrincipalID, Name: claims.PrincipalName}, nil
}

// IssueToken signs a token for the principal. Used by tests and tooling; the
// production issuer lives in the auth service.
func IssueToken(p Principal, secret []byte, validity time.Duration) (string, error) {
	token := jwt.NewWithClaims(jwt.SigningMethodHS256, Claims{
		RegisteredClaims: jwt.RegisteredClaims{
			ExpiresAt: jwt.NewNumericDate(time.Now().Add(validity)),
		},
		PrincipalID:   p.ID,
		PrincipalName: p.Name,
	})

	return token.SignedString(secret)
}
