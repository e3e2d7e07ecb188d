// Package identity is the boundary to the external auth system. The pipeline
// itself never authenticates anyone; it only needs a Principal to scope file
// ownership.
package identity

import "context"

// Principal is an authenticated identity owning files.
type Principal struct {
	ID   string
	Name string
}

// Verifier resolves a bearer token to a Principal. The production
// implementation is JWTVerifier; tests use StaticVerifier.
type Verifier interface {
	Verify(ctx context.Context, token string) (Principal, error)
}

// StaticVerifier maps fixed tokens to principals. Test double.
type StaticVerifier struct {
	Principals map[string]Principal
}

func (v *StaticVerifier) Verify(_ context.Context, token string) (Principal, error) {
	p, ok := v.Principals[token]
	if !ok {
		return Principal{}, ErrInvalidToken
	}
	return p, nil
}
