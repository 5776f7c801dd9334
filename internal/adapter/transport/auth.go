package transport

import (
	"context"
	"net/http"
)

// Authorizer applies a vendor's credentials to an outgoing request.
type Authorizer interface {
	Authorize(ctx context.Context, req *http.Request) error
}

type AuthorizerFunc func(ctx context.Context, req *http.Request) error

func (f AuthorizerFunc) Authorize(ctx context.Context, req *http.Request) error {
	return f(ctx, req)
}

// Bearer sets "Authorization: Bearer <token>".
func Bearer(token string) Authorizer {
	return Header("Authorization", "Bearer "+token)
}

// Header sets a single static header.
func Header(name, value string) Authorizer {
	return AuthorizerFunc(func(_ context.Context, req *http.Request) error {
		req.Header.Set(name, value)
		return nil
	})
}

// TokenSource yields a current credential, refreshing it if needed.
type TokenSource interface {
	Token(ctx context.Context) (string, error)
}

// TokenHeader sets name to the token produced by src on every request.
func TokenHeader(name string, src TokenSource) Authorizer {
	return AuthorizerFunc(func(ctx context.Context, req *http.Request) error {
		token, err := src.Token(ctx)
		if err != nil {
			return err
		}
		req.Header.Set(name, token)
		return nil
	})
}

// NoAuth is used by vendors passing their key in the query or form.
var NoAuth Authorizer = AuthorizerFunc(func(context.Context, *http.Request) error { return nil })
