package auth

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"crowdfund/pkg/types"

	"github.com/lestrrat-go/jwx/v3/jwk"
	"github.com/lestrrat-go/jwx/v3/jwt"
)

// KeySource is satisfied by *jwk.Cache.
type KeySource interface {
	Lookup(ctx context.Context, u string) (jwk.Set, error)
}

type Identity struct {
	UserID string
	Email  string
}

// Verifier checks user pool access tokens against the pool's JWKS.
type Verifier struct {
	keys     KeySource
	jwksURL  string
	issuer   string
	clientID string
}

func NewVerifier(keys KeySource, issuer, clientID string) *Verifier {
	issuer = strings.TrimSuffix(issuer, "/")
	return &Verifier{
		keys:     keys,
		jwksURL:  JWKSURL(issuer),
		issuer:   issuer,
		clientID: clientID,
	}
}

func JWKSURL(issuer string) string {
	return fmt.Sprintf("%s/.well-known/jwks.json", strings.TrimSuffix(issuer, "/"))
}

func (v *Verifier) Verify(ctx context.Context, accessToken string) (*Identity, error) {
	set, err := v.keys.Lookup(ctx, v.jwksURL)
	if err != nil {
		return nil, fmt.Errorf("failed to fetch JWKS: %w", err)
	}

	opts := []jwt.ParseOption{
		jwt.WithKeySet(set),
		jwt.WithValidate(true),
	}
	if v.issuer != "" {
		opts = append(opts, jwt.WithIssuer(v.issuer))
	}

	token, err := jwt.Parse([]byte(accessToken), opts...)
	if err != nil {
		if errors.Is(err, jwt.TokenExpiredError()) {
			return nil, &types.Error{Code: types.CodeAuthSessionExpired, Err: err}
		}
		return nil, &types.Error{Code: types.CodeAuthUnauthorized, Err: err}
	}

	var tokenUse string
	if err := token.Get("token_use", &tokenUse); err == nil && tokenUse != "access" {
		return nil, &types.Error{Code: types.CodeAuthUnauthorized, Detail: "not an access token"}
	}

	if v.clientID != "" {
		var clientID string
		if err := token.Get("client_id", &clientID); err != nil || clientID != v.clientID {
			return nil, &types.Error{Code: types.CodeAuthUnauthorized, Detail: "token was issued to another client"}
		}
	}

	userID, ok := token.Subject()
	if !ok || userID == "" {
		return nil, &types.Error{Code: types.CodeAuthUnauthorized, Detail: "token has no subject"}
	}

	identity := &Identity{UserID: userID}

	// access tokens only carry email when the pool adds it
	_ = token.Get("email", &identity.Email)

	return identity, nil
}
