// Package identity verifies the HS256 tokens issued by the identity provider
// and turns them into an auth.Principal.
package identity

import (
	"errors"
	"fmt"
	"time"

	"tixgate/internal/auth"

	"github.com/golang-jwt/jwt/v5"
)

var (
	ErrMissingSecret = errors.New("identity: token secret is not configured")
	ErrInvalidToken  = errors.New("identity: invalid token")
)

const clockLeeway = 30 * time.Second

// Claims is the token body. Permissions is an optional comma-separated list.
type Claims struct {
	Name        string   `json:"name,omitempty"`
	Groups      []string `json:"groups,omitempty"`
	Permissions string   `json:"permissions,omitempty"`
	jwt.RegisteredClaims
}

// Identity is a verified token.
type Identity struct {
	Principal *auth.Principal
	TokenID   string
	ExpiresAt time.Time
}

type Verifier struct {
	secret   []byte
	issuer   string
	audience string
}

func NewVerifier(secret, issuer, audience string) (*Verifier, error) {
	if secret == "" {
		return nil, ErrMissingSecret
	}
	return &Verifier{secret: []byte(secret), issuer: issuer, audience: audience}, nil
}

// Verify checks signature, algorithm, expiry and, when configured, issuer
// and audience. Any failure is reported as ErrInvalidToken.
func (v *Verifier) Verify(raw string) (*Identity, error) {
	opts := []jwt.ParserOption{
		jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}),
		jwt.WithExpirationRequired(),
		jwt.WithLeeway(clockLeeway),
	}
	if v.issuer != "" {
		opts = append(opts, jwt.WithIssuer(v.issuer))
	}
	if v.audience != "" {
		opts = append(opts, jwt.WithAudience(v.audience))
	}

	claims := &Claims{}
	_, err := jwt.ParseWithClaims(raw, claims, func(*jwt.Token) (any, error) {
		return v.secret, nil
	}, opts...)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidToken, err)
	}
	if claims.Subject == "" {
		return nil, fmt.Errorf("%w: missing subject", ErrInvalidToken)
	}

	identity := &Identity{
		Principal: auth.NewPrincipal(claims.Subject, claims.Name, claims.Groups, claims.Permissions),
		TokenID:   claims.ID,
	}
	if claims.ExpiresAt != nil {
		identity.ExpiresAt = claims.ExpiresAt.Time
	}
	return identity, nil
}

// Sign issues a token with the verifier's secret. Used by local tooling and tests.
func (v *Verifier) Sign(claims Claims) (string, error) {
	if claims.Issuer == "" {
		claims.Issuer = v.issuer
	}
	if v.audience != "" && len(claims.Audience) == 0 {
		claims.Audience = jwt.ClaimStrings{v.audience}
	}
	return jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString(v.secret)
}
