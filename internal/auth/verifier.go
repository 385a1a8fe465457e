package auth

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/golang-jwt/jwt/v5"
)

// GoogleChatIssuer is the service account that signs Google Chat webhook tokens.
const GoogleChatIssuer = "chat@system.gserviceaccount.com"

// Claims are the verified claims of an accepted token.
type Claims struct {
	Issuer    string
	Audience  string
	Subject   string
	ExpiresAt time.Time
}

// TokenVerifier checks the Authorization header of an inbound call.
type TokenVerifier interface {
	Verify(ctx context.Context, authorizationHeader string) (*Claims, error)
}

// JWTVerifier implements TokenVerifier for RS256 tokens signed by keys from a KeySource.
type JWTVerifier struct {
	keys     KeySource
	issuer   string
	audience string
	leeway   time.Duration
	now      func() time.Time
}

// VerifierOption customises a JWTVerifier.
type VerifierOption func(*JWTVerifier)

// WithLeeway tolerates clock skew when checking exp/nbf/iat.
func WithLeeway(d time.Duration) VerifierOption {
	return func(v *JWTVerifier) {
		v.leeway = d
	}
}

// WithTimeFunc overrides the clock used for expiry checks.
func WithTimeFunc(now func() time.Time) VerifierOption {
	return func(v *JWTVerifier) {
		v.now = now
	}
}

// NewJWTVerifier creates a verifier expecting tokens from issuer for audience.
func NewJWTVerifier(keys KeySource, issuer, audience string, opts ...VerifierOption) *JWTVerifier {
	v := &JWTVerifier{
		keys:     keys,
		issuer:   issuer,
		audience: audience,
		now:      time.Now,
	}
	for _, opt := range opts {
		opt(v)
	}
	return v
}

// Verify validates a "Bearer <token>" header and returns the token's claims.
// Every failure is an *AuthError.
func (v *JWTVerifier) Verify(ctx context.Context, authorizationHeader string) (*Claims, error) {
	tokenString, ok := bearerToken(authorizationHeader)
	if !ok {
		return nil, &AuthError{Reason: ReasonMissing}
	}

	parser := jwt.NewParser(
		jwt.WithValidMethods([]string{jwt.SigningMethodRS256.Alg()}),
		jwt.WithIssuer(v.issuer),
		jwt.WithAudience(v.audience),
		jwt.WithExpirationRequired(),
		jwt.WithLeeway(v.leeway),
		jwt.WithTimeFunc(v.now),
	)

	var registered jwt.RegisteredClaims
	_, err := parser.ParseWithClaims(tokenString, &registered, func(token *jwt.Token) (interface{}, error) {
		kid, _ := token.Header["kid"].(string)
		if kid == "" {
			return nil, fmt.Errorf("%w: token has no kid header", ErrUnknownKey)
		}
		return v.keys.Key(ctx, kid)
	})
	if err != nil {
		return nil, &AuthError{Reason: classify(err), Err: err}
	}

	claims := &Claims{
		Issuer:   registered.Issuer,
		Audience: v.audience,
		Subject:  registered.Subject,
	}
	if registered.ExpiresAt != nil {
		claims.ExpiresAt = registered.ExpiresAt.Time
	}
	return claims, nil
}

// bearerToken extracts the token from an Authorization header value.
func bearerToken(header string) (string, bool) {
	token, ok := strings.CutPrefix(header, "Bearer ")
	if !ok {
		return "", false
	}
	token = strings.TrimSpace(token)
	return token, token != ""
}

func classify(err error) Reason {
	switch {
	case errors.Is(err, ErrKeyFetch):
		return ReasonKeyFetch
	case errors.Is(err, ErrUnknownKey):
		return ReasonUnknownKey
	case errors.Is(err, jwt.ErrTokenMalformed):
		return ReasonMalformed
	case errors.Is(err, jwt.ErrTokenSignatureInvalid):
		return ReasonSignature
	case errors.Is(err, jwt.ErrTokenExpired), errors.Is(err, jwt.ErrTokenRequiredClaimMissing):
		return ReasonExpired
	case errors.Is(err, jwt.ErrTokenInvalidIssuer):
		return ReasonIssuer
	case errors.Is(err, jwt.ErrTokenInvalidAudience):
		return ReasonAudience
	default:
		return ReasonInvalid
	}
}
