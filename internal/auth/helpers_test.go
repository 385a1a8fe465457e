package auth

import (
	"crypto/rand"
	"crypto/rsa"
	"encoding/base64"
	"encoding/json"
	"math/big"
	"net/http"
	"net/http/httptest"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/stretchr/testify/require"
)

const (
	testAudience = "123456789012"
	testKid      = "kid-1"
)

type signingKey struct {
	kid  string
	priv *rsa.PrivateKey
}

func newSigningKey(t *testing.T, kid string) signingKey {
	t.Helper()
	priv, err := rsa.GenerateKey(rand.Reader, 2048)
	require.NoError(t, err)
	return signingKey{kid: kid, priv: priv}
}

func (k signingKey) jwk() map[string]string {
	return map[string]string{
		"kty": "RSA",
		"alg": "RS256",
		"use": "sig",
		"kid": k.kid,
		"n":   base64.RawURLEncoding.EncodeToString(k.priv.N.Bytes()),
		"e":   base64.RawURLEncoding.EncodeToString(big.NewInt(int64(k.priv.E)).Bytes()),
	}
}

// jwksServer serves a swappable key list and counts fetches.
type jwksServer struct {
	*httptest.Server
	mu      sync.Mutex
	keys    []signingKey
	status  int
	fetches atomic.Int32
}

func newJWKSServer(t *testing.T, keys ...signingKey) *jwksServer {
	t.Helper()
	s := &jwksServer{keys: keys, status: http.StatusOK}
	s.Server = httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		s.fetches.Add(1)
		s.mu.Lock()
		defer s.mu.Unlock()

		if s.status != http.StatusOK {
			w.WriteHeader(s.status)
			return
		}
		list := make([]map[string]string, 0, len(s.keys))
		for _, k := range s.keys {
			list = append(list, k.jwk())
		}
		w.Header().Set("Content-Type", "application/json")
		_ = json.NewEncoder(w).Encode(map[string]any{"keys": list})
	}))
	t.Cleanup(s.Close)
	return s
}

func (s *jwksServer) setKeys(keys ...signingKey) {
	s.mu.Lock()
	s.keys = keys
	s.mu.Unlock()
}

func (s *jwksServer) setStatus(status int) {
	s.mu.Lock()
	s.status = status
	s.mu.Unlock()
}

type tokenFields struct {
	issuer   string
	audience string
	subject  string
	expires  time.Time
	noExpiry bool
}

func validFields() tokenFields {
	return tokenFields{
		issuer:   GoogleChatIssuer,
		audience: testAudience,
		subject:  "chat",
		expires:  time.Now().Add(time.Hour),
	}
}

func signToken(t *testing.T, key signingKey, fields tokenFields) string {
	t.Helper()
	claims := jwt.MapClaims{
		"iss": fields.issuer,
		"aud": fields.audience,
		"sub": fields.subject,
		"iat": time.Now().Add(-time.Minute).Unix(),
	}
	if !fields.noExpiry {
		claims["exp"] = fields.expires.Unix()
	}
	token := jwt.NewWithClaims(jwt.SigningMethodRS256, claims)
	if key.kid != "" {
		token.Header["kid"] = key.kid
	}
	signed, err := token.SignedString(key.priv)
	require.NoError(t, err)
	return signed
}
