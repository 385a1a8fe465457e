package auth

import (
	"context"
	"crypto/rsa"
	"fmt"
	"io"
	"log"
	"net/http"
	"sync"
	"sync/atomic"
	"time"

	"github.com/lestrrat-go/jwx/v2/jwa"
	"github.com/lestrrat-go/jwx/v2/jwk"
	"golang.org/x/sync/singleflight"
)

// GoogleChatJWKSURL publishes the keys Google Chat signs webhook tokens with.
const GoogleChatJWKSURL = "https://www.googleapis.com/service_accounts/v1/jwk/chat@system.gserviceaccount.com"

const (
	fetchTimeout = 10 * time.Second
	maxJWKSBytes = 1 << 20

	// unknownKeyTTL is how long a kid absent from a fresh key set is rejected without refetching.
	unknownKeyTTL  = time.Minute
	maxUnknownKeys = 1024
)

// KeySource resolves a token's key id to a verification key.
type KeySource interface {
	Key(ctx context.Context, kid string) (*rsa.PublicKey, error)
}

// KeySet is a KeySource backed by a remote JWKS document.
type KeySet struct {
	url        string
	httpClient *http.Client
	now        func() time.Time

	mu      sync.RWMutex
	keys    map[string]*rsa.PublicKey
	unknown map[string]time.Time

	flight singleflight.Group
	// fetchSeq numbers fetches in the order they start.
	fetchSeq atomic.Uint64
}

// NewKeySet returns a KeySet for url. Keys are fetched lazily.
func NewKeySet(url string, httpClient *http.Client) *KeySet {
	if httpClient == nil {
		httpClient = &http.Client{Timeout: fetchTimeout}
	}
	return &KeySet{
		url:        url,
		httpClient: httpClient,
		now:        time.Now,
		keys:       make(map[string]*rsa.PublicKey),
		unknown:    make(map[string]time.Time),
	}
}

// Key returns the cached key for kid. On a miss the set is refetched by a
// fetch that started after the miss; concurrent misses share that fetch.
func (s *KeySet) Key(ctx context.Context, kid string) (*rsa.PublicKey, error) {
	if key, ok := s.cached(kid); ok {
		return key, nil
	}
	if s.recentlyUnknown(kid) {
		return nil, fmt.Errorf("%w: %q", ErrUnknownKey, kid)
	}

	seen := s.fetchSeq.Load()
	for {
		v, err, _ := s.flight.Do("refresh", func() (any, error) {
			return s.refresh(ctx)
		})
		if err != nil {
			return nil, err
		}
		if key, ok := s.cached(kid); ok {
			return key, nil
		}
		// A joined fetch may have read the document before kid was published.
		if v.(uint64) > seen {
			break
		}
	}

	s.markUnknown(kid)
	return nil, fmt.Errorf("%w: %q", ErrUnknownKey, kid)
}

func (s *KeySet) cached(kid string) (*rsa.PublicKey, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	key, ok := s.keys[kid]
	return key, ok
}

func (s *KeySet) recentlyUnknown(kid string) bool {
	s.mu.RLock()
	defer s.mu.RUnlock()
	until, ok := s.unknown[kid]
	return ok && s.now().Before(until)
}

func (s *KeySet) markUnknown(kid string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if len(s.unknown) >= maxUnknownKeys {
		s.unknown = make(map[string]time.Time)
	}
	s.unknown[kid] = s.now().Add(unknownKeyTTL)
}

// refresh replaces the cached keys and returns the fetch's sequence number.
func (s *KeySet) refresh(ctx context.Context) (uint64, error) {
	seq := s.fetchSeq.Add(1)

	ctx, cancel := context.WithTimeout(context.WithoutCancel(ctx), fetchTimeout)
	defer cancel()

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, s.url, nil)
	if err != nil {
		return seq, fmt.Errorf("%w: %v", ErrKeyFetch, err)
	}
	req.Header.Set("Accept", "application/json")

	resp, err := s.httpClient.Do(req)
	if err != nil {
		return seq, fmt.Errorf("%w: %v", ErrKeyFetch, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return seq, fmt.Errorf("%w: status %d from %s", ErrKeyFetch, resp.StatusCode, s.url)
	}

	body, err := io.ReadAll(io.LimitReader(resp.Body, maxJWKSBytes))
	if err != nil {
		return seq, fmt.Errorf("%w: read jwks: %v", ErrKeyFetch, err)
	}
	set, err := jwk.Parse(body, jwk.WithIgnoreParseError(true))
	if err != nil {
		return seq, fmt.Errorf("%w: parse jwks: %v", ErrKeyFetch, err)
	}

	keys := signingKeys(set)
	if len(keys) == 0 {
		return seq, fmt.Errorf("%w: no usable RSA keys at %s", ErrKeyFetch, s.url)
	}

	s.mu.Lock()
	s.keys = keys
	for kid := range keys {
		delete(s.unknown, kid)
	}
	s.mu.Unlock()

	log.Printf("[auth] loaded %d signing keys from %s", len(keys), s.url)
	return seq, nil
}

// signingKeys keeps the RSA signature keys of set, indexed by kid.
func signingKeys(set jwk.Set) map[string]*rsa.PublicKey {
	keys := make(map[string]*rsa.PublicKey, set.Len())
	for i := 0; i < set.Len(); i++ {
		key, ok := set.Key(i)
		if !ok {
			continue
		}
		if key.KeyType() != jwa.RSA || key.KeyID() == "" {
			continue
		}
		if use := key.KeyUsage(); use != "" && use != string(jwk.ForSignature) {
			continue
		}

		var raw any
		if err := key.Raw(&raw); err != nil {
			log.Printf("[auth] skipping key kid=%s: %v", key.KeyID(), err)
			continue
		}
		pub, ok := raw.(*rsa.PublicKey)
		if !ok {
			continue
		}
		keys[key.KeyID()] = pub
	}
	return keys
}
