// Package jwks verifies bearer credentials against remotely published
// key sets. Keys are cached by key identifier and refreshed both
// periodically in the background and on demand when an unknown key is
// requested.
package jwks

import (
	"context"
	"crypto"
	"crypto/ecdsa"
	"crypto/elliptic"
	"crypto/rsa"
	"encoding/base64"
	"encoding/json"
	"errors"
	"fmt"
	"math/big"
	"net/http"
	"sync"
	"time"

	"github.com/golang-jwt/jwt/v5"

	"github.com/ledgerworks/integration-runtime/pkg/logger"
)

// DefaultPollInterval is the background key refresh interval.
const DefaultPollInterval = 10 * time.Second

// ErrKeyNotFound is returned when a key identifier cannot be resolved
// even after refreshing the remote key sets.
var ErrKeyNotFound = errors.New("signing key not found")

var acceptedMethods = []string{"RS256", "RS384", "RS512", "ES256", "ES384", "ES512"}

// Validator resolves signing keys by identifier and decodes token
// claims. The key set is append-only and deduplicated by key id; all
// writes funnel through the single refresh routine.
type Validator struct {
	urls       []string
	httpClient *http.Client
	log        *logger.Logger

	refreshMu sync.Mutex

	mu   sync.RWMutex
	keys map[string]crypto.PublicKey
}

// NewValidator creates a validator fetching keys from the given JWKS
// endpoints.
func NewValidator(urls []string, log *logger.Logger) *Validator {
	if log == nil {
		log = logger.NewDefault("jwks")
	}
	return &Validator{
		urls:       urls,
		httpClient: &http.Client{Timeout: 10 * time.Second},
		log:        log,
		keys:       make(map[string]crypto.PublicKey),
	}
}

// Poll refreshes the key set at the given interval until the context is
// cancelled. Refresh failures are expected during startup of the key
// service and retried on the next cycle.
func (v *Validator) Poll(ctx context.Context, interval time.Duration) {
	if interval <= 0 {
		interval = DefaultPollInterval
	}

	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			v.log.Debug("polling for new keys")
			v.refresh(ctx)
		}
	}
}

// Key returns the cached key for an identifier, forcing one refresh
// attempt when it is unknown. After a refresh the answer is final.
func (v *Validator) Key(ctx context.Context, kid string) (crypto.PublicKey, error) {
	v.mu.RLock()
	key, ok := v.keys[kid]
	v.mu.RUnlock()
	if ok {
		return key, nil
	}

	v.refresh(ctx)

	v.mu.RLock()
	key, ok = v.keys[kid]
	v.mu.RUnlock()
	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrKeyNotFound, kid)
	}
	return key, nil
}

// KeyCount reports the number of cached keys.
func (v *Validator) KeyCount() int {
	v.mu.RLock()
	defer v.mu.RUnlock()
	return len(v.keys)
}

// DecodeClaims verifies a token's signature against the key named by
// its header and returns the decoded claims.
func (v *Validator) DecodeClaims(ctx context.Context, token string) (map[string]any, error) {
	claims := jwt.MapClaims{}
	_, err := jwt.ParseWithClaims(token, claims, func(t *jwt.Token) (any, error) {
		kid, _ := t.Header["kid"].(string)
		if kid == "" {
			return nil, errors.New("token header has no kid")
		}
		return v.Key(ctx, kid)
	}, jwt.WithValidMethods(acceptedMethods))
	if err != nil {
		return nil, fmt.Errorf("token verification: %w", err)
	}
	return claims, nil
}

// refresh fetches every configured endpoint and merges new keys into
// the set. Transient fetch or parse failures are logged at low severity
// and retried on the next poll; they never remove existing keys.
func (v *Validator) refresh(ctx context.Context) {
	v.refreshMu.Lock()
	defer v.refreshMu.Unlock()

	for _, url := range v.urls {
		doc, err := v.fetch(ctx, url)
		if err != nil {
			// Common at startup before the key service is up; no
			// stack trace needed.
			v.log.WithField("url", url).Warnf("error when checking for new keys: %v", err)
			continue
		}
		if doc.Keys == nil {
			v.log.WithField("url", url).
				Warn("the JWKS endpoint did not return a \"keys\" property, so no new keys were added")
			continue
		}

		for _, raw := range doc.Keys {
			v.addKey(raw)
		}
	}
}

func (v *Validator) addKey(raw jwk) {
	if raw.Kid == "" {
		v.log.Warn("the JWKS endpoint contained a key without a \"kid\" field, dropping it")
		return
	}

	v.mu.RLock()
	_, known := v.keys[raw.Kid]
	v.mu.RUnlock()
	if known {
		v.log.WithField("kid", raw.Kid).Debug("key already known, ignoring new value")
		return
	}

	key, err := raw.publicKey()
	if err != nil {
		v.log.WithError(err).WithField("kid", raw.Kid).Warn("JWK could not be parsed")
		return
	}

	v.mu.Lock()
	v.keys[raw.Kid] = key
	v.mu.Unlock()

	v.log.WithField("kid", raw.Kid).Info("added signing key")
}

type jwksDocument struct {
	Keys []jwk `json:"keys"`
}

type jwk struct {
	Kty string `json:"kty"`
	Kid string `json:"kid"`
	N   string `json:"n"`
	E   string `json:"e"`
	Crv string `json:"crv"`
	X   string `json:"x"`
	Y   string `json:"y"`
}

func (v *Validator) fetch(ctx context.Context, url string) (*jwksDocument, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return nil, fmt.Errorf("build request: %w", err)
	}

	resp, err := v.httpClient.Do(req)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("unexpected status %d", resp.StatusCode)
	}

	var doc jwksDocument
	if err := json.NewDecoder(resp.Body).Decode(&doc); err != nil {
		return nil, fmt.Errorf("decode key set: %w", err)
	}
	return &doc, nil
}

// publicKey materializes the JWK into a crypto.PublicKey.
func (k jwk) publicKey() (crypto.PublicKey, error) {
	switch k.Kty {
	case "RSA":
		n, err := base64.RawURLEncoding.DecodeString(k.N)
		if err != nil {
			return nil, fmt.Errorf("decode modulus: %w", err)
		}
		e, err := base64.RawURLEncoding.DecodeString(k.E)
		if err != nil {
			return nil, fmt.Errorf("decode exponent: %w", err)
		}
		return &rsa.PublicKey{
			N: new(big.Int).SetBytes(n),
			E: int(new(big.Int).SetBytes(e).Int64()),
		}, nil

	case "EC":
		var curve elliptic.Curve
		switch k.Crv {
		case "P-256":
			curve = elliptic.P256()
		case "P-384":
			curve = elliptic.P384()
		case "P-521":
			curve = elliptic.P521()
		default:
			return nil, fmt.Errorf("unsupported curve %q", k.Crv)
		}
		x, err := base64.RawURLEncoding.DecodeString(k.X)
		if err != nil {
			return nil, fmt.Errorf("decode x coordinate: %w", err)
		}
		y, err := base64.RawURLEncoding.DecodeString(k.Y)
		if err != nil {
			return nil, fmt.Errorf("decode y coordinate: %w", err)
		}
		return &ecdsa.PublicKey{
			Curve: curve,
			X:     new(big.Int).SetBytes(x),
			Y:     new(big.Int).SetBytes(y),
		}, nil

	default:
		return nil, fmt.Errorf("unsupported key type %q", k.Kty)
	}
}
