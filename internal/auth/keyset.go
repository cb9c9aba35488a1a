package auth

import (
	"context"
	"crypto/rsa"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"golang.org/x/sync/singleflight"
)

const (
	// defaultKeyTTL applies when the certificate endpoint sends no max-age.
	defaultKeyTTL = time.Hour
	// minRefreshInterval bounds how often the certificate set is fetched,
	// whatever key ids incoming tokens name.
	minRefreshInterval = time.Minute
)

// ProviderVerifier verifies RS256 ID tokens issued by an external identity
// provider. The provider publishes its signing certificates as a JSON object
// mapping key id to PEM certificate.
type ProviderVerifier struct {
	CertsURL string
	Audience string
	Issuer   string
	Client   *http.Client

	mu        sync.Mutex
	keys      map[string]*rsa.PublicKey
	expires   time.Time
	lastFetch time.Time
	refresh   singleflight.Group
	now       func() time.Time
}

// NewProviderVerifier creates a verifier for the given certificate endpoint.
func NewProviderVerifier(certsURL, audience, issuer string, client *http.Client) *ProviderVerifier {
	if client == nil {
		client = &http.Client{Timeout: 10 * time.Second}
	}
	return &ProviderVerifier{
		CertsURL: certsURL,
		Audience: audience,
		Issuer:   issuer,
		Client:   client,
		now:      time.Now,
	}
}

// Verify implements Verifier.
func (p *ProviderVerifier) Verify(ctx context.Context, tokenStr string) (*Claims, error) {
	opts := []jwt.ParserOption{
		jwt.WithValidMethods([]string{jwt.SigningMethodRS256.Alg()}),
		jwt.WithExpirationRequired(),
	}
	if p.Audience != "" {
		opts = append(opts, jwt.WithAudience(p.Audience))
	}
	if p.Issuer != "" {
		opts = append(opts, jwt.WithIssuer(p.Issuer))
	}

	token, err := jwt.ParseWithClaims(tokenStr, &Claims{}, func(token *jwt.Token) (any, error) {
		kid, _ := token.Header["kid"].(string)
		if kid == "" {
			return nil, fmt.Errorf("missing key id")
		}
		return p.key(ctx, kid)
	}, opts...)
	if err != nil {
		return nil, fmt.Errorf("parsing provider token: %w", errors.Join(ErrInvalidToken, err))
	}

	claims, ok := token.Claims.(*Claims)
	if !ok || !token.Valid || claims.Subject == "" {
		return nil, ErrInvalidToken
	}
	return claims, nil
}

// key returns the public key for kid. An unknown kid never triggers a fetch
// while the cached set is fresh or was fetched less than minRefreshInterval
// ago. Concurrent refreshes collapse into one request made outside the lock.
func (p *ProviderVerifier) key(ctx context.Context, kid string) (*rsa.PublicKey, error) {
	if k, settled := p.cached(kid); settled {
		if k == nil {
			return nil, fmt.Errorf("unknown key id %q", kid)
		}
		return k, nil
	}

	_, err, _ := p.refresh.Do("certs", func() (any, error) {
		return nil, p.reload(context.WithoutCancel(ctx))
	})
	if err != nil {
		return nil, err
	}

	p.mu.Lock()
	k, ok := p.keys[kid]
	p.mu.Unlock()
	if !ok {
		return nil, fmt.Errorf("unknown key id %q", kid)
	}
	return k, nil
}

// cached looks kid up in the current set. settled is false when the set is
// stale and may be refreshed.
func (p *ProviderVerifier) cached(kid string) (k *rsa.PublicKey, settled bool) {
	p.mu.Lock()
	defer p.mu.Unlock()

	now := p.clock()
	k = p.keys[kid]
	if now.Before(p.expires) || p.throttled(now) {
		return k, true
	}
	return nil, false
}

func (p *ProviderVerifier) throttled(now time.Time) bool {
	return !p.lastFetch.IsZero() && now.Sub(p.lastFetch) < minRefreshInterval
}

func (p *ProviderVerifier) reload(ctx context.Context) error {
	p.mu.Lock()
	throttled := p.throttled(p.clock())
	p.mu.Unlock()
	if throttled {
		return nil
	}

	keys, ttl, err := p.fetch(ctx)

	p.mu.Lock()
	defer p.mu.Unlock()
	p.lastFetch = p.clock()
	if err != nil {
		return err
	}
	p.keys = keys
	p.expires = p.lastFetch.Add(ttl)
	return nil
}

func (p *ProviderVerifier) clock() time.Time {
	if p.now != nil {
		return p.now()
	}
	return time.Now()
}

func (p *ProviderVerifier) fetch(ctx context.Context) (map[string]*rsa.PublicKey, time.Duration, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, p.CertsURL, nil)
	if err != nil {
		return nil, 0, fmt.Errorf("creating certs request: %w", err)
	}

	resp, err := p.Client.Do(req)
	if err != nil {
		return nil, 0, fmt.Errorf("fetching certs: %w", err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(io.LimitReader(resp.Body, 1<<20))
	if err != nil {
		return nil, 0, fmt.Errorf("reading certs: %w", err)
	}
	if resp.StatusCode != http.StatusOK {
		return nil, 0, fmt.Errorf("fetching certs: status %d", resp.StatusCode)
	}

	var certs map[string]string
	if err := json.Unmarshal(body, &certs); err != nil {
		return nil, 0, fmt.Errorf("decoding certs: %w", err)
	}

	keys := make(map[string]*rsa.PublicKey, len(certs))
	for kid, pem := range certs {
		k, err := jwt.ParseRSAPublicKeyFromPEM([]byte(pem))
		if err != nil {
			return nil, 0, fmt.Errorf("parsing cert %s: %w", kid, err)
		}
		keys[kid] = k
	}

	return keys, maxAge(resp.Header.Get("Cache-Control")), nil
}

// maxAge extracts max-age from a Cache-Control header.
func maxAge(header string) time.Duration {
	for _, directive := range strings.Split(header, ",") {
		name, value, ok := strings.Cut(strings.TrimSpace(directive), "=")
		if !ok || !strings.EqualFold(name, "max-age") {
			continue
		}
		secs, err := strconv.Atoi(value)
		if err != nil || secs <= 0 {
			break
		}
		return time.Duration(secs) * time.Second
	}
	return defaultKeyTTL
}
