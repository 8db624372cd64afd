package device

import (
	"context"
	"log/slog"
	"sync"
	"time"

	"github.com/MrEthical07/authclient/internal"
	"github.com/MrEthical07/authclient/internal/logger"
	"github.com/MrEthical07/authclient/tokenstore"
)

// DefaultCacheTTL bounds the volatile cache tier.
const DefaultCacheTTL = 24 * time.Hour

// Provider resolves and memoizes the device identity.
type Provider struct {
	store         *tokenstore.Store
	fingerprinter Fingerprinter
	cacheTTL      time.Duration
	now           func() time.Time
	logger        *slog.Logger

	mu      sync.RWMutex
	current Identity
	known   bool
	// serializes generation so concurrent callers agree on one id
	genMu sync.Mutex
}

// Option configures a Provider.
type Option func(*Provider)

func WithFingerprinter(f Fingerprinter) Option {
	return func(p *Provider) { p.fingerprinter = f }
}

func WithCacheTTL(ttl time.Duration) Option {
	return func(p *Provider) {
		if ttl > 0 {
			p.cacheTTL = ttl
		}
	}
}

func WithClock(now func() time.Time) Option {
	return func(p *Provider) {
		if now != nil {
			p.now = now
		}
	}
}

func WithLogger(l *slog.Logger) Option {
	return func(p *Provider) {
		if l != nil {
			p.logger = l
		}
	}
}

// NewProvider returns a Provider storing its tiers in store.
func NewProvider(store *tokenstore.Store, opts ...Option) *Provider {
	p := &Provider{
		store:         store,
		fingerprinter: NewHostFingerprinter(),
		cacheTTL:      DefaultCacheTTL,
		now:           time.Now,
		logger:        logger.Discard(),
	}
	for _, opt := range opts {
		opt(p)
	}
	return p
}

// GetOrCreate returns the device identity, computing and persisting one if
// none exists. Storage read failures are treated as a miss; a write failure
// is returned together with the identity, which is still usable for the
// current process.
func (p *Provider) GetOrCreate(ctx context.Context) (Identity, error) {
	if id, ok := p.lookup(ctx, tokenstore.KeyDeviceFPCache); ok {
		p.remember(id)
		return id, nil
	}

	p.genMu.Lock()
	defer p.genMu.Unlock()

	if id, ok := p.lookup(ctx, tokenstore.KeyDeviceFPCache); ok {
		p.remember(id)
		return id, nil
	}

	id, ok := p.lookup(ctx, tokenstore.KeyDeviceID)
	if !ok {
		id = Identity{ID: p.generate(ctx), CreatedAt: p.now().UTC()}
	}
	p.remember(id)

	return id, p.persist(ctx, id)
}

// GetSync returns the last identity seen by GetOrCreate without doing I/O.
func (p *Provider) GetSync() (Identity, bool) {
	p.mu.RLock()
	defer p.mu.RUnlock()
	return p.current, p.known
}

// Clear forgets the identity in every tier along with the fingerprint salt.
// The next GetOrCreate produces a new identifier.
func (p *Provider) Clear(ctx context.Context) error {
	p.genMu.Lock()
	defer p.genMu.Unlock()
	p.mu.Lock()
	p.current = Identity{}
	p.known = false
	p.mu.Unlock()
	return p.store.Delete(ctx, tokenstore.KeyDeviceFPCache, tokenstore.KeyDeviceID, tokenstore.KeyDeviceSalt)
}

func (p *Provider) lookup(ctx context.Context, key string) (Identity, bool) {
	raw, ok, err := p.store.Get(ctx, key)
	if err != nil {
		p.logger.Warn("device identity read failed", "key", key, "error", err)
		return Identity{}, false
	}
	if !ok {
		return Identity{}, false
	}
	id, err := DecodeIdentity(raw)
	if err != nil {
		p.logger.Warn("discarding corrupt device identity", "key", key, "error", err)
		return Identity{}, false
	}
	return id, true
}

func (p *Provider) generate(ctx context.Context) string {
	if p.fingerprinter != nil {
		fp, err := p.fingerprinter.Fingerprint(ctx)
		if err == nil && fp != "" {
			return internal.HashFingerprint(fp, p.salt(ctx))
		}
		p.logger.Info("host fingerprint unavailable, using random device id", "error", err)
	}
	id, err := internal.NewFallbackDeviceID()
	if err != nil {
		// crypto/rand failure; a correlation uuid is still unique enough
		return "fb_" + internal.NewCorrelationID()
	}
	return id
}

// salt returns the random salt of this storage namespace, creating it on
// first use. Fingerprints are hashed with it, so the same host yields a new
// identifier once Clear dropped the salt.
func (p *Provider) salt(ctx context.Context) string {
	if s, ok, err := p.store.Get(ctx, tokenstore.KeyDeviceSalt); err == nil && ok && s != "" {
		return s
	}
	s, err := internal.NewFallbackDeviceID()
	if err != nil {
		s = internal.NewCorrelationID()
	}
	if err := p.store.Set(ctx, tokenstore.KeyDeviceSalt, s, 0); err != nil {
		p.logger.Warn("persist device salt failed", "error", err)
	}
	return s
}

func (p *Provider) persist(ctx context.Context, id Identity) error {
	enc, err := id.Encode()
	if err != nil {
		return err
	}
	if err := p.store.Set(ctx, tokenstore.KeyDeviceID, enc, 0); err != nil {
		return err
	}
	return p.store.Set(ctx, tokenstore.KeyDeviceFPCache, enc, p.cacheTTL)
}

func (p *Provider) remember(id Identity) {
	p.mu.Lock()
	p.current = id
	p.known = true
	p.mu.Unlock()
}
