package device

import (
	"context"
	"errors"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/MrEthical07/authclient/internal"
	"github.com/MrEthical07/authclient/tokenstore"
)

type countingFingerprinter struct {
	mu    sync.Mutex
	calls int
	id    string
	err   error
}

func (c *countingFingerprinter) Fingerprint(context.Context) (string, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.calls++
	return c.id, c.err
}

func newProviderTest(fp Fingerprinter) (*Provider, *tokenstore.Store, *time.Time) {
	now := time.Unix(1_700_000_000, 0)
	backend := tokenstore.NewMemoryBackendWithClock(func() time.Time { return now })
	store := tokenstore.New(backend)
	p := NewProvider(store, WithFingerprinter(fp), WithClock(func() time.Time { return now }))
	return p, store, &now
}

func TestGetOrCreateIsStable(t *testing.T) {
	fp := &countingFingerprinter{id: "fp_abc"}
	p, _, _ := newProviderTest(fp)
	ctx := context.Background()

	first, err := p.GetOrCreate(ctx)
	if err != nil {
		t.Fatalf("get or create: %v", err)
	}
	if !strings.HasPrefix(first.ID, "fp_") || first.ID == "fp_abc" {
		t.Fatalf("expected salted fingerprint id, got %q", first.ID)
	}
	second, err := p.GetOrCreate(ctx)
	if err != nil {
		t.Fatalf("second call: %v", err)
	}
	if second.ID != first.ID {
		t.Fatalf("device id changed: %q -> %q", first.ID, second.ID)
	}
	if fp.calls != 1 {
		t.Fatalf("expected one fingerprint computation, got %d", fp.calls)
	}
}

func TestGetOrCreateFallsBackOnFingerprintError(t *testing.T) {
	p, _, _ := newProviderTest(&countingFingerprinter{err: errors.New("sandboxed")})

	id, err := p.GetOrCreate(context.Background())
	if err != nil {
		t.Fatalf("get or create: %v", err)
	}
	if !internal.IsFallbackDeviceID(id.ID) {
		t.Fatalf("expected fallback id, got %q", id.ID)
	}
}

func TestDurableTierSurvivesCacheExpiry(t *testing.T) {
	fp := &countingFingerprinter{err: errors.New("none")}
	p, store, now := newProviderTest(fp)
	ctx := context.Background()

	first, _ := p.GetOrCreate(ctx)
	*now = now.Add(DefaultCacheTTL + time.Minute)

	if _, ok, _ := store.Get(ctx, tokenstore.KeyDeviceFPCache); ok {
		t.Fatalf("cache tier should have expired")
	}

	fresh := NewProvider(store, WithFingerprinter(fp))
	second, err := fresh.GetOrCreate(ctx)
	if err != nil {
		t.Fatalf("get or create: %v", err)
	}
	if second.ID != first.ID {
		t.Fatalf("durable id not reused: %q vs %q", first.ID, second.ID)
	}
	if _, ok, _ := store.Get(ctx, tokenstore.KeyDeviceFPCache); !ok {
		t.Fatalf("cache tier should be rewritten after durable hit")
	}
	if fp.calls != 1 {
		t.Fatalf("fingerprint recomputed: %d calls", fp.calls)
	}
}

func TestCorruptEntryIsRegenerated(t *testing.T) {
	p, store, _ := newProviderTest(&countingFingerprinter{id: "fp_new"})
	ctx := context.Background()

	_ = store.Set(ctx, tokenstore.KeyDeviceID, "not-cbor!!", 0)
	id, err := p.GetOrCreate(ctx)
	if err != nil {
		t.Fatalf("get or create: %v", err)
	}
	salt, ok, _ := store.Get(ctx, tokenstore.KeyDeviceSalt)
	if !ok {
		t.Fatalf("salt not persisted")
	}
	if want := internal.HashFingerprint("fp_new", salt); id.ID != want {
		t.Fatalf("expected regenerated id %q, got %q", want, id.ID)
	}
}

func TestGetSyncAndClear(t *testing.T) {
	p, store, _ := newProviderTest(&countingFingerprinter{id: "fp_1"})
	ctx := context.Background()

	if _, ok := p.GetSync(); ok {
		t.Fatalf("GetSync must not compute")
	}
	id, _ := p.GetOrCreate(ctx)
	got, ok := p.GetSync()
	if !ok || got.ID != id.ID {
		t.Fatalf("GetSync = %+v %v", got, ok)
	}

	if err := p.Clear(ctx); err != nil {
		t.Fatalf("clear: %v", err)
	}
	if _, ok := p.GetSync(); ok {
		t.Fatalf("memory copy should be cleared")
	}
	for _, key := range []string{tokenstore.KeyDeviceID, tokenstore.KeyDeviceFPCache, tokenstore.KeyDeviceSalt} {
		if _, ok, _ := store.Get(ctx, key); ok {
			t.Fatalf("%s should be cleared", key)
		}
	}
}

func TestClearIssuesNewIdentifierForSameHost(t *testing.T) {
	host := fakeHost("linux", map[string]string{"/etc/machine-id": "abc123\n"}, nil)
	backend := tokenstore.NewMemoryBackend()
	p := NewProvider(tokenstore.New(backend), WithFingerprinter(host))
	ctx := context.Background()

	first, err := p.GetOrCreate(ctx)
	if err != nil {
		t.Fatalf("get or create: %v", err)
	}
	if err := p.Clear(ctx); err != nil {
		t.Fatalf("clear: %v", err)
	}
	next, err := p.GetOrCreate(ctx)
	if err != nil {
		t.Fatalf("get or create after clear: %v", err)
	}
	if next.ID == first.ID {
		t.Fatalf("same host reproduced %q after Clear", first.ID)
	}

	// a second process on the same storage agrees until the next Clear
	other := NewProvider(tokenstore.New(backend), WithFingerprinter(host))
	again, _ := other.GetOrCreate(ctx)
	if again.ID != next.ID {
		t.Fatalf("shared storage disagrees: %q vs %q", again.ID, next.ID)
	}
}

func TestClearIssuesNewIdentifierWithDefaultFingerprinter(t *testing.T) {
	p := NewProvider(tokenstore.New(tokenstore.NewMemoryBackend()))
	ctx := context.Background()

	first, _ := p.GetOrCreate(ctx)
	if err := p.Clear(ctx); err != nil {
		t.Fatalf("clear: %v", err)
	}
	next, _ := p.GetOrCreate(ctx)
	if first.ID == "" || next.ID == first.ID {
		t.Fatalf("default provider returned %q then %q", first.ID, next.ID)
	}
}

func TestConcurrentGetOrCreateAgrees(t *testing.T) {
	p, _, _ := newProviderTest(&countingFingerprinter{err: errors.New("none")})
	ctx := context.Background()

	var wg sync.WaitGroup
	ids := make([]string, 8)
	for i := range ids {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			id, _ := p.GetOrCreate(ctx)
			ids[i] = id.ID
		}(i)
	}
	wg.Wait()
	for _, id := range ids[1:] {
		if id != ids[0] {
			t.Fatalf("concurrent callers disagree: %v", ids)
		}
	}
}

func TestIdentityEncoding(t *testing.T) {
	in := Identity{ID: "fp_x", CreatedAt: time.Unix(1_700_000_000, 123000).UTC()}
	enc, err := in.Encode()
	if err != nil {
		t.Fatalf("encode: %v", err)
	}
	out, err := DecodeIdentity(enc)
	if err != nil {
		t.Fatalf("decode: %v", err)
	}
	if out.ID != in.ID || !out.CreatedAt.Equal(in.CreatedAt) {
		t.Fatalf("round trip mismatch: %+v vs %+v", out, in)
	}
	if _, err := DecodeIdentity(""); !errors.Is(err, ErrCorruptIdentity) {
		t.Fatalf("expected ErrCorruptIdentity, got %v", err)
	}
}
