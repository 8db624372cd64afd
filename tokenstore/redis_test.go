package tokenstore

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
)

func newRedisBackendTest(t *testing.T) (*RedisBackend, *miniredis.Miniredis, func()) {
	t.Helper()
	mr, err := miniredis.Run()
	if err != nil {
		t.Fatalf("miniredis start: %v", err)
	}
	rdb := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	return NewRedisBackend(rdb, "shop:"), mr, func() {
		rdb.Close()
		mr.Close()
	}
}

func TestRedisBackendRoundTrip(t *testing.T) {
	b, mr, done := newRedisBackendTest(t)
	defer done()
	ctx := context.Background()

	if _, ok, err := b.Get(ctx, KeyAccessToken); err != nil || ok {
		t.Fatalf("expected miss, got ok=%v err=%v", ok, err)
	}
	if err := b.Set(ctx, KeyAccessToken, "a1", 0); err != nil {
		t.Fatalf("set: %v", err)
	}
	if got, _ := mr.Get("shop:access_token"); got != "a1" {
		t.Fatalf("expected prefixed key, got %q", got)
	}
	v, ok, err := b.Get(ctx, KeyAccessToken)
	if err != nil || !ok || v != "a1" {
		t.Fatalf("get: %q %v %v", v, ok, err)
	}
	if err := b.Delete(ctx, KeyAccessToken, KeyRefreshToken); err != nil {
		t.Fatalf("delete: %v", err)
	}
	if err := b.Delete(ctx, KeyAccessToken); err != nil {
		t.Fatalf("second delete: %v", err)
	}
	if mr.Exists("shop:access_token") {
		t.Fatalf("key should be gone")
	}
}

func TestRedisBackendTTL(t *testing.T) {
	b, mr, done := newRedisBackendTest(t)
	defer done()
	ctx := context.Background()

	if err := b.Set(ctx, KeyDeviceFPCache, "fp", time.Hour); err != nil {
		t.Fatalf("set: %v", err)
	}
	mr.FastForward(2 * time.Hour)
	if _, ok, err := b.Get(ctx, KeyDeviceFPCache); err != nil || ok {
		t.Fatalf("expected expired entry, ok=%v err=%v", ok, err)
	}
}

func TestRedisBackendUnavailable(t *testing.T) {
	mr, err := miniredis.Run()
	if err != nil {
		t.Fatalf("miniredis start: %v", err)
	}
	rdb := redis.NewClient(&redis.Options{Addr: mr.Addr(), MaxRetries: -1})
	defer rdb.Close()
	b := NewRedisBackend(rdb, "")
	mr.Close()

	_, _, err = b.Get(context.Background(), KeyAccessToken)
	if !errors.Is(err, ErrRedisUnavailable) || !errors.Is(err, ErrBackendUnavailable) {
		t.Fatalf("expected ErrRedisUnavailable, got %v", err)
	}
}

func TestRedisBackendWatchAcrossClients(t *testing.T) {
	mr, err := miniredis.Run()
	if err != nil {
		t.Fatalf("miniredis start: %v", err)
	}
	defer mr.Close()

	tabA := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	defer tabA.Close()
	tabB := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	defer tabB.Close()

	writer := NewRedisBackend(tabA, "shop:")
	watcher := NewRedisBackend(tabB, "shop:")

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	ch, err := watcher.Watch(ctx)
	if err != nil {
		t.Fatalf("watch: %v", err)
	}

	if err := writer.Set(ctx, KeyUserEmail, "u@example.com", 0); err != nil {
		t.Fatalf("set: %v", err)
	}
	if err := writer.Delete(ctx, KeyUserEmail); err != nil {
		t.Fatalf("delete: %v", err)
	}

	want := []Change{{Key: KeyUserEmail}, {Key: KeyUserEmail, Deleted: true}}
	for i, w := range want {
		select {
		case c := <-ch:
			if c != w {
				t.Fatalf("change %d: got %+v want %+v", i, c, w)
			}
		case <-time.After(2 * time.Second):
			t.Fatalf("timed out waiting for change %d", i)
		}
	}
}

func TestParseEvent(t *testing.T) {
	if c, ok := parseEvent("set:access_token"); !ok || c.Key != KeyAccessToken || c.Deleted {
		t.Fatalf("unexpected %+v %v", c, ok)
	}
	if c, ok := parseEvent("del:user_email"); !ok || c.Key != KeyUserEmail || !c.Deleted {
		t.Fatalf("unexpected %+v %v", c, ok)
	}
	if _, ok := parseEvent("noise"); ok {
		t.Fatalf("expected unknown payload to be ignored")
	}
}
