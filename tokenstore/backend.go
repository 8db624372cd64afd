package tokenstore

import (
	"context"
	"errors"
	"sync"
	"time"
)

// Persisted layout.
const (
	KeyAccessToken   = "access_token"
	KeyRefreshToken  = "refresh_token"
	KeyUserEmail     = "user_email"
	KeyDeviceID      = "device_id"
	KeyDeviceFPCache = "device_fp_cache"

	// KeyDeviceSalt is mixed into host fingerprints so a cleared device
	// identity is not reproduced.
	KeyDeviceSalt = "device_salt"
)

var (
	// ErrBackendUnavailable wraps I/O failures of the underlying storage.
	ErrBackendUnavailable = errors.New("token storage unavailable")
	// ErrClosed is returned by operations on a closed backend.
	ErrClosed = errors.New("token storage closed")
)

// Change describes a mutation of one key.
type Change struct {
	Key     string
	Deleted bool
}

// Backend is a string key/value store with optional per-key TTL and change
// notifications.
type Backend interface {
	Get(ctx context.Context, key string) (string, bool, error)
	// Set stores value under key. ttl <= 0 means no expiry.
	Set(ctx context.Context, key, value string, ttl time.Duration) error
	Delete(ctx context.Context, keys ...string) error
	// Watch streams changes until ctx is done. The channel is closed then.
	Watch(ctx context.Context) (<-chan Change, error)
}

const watchBuffer = 16

// broadcaster fans changes out to in-process watchers. A slow watcher loses
// events once its buffer is full; watchers re-read the whole state on every
// event so a dropped duplicate carries no information.
type broadcaster struct {
	mu   sync.Mutex
	subs map[chan Change]struct{}
}

func (b *broadcaster) subscribe(ctx context.Context) <-chan Change {
	ch := make(chan Change, watchBuffer)

	b.mu.Lock()
	if b.subs == nil {
		b.subs = make(map[chan Change]struct{})
	}
	b.subs[ch] = struct{}{}
	b.mu.Unlock()

	go func() {
		<-ctx.Done()
		b.mu.Lock()
		delete(b.subs, ch)
		close(ch)
		b.mu.Unlock()
	}()

	return ch
}

func (b *broadcaster) publish(changes ...Change) {
	b.mu.Lock()
	defer b.mu.Unlock()
	for ch := range b.subs {
		for _, c := range changes {
			select {
			case ch <- c:
			default:
			}
		}
	}
}
