package tokenstore

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"sync"
	"time"

	"filippo.io/age"
)

type fileEntry struct {
	Value     string    `json:"v"`
	ExpiresAt time.Time `json:"exp,omitempty"`
}

type fileDocument struct {
	Version int                  `json:"version"`
	Entries map[string]fileEntry `json:"entries"`
}

const fileDocumentVersion = 1

// FileBackend keeps all entries in one JSON document, rewritten atomically on
// every mutation. When an age identity is configured the document is
// encrypted to that identity's recipient.
//
// Watch only reports changes made through this FileBackend value.
type FileBackend struct {
	path     string
	identity *age.X25519Identity
	now      func() time.Time

	mu     sync.Mutex
	events broadcaster
}

// FileOption configures a FileBackend.
type FileOption func(*FileBackend)

// WithAgeIdentity encrypts the document at rest with identity.
func WithAgeIdentity(identity *age.X25519Identity) FileOption {
	return func(f *FileBackend) { f.identity = identity }
}

// WithFileClock overrides the clock used for TTLs.
func WithFileClock(now func() time.Time) FileOption {
	return func(f *FileBackend) {
		if now != nil {
			f.now = now
		}
	}
}

// NewFileBackend returns a FileBackend rooted at path. The parent directory
// is created on first write.
func NewFileBackend(path string, opts ...FileOption) (*FileBackend, error) {
	if path == "" {
		return nil, errors.New("tokenstore: file path is empty")
	}
	f := &FileBackend{path: path, now: time.Now}
	for _, opt := range opts {
		opt(f)
	}
	return f, nil
}

// ParseAgeIdentity parses an AGE-SECRET-KEY-1... string.
func ParseAgeIdentity(s string) (*age.X25519Identity, error) {
	id, err := age.ParseX25519Identity(s)
	if err != nil {
		return nil, fmt.Errorf("parsing age identity: %w", err)
	}
	return id, nil
}

func (f *FileBackend) Get(_ context.Context, key string) (string, bool, error) {
	f.mu.Lock()
	defer f.mu.Unlock()

	doc, err := f.load()
	if err != nil {
		return "", false, err
	}
	e, ok := doc.Entries[key]
	if !ok || f.expired(e) {
		return "", false, nil
	}
	return e.Value, true, nil
}

func (f *FileBackend) Set(_ context.Context, key, value string, ttl time.Duration) error {
	e := fileEntry{Value: value}
	if ttl > 0 {
		e.ExpiresAt = f.now().Add(ttl).UTC()
	}

	f.mu.Lock()
	doc, err := f.load()
	if err == nil {
		doc.Entries[key] = e
		err = f.store(doc)
	}
	f.mu.Unlock()
	if err != nil {
		return err
	}

	f.events.publish(Change{Key: key})
	return nil
}

func (f *FileBackend) Delete(_ context.Context, keys ...string) error {
	var changes []Change

	f.mu.Lock()
	doc, err := f.load()
	if err == nil {
		for _, k := range keys {
			if _, ok := doc.Entries[k]; ok {
				delete(doc.Entries, k)
				changes = append(changes, Change{Key: k, Deleted: true})
			}
		}
		if len(changes) > 0 {
			err = f.store(doc)
		}
	}
	f.mu.Unlock()
	if err != nil {
		return err
	}

	if len(changes) > 0 {
		f.events.publish(changes...)
	}
	return nil
}

func (f *FileBackend) Watch(ctx context.Context) (<-chan Change, error) {
	return f.events.subscribe(ctx), nil
}

func (f *FileBackend) expired(e fileEntry) bool {
	return !e.ExpiresAt.IsZero() && !f.now().Before(e.ExpiresAt)
}

func (f *FileBackend) load() (*fileDocument, error) {
	doc := &fileDocument{Version: fileDocumentVersion, Entries: map[string]fileEntry{}}

	raw, err := os.ReadFile(f.path)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return doc, nil
		}
		return nil, fmt.Errorf("%w: %v", ErrBackendUnavailable, err)
	}
	if len(raw) == 0 {
		return doc, nil
	}

	if f.identity != nil {
		r, err := age.Decrypt(bytes.NewReader(raw), f.identity)
		if err != nil {
			return nil, fmt.Errorf("%w: decrypting %s: %v", ErrBackendUnavailable, f.path, err)
		}
		if raw, err = io.ReadAll(r); err != nil {
			return nil, fmt.Errorf("%w: reading %s: %v", ErrBackendUnavailable, f.path, err)
		}
	}

	if err := json.Unmarshal(raw, doc); err != nil {
		return nil, fmt.Errorf("%w: parsing %s: %v", ErrBackendUnavailable, f.path, err)
	}
	if doc.Entries == nil {
		doc.Entries = map[string]fileEntry{}
	}
	return doc, nil
}

func (f *FileBackend) store(doc *fileDocument) error {
	now := f.now()
	for k, e := range doc.Entries {
		if !e.ExpiresAt.IsZero() && !now.Before(e.ExpiresAt) {
			delete(doc.Entries, k)
		}
	}

	raw, err := json.Marshal(doc)
	if err != nil {
		return fmt.Errorf("encoding token document: %w", err)
	}

	if f.identity != nil {
		var buf bytes.Buffer
		w, err := age.Encrypt(&buf, f.identity.Recipient())
		if err != nil {
			return fmt.Errorf("creating age encryptor: %w", err)
		}
		if _, err := w.Write(raw); err != nil {
			return fmt.Errorf("writing to age encryptor: %w", err)
		}
		if err := w.Close(); err != nil {
			return fmt.Errorf("finalizing age encryption: %w", err)
		}
		raw = buf.Bytes()
	}

	dir := filepath.Dir(f.path)
	if err := os.MkdirAll(dir, 0o700); err != nil {
		return fmt.Errorf("%w: %v", ErrBackendUnavailable, err)
	}
	tmp, err := os.CreateTemp(dir, ".tokens-*")
	if err != nil {
		return fmt.Errorf("%w: %v", ErrBackendUnavailable, err)
	}
	tmpName := tmp.Name()
	if _, err := tmp.Write(raw); err != nil {
		tmp.Close()
		os.Remove(tmpName)
		return fmt.Errorf("%w: %v", ErrBackendUnavailable, err)
	}
	if err := tmp.Close(); err != nil {
		os.Remove(tmpName)
		return fmt.Errorf("%w: %v", ErrBackendUnavailable, err)
	}
	if err := os.Rename(tmpName, f.path); err != nil {
		os.Remove(tmpName)
		return fmt.Errorf("%w: %v", ErrBackendUnavailable, err)
	}
	return nil
}
