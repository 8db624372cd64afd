package internal

import (
	"crypto/rand"
	"encoding/base64"
	"errors"
	"strings"

	"github.com/google/uuid"
)

const (
	fallbackIDRawSize = 16
	fallbackIDPrefix  = "fb_"
)

// ErrInvalidFallbackID is returned by ParseFallbackID for malformed input.
var ErrInvalidFallbackID = errors.New("invalid fallback device id")

// NewFallbackDeviceID returns a random device identifier used when host
// fingerprinting is unavailable.
func NewFallbackDeviceID() (string, error) {
	var raw [fallbackIDRawSize]byte
	if _, err := rand.Read(raw[:]); err != nil {
		return "", err
	}
	// base64url, no padding, compact
	return fallbackIDPrefix + base64.RawURLEncoding.EncodeToString(raw[:]), nil
}

// IsFallbackDeviceID reports whether id was produced by NewFallbackDeviceID.
func IsFallbackDeviceID(id string) bool {
	_, err := ParseFallbackID(id)
	return err == nil
}

// ParseFallbackID decodes the random part of a fallback identifier.
func ParseFallbackID(id string) ([fallbackIDRawSize]byte, error) {
	var out [fallbackIDRawSize]byte
	if !strings.HasPrefix(id, fallbackIDPrefix) {
		return out, ErrInvalidFallbackID
	}
	raw, err := base64.RawURLEncoding.DecodeString(id[len(fallbackIDPrefix):])
	if err != nil {
		return out, ErrInvalidFallbackID
	}
	if len(raw) != fallbackIDRawSize {
		return out, ErrInvalidFallbackID
	}
	copy(out[:], raw)
	return out, nil
}

// NewCorrelationID returns a request correlation identifier.
func NewCorrelationID() string {
	return uuid.NewString()
}
