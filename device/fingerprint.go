package device

import (
	"bytes"
	"context"
	"errors"
	"os"
	"os/exec"
	"runtime"
	"strings"

	"github.com/MrEthical07/authclient/internal"
)

// ErrNoHardwareID is returned when no hardware identifier source answered.
var ErrNoHardwareID = errors.New("no hardware identifier available")

// Fingerprinter derives an identifier from the host. Failures make the
// Provider fall back to a random identifier.
type Fingerprinter interface {
	Fingerprint(ctx context.Context) (string, error)
}

// FingerprintFunc adapts a function to Fingerprinter.
type FingerprintFunc func(ctx context.Context) (string, error)

func (f FingerprintFunc) Fingerprint(ctx context.Context) (string, error) { return f(ctx) }

// HostFingerprinter hashes the machine's hardware UUID together with the
// hostname and platform.
type HostFingerprinter struct {
	// ReadFile and Command are replaceable in tests.
	ReadFile func(name string) ([]byte, error)
	Command  func(ctx context.Context, name string, args ...string) ([]byte, error)
	Hostname func() (string, error)
	GOOS     string
	GOARCH   string
}

// NewHostFingerprinter returns a HostFingerprinter wired to the real host.
func NewHostFingerprinter() *HostFingerprinter {
	return &HostFingerprinter{
		ReadFile: os.ReadFile,
		Command: func(ctx context.Context, name string, args ...string) ([]byte, error) {
			return exec.CommandContext(ctx, name, args...).Output()
		},
		Hostname: os.Hostname,
		GOOS:     runtime.GOOS,
		GOARCH:   runtime.GOARCH,
	}
}

func (h *HostFingerprinter) Fingerprint(ctx context.Context) (string, error) {
	hw, err := h.hardwareID(ctx)
	if err != nil {
		return "", err
	}
	var host string
	if h.Hostname != nil {
		host, _ = h.Hostname()
	}
	return internal.HashFingerprint(hw, host, h.GOOS, h.GOARCH), nil
}

func (h *HostFingerprinter) hardwareID(ctx context.Context) (string, error) {
	switch h.GOOS {
	case "linux":
		for _, path := range []string{"/sys/class/dmi/id/product_uuid", "/etc/machine-id", "/var/lib/dbus/machine-id"} {
			if id := h.readTrimmed(path); id != "" {
				return id, nil
			}
		}
	case "darwin":
		if out, err := h.run(ctx, "ioreg", "-rd1", "-c", "IOPlatformExpertDevice"); err == nil {
			for _, line := range strings.Split(string(out), "\n") {
				if !strings.Contains(line, "IOPlatformUUID") {
					continue
				}
				if parts := strings.Split(line, "\""); len(parts) >= 4 && parts[3] != "" {
					return parts[3], nil
				}
			}
		}
	case "windows":
		if out, err := h.run(ctx, "wmic", "csproduct", "get", "UUID"); err == nil {
			for _, line := range bytes.Split(out, []byte("\n")) {
				s := strings.TrimSpace(string(line))
				if s != "" && !strings.EqualFold(s, "UUID") {
					return s, nil
				}
			}
		}
	}
	return "", ErrNoHardwareID
}

func (h *HostFingerprinter) readTrimmed(path string) string {
	if h.ReadFile == nil {
		return ""
	}
	b, err := h.ReadFile(path)
	if err != nil {
		return ""
	}
	return strings.TrimSpace(string(b))
}

func (h *HostFingerprinter) run(ctx context.Context, name string, args ...string) ([]byte, error) {
	if h.Command == nil {
		return nil, ErrNoHardwareID
	}
	return h.Command(ctx, name, args...)
}
