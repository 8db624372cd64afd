package device

import (
	"encoding/base64"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/fxamacker/cbor/v2"
)

// ErrCorruptIdentity is returned when a stored identity cannot be decoded.
var ErrCorruptIdentity = errors.New("corrupt device identity")

// Identity is the persisted device identifier.
type Identity struct {
	ID        string    `cbor:"1,keyasint"`
	CreatedAt time.Time `cbor:"2,keyasint"`
}

var (
	encMode cbor.EncMode
	decMode cbor.DecMode
)

func init() {
	var err error

	encOptions := cbor.CoreDetEncOptions()
	encOptions.Time = cbor.TimeUnixMicro
	encMode, err = encOptions.EncMode()
	if err != nil {
		panic("device: CBOR encoder initialization failed: " + err.Error())
	}

	decMode, err = cbor.DecOptions{}.DecMode()
	if err != nil {
		panic("device: CBOR decoder initialization failed: " + err.Error())
	}
}

// Encode serializes id as base64url CBOR so it fits string storage.
func (id Identity) Encode() (string, error) {
	raw, err := encMode.Marshal(id)
	if err != nil {
		return "", fmt.Errorf("encoding device identity: %w", err)
	}
	return base64.RawURLEncoding.EncodeToString(raw), nil
}

// DecodeIdentity parses the output of Encode.
func DecodeIdentity(s string) (Identity, error) {
	raw, err := base64.RawURLEncoding.DecodeString(strings.TrimSpace(s))
	if err != nil {
		return Identity{}, fmt.Errorf("%w: %v", ErrCorruptIdentity, err)
	}
	var id Identity
	if err := decMode.Unmarshal(raw, &id); err != nil {
		return Identity{}, fmt.Errorf("%w: %v", ErrCorruptIdentity, err)
	}
	if strings.TrimSpace(id.ID) == "" {
		return Identity{}, fmt.Errorf("%w: empty id", ErrCorruptIdentity)
	}
	return id, nil
}
