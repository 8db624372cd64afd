package jwt

import (
	"errors"
	"fmt"
	"strings"

	"github.com/golang-jwt/jwt/v5"
)

var (
	// ErrEmptyToken is returned when Decode receives an empty string.
	ErrEmptyToken = errors.New("empty token")
	// ErrMalformedToken is returned when the token payload cannot be decoded.
	ErrMalformedToken = errors.New("malformed token")
)

// Decoder reads token claims without signature verification.
type Decoder struct {
	parser *jwt.Parser
}

// NewDecoder returns a Decoder. It is safe for concurrent use.
func NewDecoder() *Decoder {
	return &Decoder{parser: jwt.NewParser()}
}

// Decode returns the claims of token. The signature is not checked.
func (d *Decoder) Decode(token string) (*Claims, error) {
	token = strings.TrimSpace(token)
	if token == "" {
		return nil, ErrEmptyToken
	}
	if strings.Count(token, ".") != 2 {
		return nil, ErrMalformedToken
	}

	claims := &Claims{}
	if _, _, err := d.parser.ParseUnverified(token, claims); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrMalformedToken, err)
	}
	return claims, nil
}
