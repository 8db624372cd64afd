package jwt

import (
	"bytes"
	"encoding/json"
	"strings"
	"time"

	"github.com/golang-jwt/jwt/v5"
)

const roleAdmin = "admin"

// ID is a user identifier that may be encoded as a JSON string or number.
type ID string

// UnmarshalJSON accepts "42", 42 and null.
func (id *ID) UnmarshalJSON(data []byte) error {
	data = bytes.TrimSpace(data)
	if len(data) == 0 || bytes.Equal(data, []byte("null")) {
		*id = ""
		return nil
	}
	if data[0] == '"' {
		var s string
		if err := json.Unmarshal(data, &s); err != nil {
			return err
		}
		*id = ID(s)
		return nil
	}
	var n json.Number
	if err := json.Unmarshal(data, &n); err != nil {
		return err
	}
	*id = ID(n.String())
	return nil
}

// Claims is the payload carried by storefront access tokens.
type Claims struct {
	UserID ID     `json:"user_id,omitempty"`
	Email  string `json:"email,omitempty"`
	Role   string `json:"role,omitempty"`
	Use    string `json:"tu,omitempty"`
	jwt.RegisteredClaims
}

// Expired reports whether the token expiry is at or before now+leeway.
// Tokens without an exp claim never expire on the client side.
func (c *Claims) Expired(now time.Time, leeway time.Duration) bool {
	if c == nil {
		return true
	}
	if c.ExpiresAt == nil {
		return false
	}
	return !now.Add(leeway).Before(c.ExpiresAt.Time)
}

// IsAdmin reports whether the role claim is "admin", case-insensitively.
// Any other value, including an absent claim, is non-privileged.
func (c *Claims) IsAdmin() bool {
	if c == nil {
		return false
	}
	return strings.EqualFold(strings.TrimSpace(c.Role), roleAdmin)
}

// Identity returns the email claim, falling back to the subject.
func (c *Claims) Identity() string {
	if c == nil {
		return ""
	}
	if c.Email != "" {
		return c.Email
	}
	return c.Subject
}
