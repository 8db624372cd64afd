package flows

import (
	"context"
	"errors"
	"strings"

	"github.com/MrEthical07/authclient/internal/api"
	"github.com/MrEthical07/authclient/jwt"
)

// Role values exposed on the user record.
const (
	RoleUser  = "user"
	RoleAdmin = "admin"
)

// ErrNoCredentials is returned when hydration has no decodable token or no
// email to work with.
var ErrNoCredentials = errors.New("no usable stored credentials")

// UserRecord is the hydrated identity.
type UserRecord struct {
	ID       string
	FullName string
	Email    string
	Phone    string
	Role     string
}

// HydrateDeps captures hydration dependencies.
type HydrateDeps struct {
	Decode  func(token string) (*jwt.Claims, error)
	Profile func(ctx context.Context, email string) (*api.Profile, error)
	// SessionCleared reports whether the stored session disappeared while the
	// profile call ran, which happens when the refresh inside it failed.
	SessionCleared func(ctx context.Context) bool
}

// HydrateResult is the outcome of RunHydrate. When OK is false the caller
// must treat the session as anonymous.
type HydrateResult struct {
	User UserRecord
	OK   bool
	// FromClaims is set when the profile call failed and the identity was
	// built from the token alone. ProfileErr holds that failure.
	FromClaims bool
	ProfileErr error
	Err        error
}

// RunHydrate rebuilds the user from the stored access token and the profile
// endpoint. The role comes from the token claim only.
func RunHydrate(ctx context.Context, accessToken, email string, deps HydrateDeps) HydrateResult {
	email = strings.TrimSpace(email)
	if strings.TrimSpace(accessToken) == "" || email == "" {
		return HydrateResult{Err: ErrNoCredentials}
	}
	claims, err := deps.Decode(accessToken)
	if err != nil {
		return HydrateResult{Err: err}
	}

	profile, err := deps.Profile(ctx, email)
	if err != nil {
		if deps.SessionCleared != nil && deps.SessionCleared(ctx) {
			return HydrateResult{Err: err, ProfileErr: err}
		}
		return HydrateResult{
			User:       BuildUser(claims, nil, email),
			OK:         true,
			FromClaims: true,
			ProfileErr: err,
		}
	}
	return HydrateResult{User: BuildUser(claims, profile, email), OK: true}
}

// BuildUser merges token claims and the optional profile record.
func BuildUser(claims *jwt.Claims, profile *api.Profile, email string) UserRecord {
	u := UserRecord{Email: email, Role: RoleUser}
	if claims.IsAdmin() {
		u.Role = RoleAdmin
	}
	if claims != nil {
		u.ID = firstNonEmpty(string(claims.UserID), claims.Subject)
		if u.Email == "" {
			u.Email = claims.Email
		}
	}
	if profile != nil {
		u.ID = firstNonEmpty(profile.ID, u.ID)
		u.FullName = profile.DisplayName()
		u.Phone = profile.Phone
		if u.Email == "" {
			u.Email = profile.Email
		}
	}
	if u.FullName == "" {
		u.FullName = u.Email
	}
	return u
}
