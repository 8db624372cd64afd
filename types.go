package authclient

import (
	"github.com/MrEthical07/authclient/internal/api"
	"github.com/MrEthical07/authclient/internal/flows"
)

// State is the session lifecycle state.
type State uint8

const (
	// StateAnonymous: no session and no verification in progress.
	StateAnonymous State = iota
	// StatePending: credentials accepted, a verification step is due.
	StatePending
	// StateAuthenticated: a verified session with a hydrated user.
	StateAuthenticated
)

func (s State) String() string {
	switch s {
	case StateAnonymous:
		return "anonymous"
	case StatePending:
		return "pending"
	case StateAuthenticated:
		return "authenticated"
	}
	return "unknown"
}

// Role values on User.
const (
	RoleUser  = flows.RoleUser
	RoleAdmin = flows.RoleAdmin
)

// User is the hydrated identity of an authenticated session.
type User struct {
	ID       string
	FullName string
	Email    string
	Phone    string
	Role     string
}

// IsAdmin reports whether the session carries the admin role.
func (u User) IsAdmin() bool { return u.Role == RoleAdmin }

// SessionSnapshot is a consistent copy of the session state.
type SessionSnapshot struct {
	State        State
	PendingEmail string
	// MFARequired is set while Pending when the next step is an
	// authenticator code rather than an emailed one.
	MFARequired bool
	User        *User
	// Seq increases with every login, verification and logout.
	Seq uint64
}

// LoginResult is the outcome of Login. Success is true only when the
// session became Authenticated (trusted device).
type LoginResult struct {
	Success     bool
	RequiresOTP bool
	MFARequired bool
	Message     string
	// Reason is nil on success and on RequiresOTP, otherwise one of
	// ErrInvalidCredentials, ErrServiceUnavailable or ErrSuperseded. A
	// trusted-device login may also end with ErrMalformedResponse or
	// ErrRefreshFailed.
	Reason error
	User   *User
}

// VerifyResult is the outcome of VerifyOTP and VerifyMFA.
type VerifyResult struct {
	Success     bool
	MFARequired bool
	Message     string
	// Reason is nil on success, ErrMFARequired when another factor is due,
	// otherwise ErrOTPInvalid, ErrServiceUnavailable, ErrSuperseded,
	// ErrMalformedResponse or ErrRefreshFailed.
	Reason error
	User   *User
}

// RegisterRequest is the account creation payload.
type RegisterRequest struct {
	Username string `json:"username" validate:"required,min=2,max=64"`
	Email    string `json:"email" validate:"required,email"`
	Password string `json:"password" validate:"required,min=8,max=128"`
	Phone    string `json:"phone,omitempty" validate:"omitempty,min=6,max=20"`
	Address  string `json:"address,omitempty" validate:"omitempty,max=256"`
}

// Profile is the user record returned by the backend.
type Profile = api.Profile

// QRSession is a cross-device login session started by StartQRLogin.
type QRSession = api.QRSession

func userFromRecord(r flows.UserRecord) *User {
	u := User(r)
	return &u
}
