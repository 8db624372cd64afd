package fakebackend

import (
	"errors"
	"fmt"
	"net/http"
	"strings"
	"sync"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/google/uuid"

	"github.com/MrEthical07/authclient/jwt"
)

// Default codes accepted by verification endpoints.
const (
	DefaultOTP     = "123456"
	DefaultMFACode = "654321"
)

// Config configures a Server. Zero values take defaults.
type Config struct {
	// BasePath prefixes every route, e.g. "/api".
	BasePath   string
	OTP        string
	MFACode    string
	AccessTTL  time.Duration
	RefreshTTL time.Duration
	Secret     []byte
	// TrustOnVerify marks the login device trusted after a successful
	// verification, so the next login from it skips the code.
	TrustOnVerify bool
	// MFAAsError answers a correct OTP of an MFA account with a 403 body
	// carrying mfaRequired instead of a 200.
	MFAAsError bool
	QRTTL      time.Duration
}

func (c *Config) defaults() {
	if c.OTP == "" {
		c.OTP = DefaultOTP
	}
	if c.MFACode == "" {
		c.MFACode = DefaultMFACode
	}
	if c.AccessTTL <= 0 {
		c.AccessTTL = 15 * time.Minute
	}
	if c.RefreshTTL <= 0 {
		c.RefreshTTL = 24 * time.Hour
	}
	if len(c.Secret) == 0 {
		c.Secret = []byte("fakebackend-signing-secret-0123456789")
	}
	if c.QRTTL <= 0 {
		c.QRTTL = 2 * time.Minute
	}
	c.BasePath = strings.TrimRight(c.BasePath, "/")
}

// Account is a registered user.
type Account struct {
	ID       string
	Username string
	FullName string
	Email    string
	Password string
	Phone    string
	Address  string
	Role     string
	// MFA requires an authenticator code after the emailed OTP.
	MFA bool
}

type pendingLogin struct {
	deviceID string
	otpDone  bool
}

type qrSession struct {
	status    string
	deviceID  string
	expiresAt time.Time
	email     string
}

type cannedResponse struct {
	status int
	body   string
}

// Server is the fake backend. It is safe for concurrent use.
type Server struct {
	cfg      Config
	issuer   *jwt.Issuer
	validate *validator.Validate
	now      func() time.Time

	mu       sync.Mutex
	accounts map[string]*Account
	trusted  map[string]map[string]bool
	pending  map[string]*pendingLogin
	blocked  map[string]bool
	qr       map[string]*qrSession
	resets   map[string]string
	calls    map[string]int
	canned   map[string][]cannedResponse
	profile  int
}

// New returns a Server with no accounts.
func New(cfg Config) (*Server, error) {
	cfg.defaults()
	issuer, err := jwt.NewIssuer(jwt.IssuerConfig{
		AccessTTL:     cfg.AccessTTL,
		RefreshTTL:    cfg.RefreshTTL,
		SigningMethod: jwt.MethodHS256,
		PrivateKey:    cfg.Secret,
		Issuer:        "fakebackend",
	})
	if err != nil {
		return nil, fmt.Errorf("fakebackend: %w", err)
	}
	return &Server{
		cfg:      cfg,
		issuer:   issuer,
		validate: validator.New(validator.WithRequiredStructEnabled()),
		now:      time.Now,
		accounts: make(map[string]*Account),
		trusted:  make(map[string]map[string]bool),
		pending:  make(map[string]*pendingLogin),
		blocked:  make(map[string]bool),
		qr:       make(map[string]*qrSession),
		resets:   make(map[string]string),
		calls:    make(map[string]int),
		canned:   make(map[string][]cannedResponse),
	}, nil
}

// Issuer exposes the signer so tests can mint expired or foreign tokens.
func (s *Server) Issuer() *jwt.Issuer { return s.issuer }

// AddAccount registers a; an empty ID gets a random one.
func (s *Server) AddAccount(a Account) *Account {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.addLocked(a)
}

func (s *Server) addLocked(a Account) *Account {
	a.Email = strings.ToLower(strings.TrimSpace(a.Email))
	if a.ID == "" {
		a.ID = uuid.NewString()
	}
	if a.Role == "" {
		a.Role = "user"
	}
	acc := a
	s.accounts[a.Email] = &acc
	return &acc
}

// TrustDevice marks deviceID as trusted for email.
func (s *Server) TrustDevice(email, deviceID string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.trustLocked(email, deviceID)
}

func (s *Server) trustLocked(email, deviceID string) {
	if deviceID == "" {
		return
	}
	m, ok := s.trusted[email]
	if !ok {
		m = make(map[string]bool)
		s.trusted[email] = m
	}
	m[deviceID] = true
}

// Calls returns how many requests reached path (without BasePath).
func (s *Server) Calls(path string) int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.calls[path]
}

// RespondNext makes the next request to path answer status and body
// verbatim, before any handler logic runs.
func (s *Server) RespondNext(path string, status int, body string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.canned[path] = append(s.canned[path], cannedResponse{status: status, body: body})
}

// FailProfile makes the profile endpoint answer status until reset with 0.
func (s *Server) FailProfile(status int) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.profile = status
}

// ResetToken returns the last password reset token issued for email.
func (s *Server) ResetToken(email string) string {
	s.mu.Lock()
	defer s.mu.Unlock()
	for tok, e := range s.resets {
		if e == email {
			return tok
		}
	}
	return ""
}

// ConfirmQR approves a QR session for email as if confirmed from another
// signed-in device.
func (s *Server) ConfirmQR(sessionID, email string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.confirmQRLocked(sessionID, email)
}

func (s *Server) confirmQRLocked(sessionID, email string) error {
	q, ok := s.qr[sessionID]
	if !ok {
		return errors.New("unknown qr session")
	}
	if q.status != "pending" {
		return fmt.Errorf("qr session is %s", q.status)
	}
	if _, ok := s.accounts[email]; !ok {
		return errors.New("unknown account")
	}
	q.status = "confirmed"
	q.email = email
	return nil
}

// BlockRefresh makes refresh requests for email fail with 401.
func (s *Server) BlockRefresh(email string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.blocked[strings.ToLower(email)] = true
}

// ExpireQR forces a QR session into the expired state.
func (s *Server) ExpireQR(sessionID string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if q, ok := s.qr[sessionID]; ok {
		q.status = "expired"
	}
}

// IssueTokens mints a token pair for a registered account.
func (s *Server) IssueTokens(email string) (access, refresh string, err error) {
	s.mu.Lock()
	acc, ok := s.accounts[strings.ToLower(email)]
	s.mu.Unlock()
	if !ok {
		return "", "", errors.New("unknown account")
	}
	return s.tokens(acc)
}

func (s *Server) tokens(acc *Account) (string, string, error) {
	access, err := s.issuer.IssueAccess(acc.ID, acc.Email, acc.Role)
	if err != nil {
		return "", "", err
	}
	refresh, err := s.issuer.IssueRefresh(acc.ID, acc.Email)
	if err != nil {
		return "", "", err
	}
	return access, refresh, nil
}

func (s *Server) record(path string) (cannedResponse, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.calls[path]++
	q := s.canned[path]
	if len(q) == 0 {
		return cannedResponse{}, false
	}
	s.canned[path] = q[1:]
	return q[0], true
}

// bearerAccount resolves the account of a valid access token.
func (s *Server) bearerAccount(r *http.Request) (*Account, error) {
	tok, ok := strings.CutPrefix(r.Header.Get("Authorization"), "Bearer ")
	if !ok || tok == "" {
		return nil, errors.New("missing bearer token")
	}
	return s.tokenAccount(tok)
}

// tokenAccount resolves the account of a valid access token.
func (s *Server) tokenAccount(tok string) (*Account, error) {
	claims, err := s.issuer.VerifyAccess(tok)
	if err != nil {
		return nil, err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	acc, ok := s.accounts[strings.ToLower(claims.Email)]
	if !ok {
		return nil, errors.New("unknown account")
	}
	return acc, nil
}
