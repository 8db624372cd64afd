package authclient

import "strings"

// session is the mutable state guarded by Client.mu.
type session struct {
	state        State
	pendingEmail string
	mfaRequired  bool
	// tokens returned by login, held until verification completes so the
	// refresh token is not lost when verify answers with an access token only
	pendingAccess  string
	pendingRefresh string
	user           *User
	seq            uint64
}

func (s *session) snapshot() SessionSnapshot {
	snap := SessionSnapshot{
		State:        s.state,
		PendingEmail: s.pendingEmail,
		MFARequired:  s.mfaRequired,
		Seq:          s.seq,
	}
	if s.user != nil {
		u := *s.user
		snap.User = &u
	}
	return snap
}

func (s *session) toAnonymous() {
	s.state = StateAnonymous
	s.pendingEmail = ""
	s.mfaRequired = false
	s.pendingAccess = ""
	s.pendingRefresh = ""
	s.user = nil
}

func (s *session) toPending(email string, mfa bool, access, refresh string) {
	s.state = StatePending
	s.pendingEmail = email
	s.mfaRequired = mfa
	s.pendingAccess = access
	s.pendingRefresh = refresh
	s.user = nil
}

func (s *session) toAuthenticated(u *User) {
	s.state = StateAuthenticated
	s.pendingEmail = ""
	s.mfaRequired = false
	s.pendingAccess = ""
	s.pendingRefresh = ""
	s.user = u
}

func (s *session) authenticated() bool { return s.state == StateAuthenticated }

type listener struct {
	id uint64
	fn func(SessionSnapshot)
}

// OnSessionChanged registers fn to run after every visible state change.
// Calls are made outside the client lock, in transition order, from the
// goroutine that caused the change. fn must not call Login, the Verify
// methods, Logout or Resync synchronously. The returned func unregisters fn.
func (c *Client) OnSessionChanged(fn func(SessionSnapshot)) (cancel func()) {
	if fn == nil {
		return func() {}
	}
	c.mu.Lock()
	c.nextListener++
	id := c.nextListener
	c.listeners = append(c.listeners, listener{id: id, fn: fn})
	c.mu.Unlock()

	return func() {
		c.mu.Lock()
		defer c.mu.Unlock()
		for i, l := range c.listeners {
			if l.id == id {
				c.listeners = append(c.listeners[:i:i], c.listeners[i+1:]...)
				return
			}
		}
	}
}

// begin starts a login, verification or logout: it bumps the sequence so
// answers of older operations are recognized as stale.
func (c *Client) begin() uint64 {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.sess.seq++
	return c.sess.seq
}

// applyIfCurrent runs mutate when seq is still the latest operation and
// notifies listeners if the visible state changed. It reports whether
// mutate ran.
func (c *Client) applyIfCurrent(seq uint64, mutate func(s *session)) bool {
	c.mu.Lock()
	if seq != c.sess.seq {
		c.mu.Unlock()
		return false
	}
	c.applyLocked(mutate)
	return true
}

// apply runs mutate unconditionally.
func (c *Client) apply(mutate func(s *session)) {
	c.mu.Lock()
	c.applyLocked(mutate)
}

// applyLocked must be called with c.mu held and releases it.
func (c *Client) applyLocked(mutate func(s *session)) {
	before := c.sess.snapshot()
	mutate(&c.sess)
	after := c.sess.snapshot()

	if sameVisible(before, after) {
		c.mu.Unlock()
		return
	}

	listeners := append([]listener(nil), c.listeners...)
	// taken before releasing mu so deliveries keep transition order
	c.notifyMu.Lock()
	c.mu.Unlock()
	defer c.notifyMu.Unlock()

	if before.State != after.State {
		c.logger.Debug("session state changed", "from", before.State.String(), "to", after.State.String())
		c.emitAudit(c.rootCtx, AuditEvent{
			Type:    AuditStateChanged,
			From:    before.State.String(),
			To:      after.State.String(),
			Email:   firstNonEmpty(after.PendingEmail, userEmail(after.User), before.PendingEmail, userEmail(before.User)),
			Success: true,
		})
	}
	for _, l := range listeners {
		l.fn(after)
	}
}

func sameVisible(a, b SessionSnapshot) bool {
	if a.State != b.State || a.PendingEmail != b.PendingEmail || a.MFARequired != b.MFARequired {
		return false
	}
	if (a.User == nil) != (b.User == nil) {
		return false
	}
	return a.User == nil || *a.User == *b.User
}

func userEmail(u *User) string {
	if u == nil {
		return ""
	}
	return u.Email
}

func normalizeEmail(email string) string {
	return strings.ToLower(strings.TrimSpace(email))
}

func firstNonEmpty(vals ...string) string {
	for _, v := range vals {
		if v != "" {
			return v
		}
	}
	return ""
}
