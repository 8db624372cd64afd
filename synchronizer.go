package authclient

import (
	"context"
	"errors"
	"fmt"

	"github.com/MrEthical07/authclient/internal/flows"
	"github.com/MrEthical07/authclient/tokenstore"
)

// Start runs the synchronizer until ctx is done or Stop is called. It
// resynchronizes once immediately, then on every change of the stored
// session keys (including writes by other clients sharing the storage
// namespace) and on NotifyTokensUpdated. Calling Start on a running
// synchronizer is a no-op.
func (c *Client) Start(ctx context.Context) error {
	if err := c.ready(); err != nil {
		return err
	}
	c.syncMu.Lock()
	defer c.syncMu.Unlock()
	if c.syncCancel != nil {
		return nil
	}

	runCtx, cancel := context.WithCancel(ctx)
	changes, err := c.store.Watch(runCtx)
	if err != nil {
		cancel()
		return fmt.Errorf("watch token store: %w", err)
	}

	if _, err := c.Resync(runCtx); err != nil {
		c.log(ctx).Warn("initial resync failed", "error", err)
	}

	done := make(chan struct{})
	c.syncCancel = cancel
	c.syncDone = done
	go c.syncLoop(runCtx, changes, done)
	return nil
}

// Stop halts the synchronizer and waits for it to exit.
func (c *Client) Stop() {
	c.syncMu.Lock()
	cancel, done := c.syncCancel, c.syncDone
	c.syncCancel, c.syncDone = nil, nil
	c.syncMu.Unlock()
	if cancel == nil {
		return
	}
	cancel()
	<-done
}

// NotifyTokensUpdated tells a running synchronizer that tokens were written
// outside the Client. Signals coalesce; it never blocks.
func (c *Client) NotifyTokensUpdated() {
	select {
	case c.syncSignal <- struct{}{}:
	default:
	}
}

func (c *Client) syncLoop(ctx context.Context, changes <-chan tokenstore.Change, done chan struct{}) {
	defer close(done)
	for {
		select {
		case <-ctx.Done():
			return
		case ch, ok := <-changes:
			if !ok {
				c.log(ctx).Warn("token store watch ended")
				return
			}
			if !tokenstore.IsSessionKey(ch.Key) {
				continue
			}
			drain(changes)
		case <-c.syncSignal:
		}

		c.metrics.Inc(MetricSyncEvent)
		if _, err := c.Resync(ctx); err != nil && !errors.Is(err, context.Canceled) {
			c.log(ctx).Warn("resync failed", "error", err)
		}
	}
}

// drain discards queued changes so a burst of writes is handled once.
func drain(changes <-chan tokenstore.Change) {
	for {
		select {
		case _, ok := <-changes:
			if !ok {
				return
			}
		default:
			return
		}
	}
}

// Resync derives the session state from the stored tokens and returns the
// resulting snapshot. A decodable access token with an email hydrates the
// user; otherwise an Authenticated session becomes Anonymous and a Pending
// verification is left alone. Resync never writes the store.
func (c *Client) Resync(ctx context.Context) (SessionSnapshot, error) {
	if err := c.ready(); err != nil {
		return SessionSnapshot{}, err
	}
	tokens, err := c.store.Tokens(ctx)
	if err != nil {
		return c.Snapshot(), fmt.Errorf("read tokens: %w", err)
	}

	c.mu.Lock()
	seq := c.sess.seq
	current := c.sess.snapshot()
	c.mu.Unlock()

	email := normalizeEmail(tokens.Email)
	usable := tokens.AccessToken != "" && email != ""
	if usable {
		if _, err := c.decoder.Decode(tokens.AccessToken); err != nil {
			c.log(ctx).Warn("stored access token undecodable", "error", err)
			usable = false
		}
	}

	if !usable {
		c.applyIfCurrent(seq, func(s *session) {
			if s.state == StateAuthenticated {
				s.toAnonymous()
			}
		})
		return c.Snapshot(), nil
	}

	if current.State == StateAuthenticated && current.User != nil && current.User.Email == email {
		return current, nil
	}

	res := c.hydrate(ctx, tokens.AccessToken, email)
	if !res.OK {
		c.log(ctx).Warn("session hydration failed", "email", email, "error", res.Err)
		c.applyIfCurrent(seq, func(s *session) {
			if s.state == StateAuthenticated {
				s.toAnonymous()
			}
		})
		return c.Snapshot(), nil
	}
	user := userFromRecord(res.User)
	if c.applyIfCurrent(seq, func(s *session) { s.toAuthenticated(user) }) {
		c.emitAudit(ctx, AuditEvent{Type: AuditSessionHydrated, Email: email, UserID: user.ID, Success: true})
	}
	return c.Snapshot(), nil
}

// hydrate builds the user for a freshly stored session.
func (c *Client) hydrate(ctx context.Context, access, email string) flows.HydrateResult {
	ctx, span := c.tracer.Start(ctx, "authclient.Hydrate")
	defer span.End()

	hctx, cancel := context.WithTimeout(ctx, c.cfg.Session.HydrateTimeout)
	defer cancel()

	res := flows.RunHydrate(hctx, access, email, flows.HydrateDeps{
		Decode:  c.decoder.Decode,
		Profile: c.api.ProfileByEmail,
		SessionCleared: func(ctx context.Context) bool {
			tok, err := c.store.AccessToken(ctx)
			return err == nil && tok == ""
		},
	})
	switch {
	case !res.OK:
		c.metrics.Inc(MetricHydrationFailure)
	case res.FromClaims:
		c.metrics.Inc(MetricHydrationFallback)
		c.metrics.Inc(MetricSessionHydrated)
		c.log(ctx).Warn("profile fetch failed, using token claims", "email", email, "error", res.ProfileErr)
	default:
		c.metrics.Inc(MetricSessionHydrated)
	}
	return res
}

/*
====================================
INTERCEPTOR HOOKS
====================================
*/

func (c *Client) onRefreshSucceeded() {
	c.metrics.Inc(MetricRefreshSuccess)
	c.emitAudit(c.rootCtx, AuditEvent{Type: AuditRefreshSucceeded, Success: true})
}

func (c *Client) onRefreshFailed(err error) {
	c.metrics.Inc(MetricRefreshFailure)
	c.logger.Warn("token refresh failed", "error", err)
}

// onSessionExpired runs after the interceptor cleared the store. The
// transition does not wait for the synchronizer so callers see Anonymous
// as soon as their request returns.
func (c *Client) onSessionExpired(err error) {
	c.metrics.Inc(MetricSessionExpired)
	email := userEmail(c.Snapshot().User)
	c.apply(func(s *session) {
		if s.state == StateAuthenticated {
			s.toAnonymous()
		}
	})
	reason := ""
	if err != nil {
		reason = err.Error()
	}
	c.emitAudit(c.rootCtx, AuditEvent{Type: AuditSessionExpired, Email: email, Reason: reason})
}

func (c *Client) onTransportFailed(err error) {
	c.metrics.Inc(MetricTransportFailure)
	c.logger.Debug("storefront request failed", "error", err)
}
