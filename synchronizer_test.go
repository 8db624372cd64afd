package authclient

import (
	"context"
	"testing"

	"github.com/MrEthical07/authclient/internal/fakebackend"
	"github.com/MrEthical07/authclient/tokenstore"
)

func TestSynchronizerFollowsSharedStorage(t *testing.T) {
	h := newHarness(t, fakebackend.Config{})
	tabA := h.client()
	tabB := h.client()
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	if err := tabB.Start(ctx); err != nil {
		t.Fatalf("Start: %v", err)
	}
	if tabB.State() != StateAnonymous {
		t.Fatalf("initial state = %v", tabB.State())
	}

	h.login(tabA)
	waitFor(t, "tab B authenticated", func() bool { return tabB.State() == StateAuthenticated })
	if u := tabB.User(); u == nil || u.Email != aliceEmail {
		t.Fatalf("tab B user = %+v", u)
	}

	if err := tabA.Logout(ctx); err != nil {
		t.Fatalf("Logout: %v", err)
	}
	waitFor(t, "tab B anonymous", func() bool { return tabB.State() == StateAnonymous })
}

func TestSynchronizerPreservesPending(t *testing.T) {
	h := newHarness(t, fakebackend.Config{})
	c := h.client()
	ctx := context.Background()

	if _, err := c.Login(ctx, aliceEmail, alicePassword); err != nil {
		t.Fatalf("Login: %v", err)
	}
	snap, err := c.Resync(ctx)
	if err != nil {
		t.Fatalf("Resync: %v", err)
	}
	if snap.State != StatePending || snap.PendingEmail != aliceEmail {
		t.Fatalf("resync with empty storage = %+v, want pending kept", snap)
	}
}

func TestResyncDropsUndecodableToken(t *testing.T) {
	h := newHarness(t, fakebackend.Config{})
	c := h.client()
	ctx := context.Background()
	h.login(c)

	if err := tokenstore.New(h.backend).SaveAccessToken(ctx, "garbage"); err != nil {
		t.Fatalf("SaveAccessToken: %v", err)
	}
	snap, err := c.Resync(ctx)
	if err != nil {
		t.Fatalf("Resync: %v", err)
	}
	if snap.State != StateAnonymous || snap.User != nil {
		t.Fatalf("snapshot = %+v", snap)
	}
	if h.tokens().AccessToken != "garbage" {
		t.Fatalf("resync wrote to the store")
	}
}

func TestResyncHydratesStoredSession(t *testing.T) {
	h := newHarness(t, fakebackend.Config{})
	ctx := context.Background()
	access, refresh, err := h.fb.IssueTokens(aliceEmail)
	if err != nil {
		t.Fatalf("IssueTokens: %v", err)
	}
	if err := tokenstore.New(h.backend).SaveSession(ctx, access, refresh, aliceEmail); err != nil {
		t.Fatalf("SaveSession: %v", err)
	}

	c := h.client()
	if err := c.Start(ctx); err != nil {
		t.Fatalf("Start: %v", err)
	}
	defer c.Stop()
	if c.State() != StateAuthenticated {
		t.Fatalf("state after Start = %v", c.State())
	}
	if c.Metrics().Value(MetricSessionHydrated) != 1 {
		t.Fatalf("hydration not counted")
	}
}

func TestNotifyTokensUpdated(t *testing.T) {
	h := newHarness(t, fakebackend.Config{})
	ctx := context.Background()
	c := h.client()
	if err := c.Start(ctx); err != nil {
		t.Fatalf("Start: %v", err)
	}
	defer c.Stop()

	// writes that bypass the watched backend
	other := tokenstore.NewMemoryBackend()
	access, refresh, _ := h.fb.IssueTokens(aliceEmail)
	if err := tokenstore.New(other).SaveSession(ctx, access, refresh, aliceEmail); err != nil {
		t.Fatalf("SaveSession: %v", err)
	}
	c.NotifyTokensUpdated()
	if c.State() == StateAuthenticated {
		t.Fatalf("authenticated from another namespace")
	}

	store := tokenstore.New(h.backend)
	if err := store.SaveSession(ctx, access, refresh, aliceEmail); err != nil {
		t.Fatalf("SaveSession: %v", err)
	}
	c.NotifyTokensUpdated()
	waitFor(t, "authenticated", func() bool { return c.State() == StateAuthenticated })
}
