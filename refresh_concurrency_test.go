package authcore

import (
	"context"
	"errors"
	"sync"
	"testing"
)

func TestRefreshConcurrencySingleWinner(t *testing.T) {
	fx := newEngineFixture(t, nil)

	pair := mustLogin(t, fx)

	const n = 16
	var wg sync.WaitGroup
	wg.Add(n)

	results := make(chan error, n)
	for i := 0; i < n; i++ {
		go func() {
			defer wg.Done()
			_, err := fx.engine.Refresh(context.Background(), pair.RefreshToken)
			results <- err
		}()
	}
	wg.Wait()
	close(results)

	success := 0
	fail := 0
	for err := range results {
		if err == nil {
			success++
			continue
		}
		// Losers see either the rotation race classified as replay or,
		// once the sweep lands, a plain invalid-token rejection.
		if errors.Is(err, ErrTokenInvalid) {
			fail++
			continue
		}
		t.Fatalf("unexpected refresh error: %v", err)
	}

	if success != 1 {
		t.Fatalf("expected exactly one refresh success, got %d", success)
	}
	if fail != n-1 {
		t.Fatalf("expected %d refresh failures, got %d", n-1, fail)
	}
}

func TestConcurrentLoginAndLogoutAll(t *testing.T) {
	fx := newEngineFixture(t, nil)
	ctx := context.Background()

	const n = 8
	var wg sync.WaitGroup
	wg.Add(n + 1)

	for i := 0; i < n; i++ {
		go func() {
			defer wg.Done()
			_, _ = fx.engine.Login(ctx, "alice", "correct-password-123")
		}()
	}
	go func() {
		defer wg.Done()
		_, _ = fx.engine.LogoutAll(ctx, "sub-alice")
	}()
	wg.Wait()

	// Whatever interleaving happened, a final sweep must leave nothing.
	if _, err := fx.engine.LogoutAll(ctx, "sub-alice"); err != nil {
		t.Fatalf("final logout all failed: %v", err)
	}
	if n, err := fx.engine.LogoutAll(ctx, "sub-alice"); err != nil || n != 0 {
		t.Fatalf("subject still holds tokens: n=%d err=%v", n, err)
	}
}
