package client

import (
	"context"
	"fmt"
	"sync/atomic"
	"testing"
	"time"

	"github.com/luciancaetano/luster"
	"github.com/luciancaetano/luster/internal/protocol"
)

// TestStressEventBurst pushes a large burst of frames through one session
// and checks that every event arrives, in order, with the cache applied.
func TestStressEventBurst(t *testing.T) {
	if testing.Short() {
		t.Skip("skipping stress test in short mode")
	}
	t.Parallel()

	const (
		bulkFrames   = 50
		perBulk      = 100
		totalUpdates = bulkFrames * perBulk
	)

	srv := newTestServer(t)
	cfg := testConfig(srv.URL())
	cfg.Format = "msgpack"
	s := newTestSession(t, cfg)

	var (
		seen     atomic.Int64
		outOfSeq atomic.Int64
		stale    atomic.Int64
	)
	done := make(chan struct{})
	s.On(luster.KindUserUpdate, func(ctx context.Context, ev luster.Event) error {
		update := ev.(luster.UserUpdateEvent)
		n := seen.Add(1)
		if update.Data["username"] != fmt.Sprintf("alice-%d", n) {
			outOfSeq.Add(1)
		}
		if user, ok := s.Cache().Users().Get("U1"); !ok || user.Username != update.Data["username"] {
			stale.Add(1)
		}
		if n == totalUpdates {
			close(done)
		}
		return nil
	})

	ready := waitEvent(s, luster.KindReady)
	if err := s.Connect(context.Background()); err != nil {
		t.Fatalf("Connect() failed: %v", err)
	}
	receive(t, ready)

	start := time.Now()
	n := 0
	for range bulkFrames {
		items := make([]any, 0, perBulk)
		for range perBulk {
			n++
			items = append(items, map[string]any{
				"type": "UserUpdate",
				"id":   "U1",
				"data": map[string]any{"username": fmt.Sprintf("alice-%d", n)},
			})
		}
		srv.Send(protocol.Frame{"type": "Bulk", "v": items})
	}

	select {
	case <-done:
	case <-time.After(20 * time.Second):
		t.Fatalf("dispatched %d of %d events", seen.Load(), totalUpdates)
	}

	elapsed := time.Since(start)
	t.Logf("dispatched %d events in %v (%.0f events/sec)", totalUpdates, elapsed, float64(totalUpdates)/elapsed.Seconds())

	if outOfSeq.Load() != 0 {
		t.Errorf("%d events arrived out of order", outOfSeq.Load())
	}
	if stale.Load() != 0 {
		t.Errorf("%d listeners saw a cache that had not applied their event", stale.Load())
	}
	if s.State() != luster.Connected {
		t.Errorf("State() = %s, want connected", s.State())
	}
}
