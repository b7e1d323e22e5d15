package panel

import (
	"context"
	"sync/atomic"
	"testing"
	"time"

	"dutybot/internal/duty"
	kit "dutybot/internal/transport"
	logx "dutybot/pkg/logx"
)

type fakeStore struct{}

func (fakeStore) ActiveSessions(context.Context) ([]duty.Session, error) { return nil, nil }
func (fakeStore) RecentEnded(context.Context, time.Time, int) ([]duty.Session, error) {
	return nil, nil
}
func (fakeStore) PanelRef(context.Context) (int64, int, bool, error) { return 0, 0, false, nil }
func (fakeStore) SavePanelRef(context.Context, int64, int) error     { return nil }

type countingSender struct{ sends atomic.Int32 }

func (s *countingSender) SendText(_ context.Context, to kit.ChatTarget, _ string, _ *kit.SendOptions) (kit.MessageRef, error) {
	s.sends.Add(1)
	return kit.MessageRef{ChatID: to.ChatID, MessageID: 1}, nil
}

func (s *countingSender) EditText(context.Context, kit.MessageRef, string, *kit.SendOptions) error {
	return nil
}

func TestRequestSyncBurstRendersOnce(t *testing.T) {
	sender := &countingSender{}
	svc := New(Config{ChatID: -100}, fakeStore{}, sender, nil, logx.Nop())

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan struct{})
	go func() {
		svc.Run(ctx)
		close(done)
	}()

	for i := 0; i < 5; i++ {
		svc.RequestSync()
	}

	deadline := time.After(2 * time.Second)
	for sender.sends.Load() == 0 {
		select {
		case <-deadline:
			t.Fatal("no render after burst")
		case <-time.After(20 * time.Millisecond):
		}
	}
	// Give a straggler render time to show up if debouncing is broken.
	time.Sleep(500 * time.Millisecond)
	if got := sender.sends.Load(); got != 1 {
		t.Fatalf("sends = %d, want 1", got)
	}

	cancel()
	<-done
}

func TestRequestSyncNeverBlocks(t *testing.T) {
	svc := New(Config{ChatID: -100}, fakeStore{}, &countingSender{}, nil, logx.Nop())
	// No Run loop draining; a burst must still return immediately.
	for i := 0; i < 100; i++ {
		svc.RequestSync()
	}
}
