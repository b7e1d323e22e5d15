package tracker

import (
	"context"
	"sync"
	"testing"
	"time"

	logx "dutybot/pkg/logx"
)

type memStore struct {
	mu       sync.Mutex
	messages map[int64]int
	voice    map[int64]int
}

func newMemStore() *memStore {
	return &memStore{messages: map[int64]int{}, voice: map[int64]int{}}
}

func (s *memStore) AddMessages(_ context.Context, userID int64, n int, _ time.Time) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.messages[userID] += n
	return nil
}

func (s *memStore) AddVoiceMinutes(_ context.Context, userID int64, minutes int, _ time.Time) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.voice[userID] += minutes
	return nil
}

type countRecalc struct{ calls int }

func (r *countRecalc) Recalculate(_ context.Context, _ int64) { r.calls++ }

func TestRecordMessage(t *testing.T) {
	store := newMemStore()
	recalc := &countRecalc{}
	tr := New(Config{}, store, recalc, logx.Nop())

	tr.RecordMessage(context.Background(), 1)
	tr.RecordMessage(context.Background(), 1)

	if got := store.messages[1]; got != 2 {
		t.Fatalf("messages = %d, want 2", got)
	}
	if recalc.calls != 2 {
		t.Fatalf("recalc calls = %d, want 2", recalc.calls)
	}
}

func TestVoiceStintCreditsWholeMinutes(t *testing.T) {
	store := newMemStore()
	tr := New(Config{MinimumVoiceSession: time.Minute}, store, nil, logx.Nop())

	now := time.Date(2025, 6, 1, 12, 0, 0, 0, time.UTC)
	tr.now = func() time.Time { return now }

	tr.VoiceJoin(1)
	if !tr.InVoice(1) {
		t.Fatal("user not marked in voice")
	}
	now = now.Add(12*time.Minute + 30*time.Second)
	tr.VoiceLeave(context.Background(), 1)

	if got := store.voice[1]; got != 12 {
		t.Fatalf("voice minutes = %d, want 12", got)
	}
	if tr.InVoice(1) {
		t.Fatal("user still marked in voice after leave")
	}
}

func TestShortVoiceStintEarnsNothing(t *testing.T) {
	store := newMemStore()
	tr := New(Config{MinimumVoiceSession: 5 * time.Minute}, store, nil, logx.Nop())

	now := time.Date(2025, 6, 1, 12, 0, 0, 0, time.UTC)
	tr.now = func() time.Time { return now }

	tr.VoiceJoin(1)
	now = now.Add(3 * time.Minute)
	tr.VoiceLeave(context.Background(), 1)

	if got := store.voice[1]; got != 0 {
		t.Fatalf("voice minutes = %d, want 0", got)
	}
}

func TestDoubleJoinKeepsOriginalStart(t *testing.T) {
	store := newMemStore()
	tr := New(Config{}, store, nil, logx.Nop())

	now := time.Date(2025, 6, 1, 12, 0, 0, 0, time.UTC)
	tr.now = func() time.Time { return now }

	tr.VoiceJoin(1)
	now = now.Add(5 * time.Minute)
	tr.VoiceJoin(1) // duplicate event
	now = now.Add(5 * time.Minute)
	tr.VoiceLeave(context.Background(), 1)

	if got := store.voice[1]; got != 10 {
		t.Fatalf("voice minutes = %d, want 10", got)
	}
}

func TestVoiceEndAllCreditsOpenStints(t *testing.T) {
	store := newMemStore()
	recalc := &countRecalc{}
	tr := New(Config{MinimumVoiceSession: time.Minute}, store, recalc, logx.Nop())

	now := time.Date(2025, 6, 1, 12, 0, 0, 0, time.UTC)
	tr.now = func() time.Time { return now }

	tr.VoiceJoin(1)
	tr.VoiceJoin(2)
	now = now.Add(8 * time.Minute)
	tr.VoiceEndAll(context.Background())

	if got := store.voice[1]; got != 8 {
		t.Fatalf("user 1 voice minutes = %d, want 8", got)
	}
	if got := store.voice[2]; got != 8 {
		t.Fatalf("user 2 voice minutes = %d, want 8", got)
	}
	if tr.InVoice(1) || tr.InVoice(2) {
		t.Fatal("stints still open after end-all")
	}
	if recalc.calls != 2 {
		t.Fatalf("recalc calls = %d, want 2", recalc.calls)
	}
}

func TestLeaveWithoutJoinIsNoop(t *testing.T) {
	store := newMemStore()
	tr := New(Config{}, store, nil, logx.Nop())
	tr.VoiceLeave(context.Background(), 1)
	if got := store.voice[1]; got != 0 {
		t.Fatalf("voice minutes = %d, want 0", got)
	}
}
