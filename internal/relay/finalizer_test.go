package relay

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"
	"testing"
)

type countingSaver struct {
	saves atomic.Int64
	text  atomic.Value
	err   error
}

func (s *countingSaver) SaveTranscript(ctx context.Context, text string) error {
	s.saves.Add(1)
	s.text.Store(text)
	return s.err
}

func TestFinalizer_SavesAccumulatedText(t *testing.T) {
	rec := NewReconciler(nil)
	rec.OnFinal("hello world")

	saver := &countingSaver{}
	var captureStopped, socketClosed bool
	fin := NewFinalizer(
		func() error { captureStopped = true; return nil },
		func() error { socketClosed = true; return nil },
		rec, saver,
	)

	if err := fin.Finalize(context.Background()); err != nil {
		t.Fatalf("Finalize() error = %v", err)
	}
	if !captureStopped || !socketClosed {
		t.Errorf("teardown incomplete: capture=%v socket=%v", captureStopped, socketClosed)
	}
	if saver.saves.Load() != 1 {
		t.Errorf("saves = %d, want 1", saver.saves.Load())
	}
	if saver.text.Load() != "hello world" {
		t.Errorf("saved text = %q, want %q", saver.text.Load(), "hello world")
	}
}

func TestFinalizer_EmptyTextSkipsSave(t *testing.T) {
	saver := &countingSaver{}
	fin := NewFinalizer(nil, nil, NewReconciler(nil), saver)

	if err := fin.Finalize(context.Background()); err != nil {
		t.Fatalf("Finalize() error = %v", err)
	}
	if saver.saves.Load() != 0 {
		t.Errorf("saves = %d, want 0 for empty transcript", saver.saves.Load())
	}
}

func TestFinalizer_Idempotent(t *testing.T) {
	rec := NewReconciler(nil)
	rec.OnFinal("once")

	saver := &countingSaver{}
	stops := 0
	fin := NewFinalizer(func() error { stops++; return nil }, nil, rec, saver)

	for i := 0; i < 3; i++ {
		if err := fin.Finalize(context.Background()); err != nil {
			t.Fatalf("Finalize() call %d error = %v", i+1, err)
		}
	}

	if stops != 1 {
		t.Errorf("capture stopped %d times, want 1", stops)
	}
	if saver.saves.Load() != 1 {
		t.Errorf("saves = %d, want 1", saver.saves.Load())
	}
}

func TestFinalizer_ConcurrentCallsSaveOnce(t *testing.T) {
	rec := NewReconciler(nil)
	rec.OnFinal("racy")

	saver := &countingSaver{}
	fin := NewFinalizer(nil, nil, rec, saver)

	var wg sync.WaitGroup
	for i := 0; i < 16; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_ = fin.Finalize(context.Background())
		}()
	}
	wg.Wait()

	if saver.saves.Load() != 1 {
		t.Errorf("saves = %d, want exactly 1", saver.saves.Load())
	}
	if !fin.Finalized() {
		t.Error("Finalized() = false after Finalize")
	}
}

// cancelAwareSaver fails the way a real HTTP saver does when handed a dead
// context, so tests catch teardown paths that reuse the cancelled one.
type cancelAwareSaver struct {
	countingSaver
	attempts atomic.Int64
}

func (s *cancelAwareSaver) SaveTranscript(ctx context.Context, text string) error {
	s.attempts.Add(1)
	if err := ctx.Err(); err != nil {
		return err
	}
	return s.countingSaver.SaveTranscript(ctx, text)
}

func TestFinalizer_SavesAfterContextCancellation(t *testing.T) {
	rec := NewReconciler(nil)
	rec.OnFinal("five minutes of dictation")

	saver := &cancelAwareSaver{}
	fin := NewFinalizer(nil, nil, rec, saver)

	// the session context is already dead when teardown starts, exactly
	// what a recording timeout or agent shutdown produces
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	if err := fin.Finalize(ctx); err != nil {
		t.Fatalf("Finalize() error = %v", err)
	}
	if saver.saves.Load() != 1 {
		t.Fatalf("saves = %d, want 1", saver.saves.Load())
	}
	if got := saver.text.Load(); got != "five minutes of dictation" {
		t.Errorf("saved text = %q", got)
	}
}

func TestFinalizer_PersistenceFailureIsSurfacedNotRetried(t *testing.T) {
	rec := NewReconciler(nil)
	rec.OnFinal("doomed")

	wantErr := errors.New("store unavailable")
	saver := &countingSaver{err: wantErr}
	fin := NewFinalizer(nil, nil, rec, saver)

	err := fin.Finalize(context.Background())
	if !errors.Is(err, wantErr) {
		t.Fatalf("Finalize() error = %v, want wrapped %v", err, wantErr)
	}

	// a second call reports the same failure without re-attempting
	err = fin.Finalize(context.Background())
	if !errors.Is(err, wantErr) {
		t.Fatalf("second Finalize() error = %v, want same failure", err)
	}
	if saver.saves.Load() != 1 {
		t.Errorf("saves = %d, want 1 (no retry)", saver.saves.Load())
	}
}
