// Package testutil holds shared helpers for package tests.
package testutil

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/verbatimhq/verbatim/internal/recording"
)

// MockAudioFrame creates a test audio frame
func MockAudioFrame(data []byte) recording.AudioFrame {
	if data == nil {
		data = make([]byte, 1024)
		for i := range data {
			data[i] = byte(i % 256)
		}
	}
	return recording.AudioFrame{Data: data, Timestamp: time.Now()}
}

// TestContext returns a context with timeout for testing
func TestContext() (context.Context, context.CancelFunc) {
	return context.WithTimeout(context.Background(), 5*time.Second)
}

// WaitForCondition waits for a condition to be true or times out
func WaitForCondition(t *testing.T, condition func() bool, timeout time.Duration) {
	t.Helper()

	ctx, cancel := context.WithTimeout(context.Background(), timeout)
	defer cancel()

	for {
		select {
		case <-ctx.Done():
			t.Fatalf("Condition not met within %v", timeout)
		default:
			if condition() {
				return
			}
			time.Sleep(10 * time.Millisecond)
		}
	}
}

// MockSaver records saved transcripts for assertions. Safe for use from the
// goroutine doing the saving.
type MockSaver struct {
	mu    sync.Mutex
	saved []string
	Err   error
}

func (m *MockSaver) SaveTranscript(ctx context.Context, text string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.Err != nil {
		return m.Err
	}
	m.saved = append(m.saved, text)
	return nil
}

// Saved returns a copy of the transcripts saved so far.
func (m *MockSaver) Saved() []string {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := make([]string, len(m.saved))
	copy(out, m.saved)
	return out
}
