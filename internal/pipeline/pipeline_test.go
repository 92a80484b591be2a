package pipeline

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/verbatimhq/verbatim/internal/recording"
	"github.com/verbatimhq/verbatim/internal/relay"
	"github.com/verbatimhq/verbatim/internal/testutil"
)

type staticCredentials string

func (s staticCredentials) Credential(ctx context.Context) (string, error) {
	return string(s), nil
}

// fakeRecorder produces frames from a test-driven channel instead of a
// capture process.
type fakeRecorder struct {
	enc    recording.Encoding
	frames chan recording.AudioFrame
	errs   chan error

	startErr error
	stops    atomic.Int64
	stopOnce sync.Once
}

func newFakeRecorder(enc recording.Encoding) *fakeRecorder {
	return &fakeRecorder{
		enc:    enc,
		frames: make(chan recording.AudioFrame, 4),
		errs:   make(chan error, 1),
	}
}

func (r *fakeRecorder) Start(ctx context.Context) (<-chan recording.AudioFrame, <-chan error, error) {
	if r.startErr != nil {
		return nil, nil, r.startErr
	}
	return r.frames, r.errs, nil
}

func (r *fakeRecorder) Encoding() recording.Encoding { return r.enc }

func (r *fakeRecorder) Stop() error {
	r.stops.Add(1)
	r.stopOnce.Do(func() {
		close(r.frames)
		close(r.errs)
	})
	return nil
}

func (r *fakeRecorder) Wait() {}

// fakeSocket records the config it was built with and lets the test script
// the event stream.
type fakeSocket struct {
	cfg    relay.SocketConfig
	events chan relay.SocketEvent

	mu    sync.Mutex
	sends int
	close int
}

func newFakeSocket(cfg relay.SocketConfig) *fakeSocket {
	return &fakeSocket{cfg: cfg, events: make(chan relay.SocketEvent, 64)}
}

func (f *fakeSocket) Open(ctx context.Context, credential string) error { return nil }

func (f *fakeSocket) Send(data []byte) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.sends++
	return nil
}

func (f *fakeSocket) Events() <-chan relay.SocketEvent { return f.events }

func (f *fakeSocket) Close() error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.close++
	return nil
}

func (f *fakeSocket) sendCount() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.sends
}

func (f *fakeSocket) closeCount() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.close
}

func (f *fakeSocket) opened() { f.events <- relay.SocketEvent{Kind: relay.SocketOpened} }

func (f *fakeSocket) message(payload string) {
	f.events <- relay.SocketEvent{Kind: relay.SocketMessage, Payload: []byte(payload)}
}

func (f *fakeSocket) remoteClosed() { f.events <- relay.SocketEvent{Kind: relay.SocketClosed} }

// harness wires a pipeline to fakes and hands the test the live socket once
// the run goroutine has built it.
type harness struct {
	pipeline Pipeline
	recorder *fakeRecorder
	saver    *testutil.MockSaver

	mu   sync.Mutex
	sock *fakeSocket
}

func newHarness(enc recording.Encoding, timeout time.Duration) *harness {
	h := &harness{
		recorder: newFakeRecorder(enc),
		saver:    &testutil.MockSaver{},
	}
	h.pipeline = New(Config{
		Recording:   recording.DefaultConfig(),
		Socket:      relay.SocketConfig{URL: "wss://example.test/v1/listen", Model: "nova-2"},
		Credentials: staticCredentials("ephemeral"),
		Saver:       h.saver,
		Timeout:     timeout,
		NewRecorder: func(recording.Config) Recorder { return h.recorder },
		NewSocket: func(cfg relay.SocketConfig) relay.Socket {
			s := newFakeSocket(cfg)
			h.mu.Lock()
			h.sock = s
			h.mu.Unlock()
			return s
		},
	})
	return h
}

func (h *harness) socket(t *testing.T) *fakeSocket {
	t.Helper()
	testutil.WaitForCondition(t, func() bool {
		h.mu.Lock()
		defer h.mu.Unlock()
		return h.sock != nil
	}, 2*time.Second)
	h.mu.Lock()
	defer h.mu.Unlock()
	return h.sock
}

func waitDone(t *testing.T, p Pipeline) {
	t.Helper()
	select {
	case <-p.Done():
	case <-time.After(2 * time.Second):
		t.Fatal("pipeline never finished")
	}
}

func TestStatusBeforeRunIsIdle(t *testing.T) {
	p := New(Config{})
	if got := p.Status(); got != relay.Idle {
		t.Errorf("expected Idle before Run, got %v", got)
	}
}

func TestStopBeforeRunDoesNotPanic(t *testing.T) {
	p := New(Config{})
	p.Stop()
	p.Cancel()
}

func TestRunStreamsAndPersists(t *testing.T) {
	h := newHarness(recording.OpusWebM, 0)
	ctx, cancel := testutil.TestContext()
	defer cancel()

	h.pipeline.Run(ctx)
	sock := h.socket(t)

	sock.opened()
	testutil.WaitForCondition(t, func() bool {
		return h.pipeline.Status() == relay.Streaming
	}, 2*time.Second)

	h.recorder.frames <- testutil.MockAudioFrame(nil)
	testutil.WaitForCondition(t, func() bool { return sock.sendCount() == 1 }, 2*time.Second)

	// events are ordered, so the final lands before the close is seen
	sock.message(`{"channel":{"alternatives":[{"transcript":"hello world"}]},"is_final":true}`)
	sock.remoteClosed()
	waitDone(t, h.pipeline)

	if got := h.saver.Saved(); len(got) != 1 || got[0] != "hello world" {
		t.Errorf("saved = %v, want [hello world]", got)
	}
	if h.recorder.stops.Load() == 0 {
		t.Error("recorder was never stopped")
	}
	if sock.closeCount() == 0 {
		t.Error("socket was never closed")
	}
}

func TestRunMergesWireParamsForRawPCM(t *testing.T) {
	h := newHarness(recording.WAV, 0)
	ctx, cancel := testutil.TestContext()
	defer cancel()

	h.pipeline.Run(ctx)
	sock := h.socket(t)

	if got := sock.cfg.Params["encoding"]; got != "linear16" {
		t.Errorf("encoding param = %q, want linear16", got)
	}
	if got := sock.cfg.Params["sample_rate"]; got != "16000" {
		t.Errorf("sample_rate param = %q, want 16000", got)
	}
	if got := sock.cfg.Params["channels"]; got != "1" {
		t.Errorf("channels param = %q, want 1", got)
	}

	sock.opened()
	h.pipeline.Stop()
	waitDone(t, h.pipeline)
}

func TestRunLeavesContainerParamsAlone(t *testing.T) {
	h := newHarness(recording.OpusWebM, 0)
	ctx, cancel := testutil.TestContext()
	defer cancel()

	h.pipeline.Run(ctx)
	sock := h.socket(t)

	if len(sock.cfg.Params) != 0 {
		t.Errorf("params = %v, want none for a self-describing container", sock.cfg.Params)
	}

	sock.opened()
	h.pipeline.Stop()
	waitDone(t, h.pipeline)
}

func TestStopRacingStartupSendsNoFrames(t *testing.T) {
	h := newHarness(recording.OpusWebM, 0)
	ctx, cancel := testutil.TestContext()
	defer cancel()

	h.pipeline.Run(ctx)
	h.pipeline.Stop()

	// the open resolves after the stop; teardown must still complete
	sock := h.socket(t)
	sock.opened()
	waitDone(t, h.pipeline)

	if n := sock.sendCount(); n != 0 {
		t.Errorf("frames sent = %d, want 0", n)
	}
	if got := h.saver.Saved(); len(got) != 0 {
		t.Errorf("saved = %v, want nothing", got)
	}
}

func TestCancelDiscardsTranscript(t *testing.T) {
	h := newHarness(recording.OpusWebM, 0)
	ctx, cancel := testutil.TestContext()
	defer cancel()

	h.pipeline.Run(ctx)
	sock := h.socket(t)

	sock.opened()
	testutil.WaitForCondition(t, func() bool {
		return h.pipeline.Status() == relay.Streaming
	}, 2*time.Second)

	sock.message(`{"channel":{"alternatives":[{"transcript":"discard me"}]},"is_final":true}`)
	h.pipeline.Cancel()
	waitDone(t, h.pipeline)

	if got := h.saver.Saved(); len(got) != 0 {
		t.Errorf("saved = %v, want nothing after cancel", got)
	}
}

func TestRecordingTimeoutStillPersists(t *testing.T) {
	h := newHarness(recording.OpusWebM, 250*time.Millisecond)
	ctx, cancel := testutil.TestContext()
	defer cancel()

	h.pipeline.Run(ctx)
	sock := h.socket(t)

	sock.opened()
	testutil.WaitForCondition(t, func() bool {
		return h.pipeline.Status() == relay.Streaming
	}, 2*time.Second)
	sock.message(`{"channel":{"alternatives":[{"transcript":"five minutes of dictation"}]},"is_final":true}`)

	// nobody stops the recording; the timeout does
	waitDone(t, h.pipeline)

	if got := h.saver.Saved(); len(got) != 1 || got[0] != "five minutes of dictation" {
		t.Errorf("saved = %v, want the accumulated transcript", got)
	}
}

func TestCaptureStartFailureFinishes(t *testing.T) {
	h := newHarness(recording.OpusWebM, 0)
	h.recorder.startErr = errors.New("no capture backend")
	ctx, cancel := testutil.TestContext()
	defer cancel()

	h.pipeline.Run(ctx)
	waitDone(t, h.pipeline)

	if got := h.saver.Saved(); len(got) != 0 {
		t.Errorf("saved = %v, want nothing", got)
	}
}
