package daemon

import (
	"bufio"
	"context"
	"errors"
	"net"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/verbatimhq/verbatim/internal/pipeline"
	"github.com/verbatimhq/verbatim/internal/relay"
	"github.com/verbatimhq/verbatim/internal/testutil"
)

func testDaemon() *Daemon {
	ctx, cancel := context.WithCancel(context.Background())
	return &Daemon{ctx: ctx, cancel: cancel}
}

// fakePipeline stands in for a recording pipeline; finish simulates its
// teardown completing.
type fakePipeline struct {
	mu    sync.Mutex
	state relay.State
	stops int
	done  chan struct{}
}

func newFakePipeline() *fakePipeline {
	return &fakePipeline{state: relay.Idle, done: make(chan struct{})}
}

func (p *fakePipeline) Run(ctx context.Context) {
	p.mu.Lock()
	p.state = relay.Streaming
	p.mu.Unlock()
}

func (p *fakePipeline) Stop() {
	p.mu.Lock()
	p.stops++
	p.state = relay.Stopping
	p.mu.Unlock()
}

func (p *fakePipeline) Cancel() {
	p.mu.Lock()
	p.state = relay.Stopping
	p.mu.Unlock()
}

func (p *fakePipeline) Status() relay.State {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.state
}

func (p *fakePipeline) Done() <-chan struct{} { return p.done }

func (p *fakePipeline) stopCount() int {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.stops
}

func (p *fakePipeline) finish() {
	p.mu.Lock()
	p.state = relay.Closed
	p.mu.Unlock()
	close(p.done)
}

func send(t *testing.T, d *Daemon, cmd byte) string {
	t.Helper()
	client, server := net.Pipe()
	defer client.Close()

	go d.handle(server)

	if _, err := client.Write([]byte{cmd, '\n'}); err != nil {
		t.Fatalf("write command: %v", err)
	}
	resp, err := bufio.NewReader(client).ReadString('\n')
	if err != nil {
		t.Fatalf("read response: %v", err)
	}
	return resp
}

func TestStatusWhenIdle(t *testing.T) {
	d := testDaemon()

	resp := send(t, d, 's')
	if !strings.Contains(resp, string(relay.Idle)) {
		t.Errorf("expected idle status, got %q", resp)
	}
}

func TestVersionCommand(t *testing.T) {
	d := testDaemon()

	resp := send(t, d, 'v')
	if !strings.HasPrefix(resp, "STATUS proto=") {
		t.Errorf("unexpected version response: %q", resp)
	}
}

func TestUnknownCommand(t *testing.T) {
	d := testDaemon()

	resp := send(t, d, 'x')
	if !strings.HasPrefix(resp, "ERR") {
		t.Errorf("expected error response, got %q", resp)
	}
}

func TestQuitCancelsContext(t *testing.T) {
	d := testDaemon()

	resp := send(t, d, 'q')
	if !strings.HasPrefix(resp, "OK") {
		t.Errorf("expected OK, got %q", resp)
	}
	select {
	case <-d.ctx.Done():
	default:
		t.Error("expected daemon context cancelled after quit")
	}
}

func TestCancelWithoutPipeline(t *testing.T) {
	d := testDaemon()

	resp := send(t, d, 'c')
	if !strings.HasPrefix(resp, "OK") {
		t.Errorf("expected OK, got %q", resp)
	}
}

func TestToggleBuildFailureReturnsErr(t *testing.T) {
	d := testDaemon()
	d.newPipeline = func() (pipeline.Pipeline, error) {
		return nil, errors.New("api.token not configured")
	}

	resp := send(t, d, 't')
	if !strings.HasPrefix(resp, "ERR toggle") {
		t.Errorf("expected toggle error, got %q", resp)
	}
}

func TestToggleWaitsForFinalizeBeforeNextRecording(t *testing.T) {
	d := testDaemon()

	var pipelines []*fakePipeline
	d.newPipeline = func() (pipeline.Pipeline, error) {
		p := newFakePipeline()
		pipelines = append(pipelines, p)
		return p, nil
	}

	if err := d.toggle(); err != nil {
		t.Fatalf("first toggle: %v", err)
	}
	if len(pipelines) != 1 {
		t.Fatalf("pipelines built = %d, want 1", len(pipelines))
	}

	if err := d.toggle(); err != nil {
		t.Fatalf("second toggle: %v", err)
	}
	if got := pipelines[0].stopCount(); got != 1 {
		t.Fatalf("stops = %d, want 1", got)
	}

	// the previous session is still finalizing: no new recorder process or
	// socket may come up underneath it
	if err := d.toggle(); err == nil {
		t.Fatal("toggle succeeded while previous session was finalizing")
	}
	if len(pipelines) != 1 {
		t.Fatalf("a new pipeline was built during finalize, got %d", len(pipelines))
	}

	pipelines[0].finish()

	// teardown complete: the slot drains and the next toggle starts fresh
	testutil.WaitForCondition(t, func() bool { return d.toggle() == nil }, time.Second)
	if len(pipelines) != 2 {
		t.Fatalf("pipelines built = %d, want 2", len(pipelines))
	}
}
