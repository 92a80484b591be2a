// Package pipeline runs one complete recording: capture, relay session and
// transcript persistence. The agent daemon creates a fresh pipeline per
// recording and never reuses one.
package pipeline

import (
	"context"
	"errors"
	"log"
	"strings"
	"sync"
	"time"

	"github.com/verbatimhq/verbatim/internal/broker"
	"github.com/verbatimhq/verbatim/internal/notify"
	"github.com/verbatimhq/verbatim/internal/recording"
	"github.com/verbatimhq/verbatim/internal/relay"
)

// Recorder is the slice of the capture adapter the pipeline drives.
type Recorder interface {
	Start(ctx context.Context) (<-chan recording.AudioFrame, <-chan error, error)
	Encoding() recording.Encoding
	Stop() error
	Wait()
}

// Config assembles the pipeline's collaborators. Credentials and Saver
// usually point at the API server through the same client.
type Config struct {
	Recording recording.Config
	Socket    relay.SocketConfig

	Credentials broker.Source
	Saver       relay.Saver
	Notifier    notify.Notifier

	// NewRecorder and NewSocket replace the real capture and websocket
	// constructors; nil means the real implementations.
	NewRecorder func(recording.Config) Recorder
	NewSocket   func(relay.SocketConfig) relay.Socket

	// Timeout caps a single recording. Zero means 5 minutes.
	Timeout time.Duration
}

type Pipeline interface {
	Run(ctx context.Context)
	// Stop finishes the recording and persists the transcript.
	Stop()
	// Cancel finishes the recording and discards the transcript.
	Cancel()
	Status() relay.State
	Done() <-chan struct{}
}

type pipeline struct {
	cfg Config

	mu      sync.Mutex
	session *relay.Session
	stopped bool
	abort   bool
	cancel  context.CancelFunc

	done chan struct{}
}

func New(cfg Config) Pipeline {
	if cfg.Timeout <= 0 {
		cfg.Timeout = 5 * time.Minute
	}
	if cfg.Notifier == nil {
		cfg.Notifier = notify.Nop{}
	}
	if cfg.NewRecorder == nil {
		cfg.NewRecorder = func(rc recording.Config) Recorder { return recording.NewRecorder(rc) }
	}
	if cfg.NewSocket == nil {
		cfg.NewSocket = relay.NewWebSocket
	}
	return &pipeline{cfg: cfg, done: make(chan struct{})}
}

func (p *pipeline) Status() relay.State {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.session == nil {
		return relay.Idle
	}
	return p.session.State()
}

func (p *pipeline) Done() <-chan struct{} {
	return p.done
}

func (p *pipeline) Stop() {
	p.mu.Lock()
	p.stopped = true
	session := p.session
	cancel := p.cancel
	p.mu.Unlock()

	if session != nil {
		session.Stop()
		return
	}
	// no session yet: kill the run before it starts one
	if cancel != nil {
		cancel()
	}
}

func (p *pipeline) Cancel() {
	p.mu.Lock()
	p.stopped = true
	p.abort = true
	session := p.session
	cancel := p.cancel
	p.mu.Unlock()

	if session != nil {
		session.Abort()
		return
	}
	if cancel != nil {
		cancel()
	}
}

func (p *pipeline) Run(ctx context.Context) {
	runCtx, cancel := context.WithTimeout(ctx, p.cfg.Timeout)

	p.mu.Lock()
	p.cancel = cancel
	p.mu.Unlock()

	go p.run(runCtx, cancel)
}

func (p *pipeline) run(ctx context.Context, cancel context.CancelFunc) {
	defer close(p.done)
	defer cancel()

	recorder := p.cfg.NewRecorder(p.cfg.Recording)
	frameCh, errCh, err := recorder.Start(ctx)
	if err != nil {
		log.Printf("pipeline: start capture: %v", err)
		p.cfg.Notifier.Error("could not start recording: " + err.Error())
		return
	}

	// container formats describe themselves; raw PCM needs wire params
	socketCfg := p.cfg.Socket
	if params := recorder.Encoding().WireParams(p.cfg.Recording.SampleRate, p.cfg.Recording.Channels); params != nil {
		merged := make(map[string]string, len(socketCfg.Params)+len(params))
		for k, v := range socketCfg.Params {
			merged[k] = v
		}
		for k, v := range params {
			merged[k] = v
		}
		socketCfg.Params = merged
	}

	session := relay.NewSession(relay.SessionConfig{
		Credentials:    p.cfg.Credentials,
		Socket:         p.cfg.NewSocket(socketCfg),
		Frames:         frameCh,
		StopCapture:    recorder.Stop,
		Saver:          p.cfg.Saver,
		ConnectTimeout: socketCfg.ConnectTimeout,
	})

	p.mu.Lock()
	p.session = session
	stopped := p.stopped
	abort := p.abort
	p.mu.Unlock()

	// a stop that raced pipeline startup still wins
	if abort {
		session.Abort()
	} else if stopped {
		session.Stop()
	}

	go func() {
		for err := range errCh {
			log.Printf("pipeline: capture error: %v", err)
		}
	}()

	p.cfg.Notifier.RecordingChanged(true)

	runErr := session.Run(ctx)
	recorder.Wait()

	p.cfg.Notifier.RecordingChanged(false)

	if runErr != nil && !errors.Is(runErr, context.Canceled) && !errors.Is(runErr, context.DeadlineExceeded) {
		log.Printf("pipeline: session ended with error: %v", runErr)
		p.cfg.Notifier.Error("recording failed: " + runErr.Error())
		return
	}

	p.mu.Lock()
	abort = p.abort
	p.mu.Unlock()

	final, _ := session.Transcript()
	if !abort && strings.TrimSpace(final) != "" {
		p.cfg.Notifier.TranscriptSaved(final)
	}
}
