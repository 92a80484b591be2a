package relay

import (
	"context"
	"encoding/json"
	"fmt"
	"log"
	"sync"
	"sync/atomic"
	"time"

	"github.com/verbatimhq/verbatim/internal/broker"
	"github.com/verbatimhq/verbatim/internal/recording"
)

// SessionConfig wires one recording attempt together. Every collaborator is
// injected so the session runs against fakes in tests.
type SessionConfig struct {
	Credentials broker.Source
	Socket      Socket
	Frames      <-chan recording.AudioFrame
	StopCapture func() error
	Saver       Saver

	// ConnectTimeout bounds credential fetch plus socket open. Keep it
	// below the credential TTL.
	ConnectTimeout time.Duration

	// OnState is called after every state change, from the session
	// goroutine. Optional.
	OnState func(State)

	// OnTranscript is called after every accepted result message with the
	// current final and partial text. Optional.
	OnTranscript func(final, partial string)
}

// Session is one complete recording attempt, from credential request to
// finalize. It is never reused; construct a new one per recording, and let
// the previous one reach Closed first.
type Session struct {
	cfg SessionConfig
	rec *Reconciler
	fin *Finalizer

	mu    sync.Mutex
	state State

	stopOnce sync.Once
	stopCh   chan struct{}

	framesSent atomic.Int64
	discard    atomic.Bool
}

func NewSession(cfg SessionConfig) *Session {
	if cfg.ConnectTimeout <= 0 {
		cfg.ConnectTimeout = 10 * time.Second
	}
	s := &Session{
		cfg:    cfg,
		state:  Idle,
		stopCh: make(chan struct{}),
	}
	s.rec = NewReconciler(nil)
	s.fin = NewFinalizer(cfg.StopCapture, cfg.Socket.Close, s.rec, cfg.Saver)
	return s
}

// State returns the current lifecycle state.
func (s *Session) State() State {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.state
}

// Transcript returns the current final and partial text.
func (s *Session) Transcript() (final, partial string) {
	return s.rec.Snapshot()
}

// FramesSent reports how many frames were delivered to the socket.
func (s *Session) FramesSent() int64 {
	return s.framesSent.Load()
}

// Stop requests a user-initiated stop. Safe to call at any point in the
// lifecycle, including before the socket has reported open; the session
// still reaches Closed and sends no frames after the request.
func (s *Session) Stop() {
	s.stopOnce.Do(func() { close(s.stopCh) })
}

// Abort is Stop without persistence: the accumulated text is discarded.
func (s *Session) Abort() {
	s.discard.Store(true)
	s.Stop()
}

func (s *Session) setState(next State) {
	s.mu.Lock()
	if s.state == next {
		s.mu.Unlock()
		return
	}
	s.state = next
	s.mu.Unlock()

	if s.cfg.OnState != nil {
		s.cfg.OnState(next)
	}
}

// Run drives the session to completion and always leaves it Closed. Setup
// failures (credential, connect) are returned; mid-stream socket errors are
// absorbed into teardown and reported through the finalize result.
func (s *Session) Run(ctx context.Context) error {
	defer s.setState(Closed)

	s.setState(Connecting)

	credential, err := s.fetchCredential(ctx)
	if err != nil {
		s.setState(Stopping)
		ferr := s.finalize(ctx)
		if err == errStopped {
			return ferr
		}
		return err
	}

	if err := s.cfg.Socket.Open(ctx, credential); err != nil {
		s.setState(Stopping)
		s.finalize(ctx)
		return fmt.Errorf("open socket: %w", err)
	}

	connectTimer := time.NewTimer(s.cfg.ConnectTimeout)
	defer connectTimer.Stop()

	return s.loop(ctx, connectTimer)
}

// errStopped marks a stop that raced the credential fetch.
var errStopped = fmt.Errorf("relay: stopped before connect")

func (s *Session) fetchCredential(ctx context.Context) (string, error) {
	type credResult struct {
		key string
		err error
	}
	ch := make(chan credResult, 1)
	go func() {
		key, err := s.cfg.Credentials.Credential(ctx)
		ch <- credResult{key, err}
	}()

	select {
	case res := <-ch:
		if res.err != nil {
			return "", fmt.Errorf("request credential: %w", res.err)
		}
		return res.key, nil
	case <-s.stopCh:
		return "", errStopped
	case <-ctx.Done():
		return "", ctx.Err()
	case <-time.After(s.cfg.ConnectTimeout):
		return "", fmt.Errorf("request credential: %w", ErrConnect)
	}
}

// loop is the single dispatch point for the session's suspension points:
// socket events, capture frames, stop requests, connect timeout and context
// cancellation. State decides how each event is handled; no ad hoc flags.
func (s *Session) loop(ctx context.Context, connectTimer *time.Timer) error {
	frames := s.cfg.Frames
	events := s.cfg.Socket.Events()
	stopCh := s.stopCh

	for {
		select {
		case ev, ok := <-events:
			if !ok {
				s.setState(Stopping)
				return s.finalize(ctx)
			}
			done, err := s.handleSocketEvent(ctx, ev, connectTimer)
			if done {
				return err
			}

		case frame, ok := <-frames:
			if !ok {
				// capture ended underneath us; tear down
				s.setState(Stopping)
				return s.finalize(ctx)
			}
			s.handleFrame(frame)

		case <-stopCh:
			switch s.State() {
			case Streaming:
				s.setState(Stopping)
				return s.finalize(ctx)
			case Connecting:
				// connection still in flight: mark Stopping and keep
				// looping so the open (or its failure) resolves before we
				// tear down. No frames are forwarded in Stopping.
				s.setState(Stopping)
			}
			// the channel stays closed; nil the local so the select
			// doesn't spin on it
			stopCh = nil

		case <-connectTimer.C:
			if st := s.State(); st == Connecting || st == Stopping {
				s.finalize(ctx)
				return ErrConnect
			}

		case <-ctx.Done():
			s.setState(Stopping)
			ferr := s.finalize(ctx)
			if ferr != nil {
				return ferr
			}
			return ctx.Err()
		}
	}
}

func (s *Session) handleSocketEvent(ctx context.Context, ev SocketEvent, connectTimer *time.Timer) (bool, error) {
	switch ev.Kind {
	case SocketOpened:
		switch s.State() {
		case Connecting:
			connectTimer.Stop()
			s.setState(Streaming)
		case Stopping:
			// stop raced the open: the open resolved, now tear down
			// cleanly without sending a single frame.
			return true, s.finalize(ctx)
		}
		return false, nil

	case SocketMessage:
		s.handleMessage(ev.Payload)
		return false, nil

	case SocketError:
		if st := s.State(); st == Connecting {
			s.setState(Stopping)
			s.finalize(ctx)
			if ev.Err != nil {
				return true, fmt.Errorf("connect: %w", ev.Err)
			}
			return true, ErrConnect
		}
		log.Printf("relay: socket error: %v", ev.Err)
		s.setState(Stopping)
		return true, s.finalize(ctx)

	case SocketClosed:
		s.setState(Stopping)
		return true, s.finalize(ctx)
	}
	return false, nil
}

func (s *Session) handleFrame(frame recording.AudioFrame) {
	if s.State() != Streaming {
		// not connected (or already stopping): drop, never queue
		return
	}
	if err := s.cfg.Socket.Send(frame.Data); err != nil {
		log.Printf("relay: send frame: %v", err)
		return
	}
	s.framesSent.Add(1)
}

// resultMessage is the provider's structured result payload. The original
// wire format nests the transcript under channel.alternatives[0]; some
// provider responses wrap the channel in a body envelope.
type resultMessage struct {
	Type        string         `json:"type"`
	IsFinal     bool           `json:"is_final"`
	SpeechFinal bool           `json:"speech_final"`
	Channel     *resultChannel `json:"channel"`
	Body        *struct {
		Channel *resultChannel `json:"channel"`
	} `json:"body"`
}

type resultChannel struct {
	Alternatives []resultAlternative `json:"alternatives"`
}

type resultAlternative struct {
	Transcript string  `json:"transcript"`
	Confidence float64 `json:"confidence"`
}

// handleMessage parses one inbound payload. Malformed payloads are protocol
// noise and are discarded without aborting the session.
func (s *Session) handleMessage(payload []byte) {
	var msg resultMessage
	if err := json.Unmarshal(payload, &msg); err != nil {
		return
	}

	ch := msg.Channel
	if ch == nil && msg.Body != nil {
		ch = msg.Body.Channel
	}
	if ch == nil || len(ch.Alternatives) == 0 {
		return
	}
	transcript := ch.Alternatives[0].Transcript
	if transcript == "" {
		return
	}

	if msg.IsFinal || msg.SpeechFinal {
		s.rec.OnFinal(transcript)
	} else {
		s.rec.OnPartial(transcript)
	}

	if s.cfg.OnTranscript != nil {
		final, partial := s.rec.Snapshot()
		s.cfg.OnTranscript(final, partial)
	}
}

func (s *Session) finalize(ctx context.Context) error {
	if s.discard.Load() {
		s.rec.Reset()
	}
	return s.fin.Finalize(ctx)
}

// Finalize exposes the finalizer for callers that must guarantee teardown
// after Run has returned. Idempotent.
func (s *Session) Finalize(ctx context.Context) error {
	defer s.setState(Closed)
	return s.fin.Finalize(ctx)
}
