package recording

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"io"
	"log"
	"os/exec"
	"sync"
	"sync/atomic"
	"time"
)

// AudioFrame is one transient binary chunk of captured audio, roughly
// FrameInterval long. Frames are consumed immediately by the streaming
// session and never buffered beyond the channel capacity.
type AudioFrame struct {
	Data      []byte
	Timestamp time.Time
}

type Config struct {
	SampleRate    int
	Channels      int
	BufferSize    int
	Device        string
	FrameInterval time.Duration
	// ChannelBufferSize bounds in-flight frames; excess frames are dropped,
	// not queued, so a slow consumer causes in-order loss instead of growth.
	ChannelBufferSize int
	// Encodings overrides the default preference order when non-empty.
	Encodings []Encoding
}

func DefaultConfig() Config {
	return Config{
		SampleRate:        16000,
		Channels:          1,
		BufferSize:        8192,
		Device:            "",
		FrameInterval:     250 * time.Millisecond,
		ChannelBufferSize: 1,
	}
}

func (c Config) preference() []Encoding {
	if len(c.Encodings) > 0 {
		return c.Encodings
	}
	return DefaultPreference()
}

// Recorder holds exclusive access to the capture device between Start and
// Stop. Stop is idempotent; the device is released on every exit path.
type Recorder struct {
	config    Config
	recording atomic.Bool
	encoding  Encoding

	mu     sync.Mutex // guards cmd and cancel
	cmd    *exec.Cmd
	cancel context.CancelFunc

	wg sync.WaitGroup

	backends []backend
}

func NewRecorder(config Config) *Recorder {
	return &Recorder{config: config, backends: defaultBackends()}
}

func NewDefaultRecorder() *Recorder { return NewRecorder(DefaultConfig()) }

func (r *Recorder) IsRecording() bool {
	return r.recording.Load()
}

// Encoding returns the negotiated encoding. Valid only after a successful
// Start.
func (r *Recorder) Encoding() Encoding {
	return r.encoding
}

func (r *Recorder) Start(ctx context.Context) (<-chan AudioFrame, <-chan error, error) {
	if r.recording.Load() {
		return nil, nil, fmt.Errorf("already recording")
	}

	if err := r.validateConfig(); err != nil {
		return nil, nil, err
	}

	// pick backend+encoding before acquiring anything
	be, enc, err := negotiate(r.config.preference(), r.backends)
	if err != nil {
		return nil, nil, err
	}
	r.encoding = enc

	captureCtx, cancel := context.WithCancel(ctx)

	frameCh := make(chan AudioFrame, r.config.ChannelBufferSize)
	errCh := make(chan error, 1)

	r.mu.Lock()
	r.cancel = cancel
	r.mu.Unlock()

	r.recording.Store(true)
	r.wg.Add(1)
	go r.captureLoop(captureCtx, be, frameCh, errCh)

	log.Printf("recording: started, backend=%s encoding=%s", be.name(), enc)
	return frameCh, errCh, nil
}

// Stop requests teardown. Calling it when already stopped is a no-op.
func (r *Recorder) Stop() error {
	if !r.recording.Load() {
		return nil
	}

	r.mu.Lock()
	cancel := r.cancel
	r.cancel = nil
	r.mu.Unlock()

	if cancel != nil {
		cancel()
	}

	return nil
}

func (r *Recorder) Wait() {
	r.wg.Wait()
}

func (r *Recorder) captureLoop(ctx context.Context, be backend, frameCh chan<- AudioFrame, errCh chan<- error) {
	defer func() {
		close(frameCh)
		close(errCh)
		r.recording.Store(false)

		// Ensure any child process is reaped.
		r.mu.Lock()
		if r.cmd != nil {
			_ = r.cmd.Wait()
			r.cmd = nil
		}
		r.cancel = nil
		r.mu.Unlock()

		r.wg.Done()
	}()

	bin, args := be.commandArgs(r.config, r.encoding)
	cmd := exec.CommandContext(ctx, bin, args...)

	stdout, err := cmd.StdoutPipe()
	if err != nil {
		r.emitErr(errCh, fmt.Errorf("create stdout pipe: %w", err))
		r.requestCancel()
		return
	}

	stderr, err := cmd.StderrPipe()
	if err != nil {
		r.emitErr(errCh, fmt.Errorf("create stderr pipe: %w", err))
		r.requestCancel()
		return
	}

	r.mu.Lock()
	r.cmd = cmd
	r.mu.Unlock()

	if err := cmd.Start(); err != nil {
		r.emitErr(errCh, fmt.Errorf("start %s: %w", bin, err))
		r.requestCancel()
		return
	}

	go func() {
		scanner := bufio.NewScanner(stderr)
		for scanner.Scan() {
			log.Printf("recording stderr: %s", scanner.Text())
		}
	}()

	buffer := make([]byte, r.config.BufferSize)
	var droppedCount int
	lastDropLog := time.Now()

	for {
		n, readErr := stdout.Read(buffer)
		if n > 0 {
			frameData := make([]byte, n)
			copy(frameData, buffer[:n])

			frame := AudioFrame{Data: frameData, Timestamp: time.Now()}

			select {
			case frameCh <- frame:
			case <-ctx.Done():
				return
			default:
				droppedCount++
				if time.Since(lastDropLog) > time.Second {
					log.Printf("recording: dropped %d frames due to backpressure", droppedCount)
					lastDropLog = time.Now()
					droppedCount = 0
				}
			}
		}

		if readErr != nil {
			if errors.Is(readErr, io.EOF) {
				return
			}
			r.emitErr(errCh, fmt.Errorf("read audio: %w", readErr))
			r.requestCancel()
			return
		}

		select {
		case <-ctx.Done():
			return
		default:
		}
	}
}

func (r *Recorder) requestCancel() {
	r.mu.Lock()
	cancel := r.cancel
	r.mu.Unlock()
	if cancel != nil {
		cancel()
	}
}

func (r *Recorder) emitErr(errCh chan<- error, err error) {
	select {
	case errCh <- err:
	default:
		// Best-effort; avoid blocking
	}
	log.Printf("recording error: %v", err)
}

func (r *Recorder) validateConfig() error {
	if r.config.SampleRate <= 0 {
		return fmt.Errorf("invalid SampleRate: %d", r.config.SampleRate)
	}
	if r.config.Channels <= 0 {
		return fmt.Errorf("invalid Channels: %d", r.config.Channels)
	}
	if r.config.BufferSize <= 0 {
		return fmt.Errorf("invalid BufferSize: %d", r.config.BufferSize)
	}
	if r.config.ChannelBufferSize <= 0 {
		return fmt.Errorf("invalid ChannelBufferSize: %d", r.config.ChannelBufferSize)
	}
	if r.config.FrameInterval <= 0 {
		return fmt.Errorf("invalid FrameInterval: %v", r.config.FrameInterval)
	}
	return nil
}
