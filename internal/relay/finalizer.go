package relay

import (
	"context"
	"fmt"
	"log"
	"strings"
	"sync"
	"time"
)

// saveTimeout bounds the persistence attempt during teardown. The save runs
// on a context detached from the session's, which is usually already
// cancelled by the time finalize runs (recording timeout, agent shutdown).
const saveTimeout = 10 * time.Second

// Finalizer tears a session down exactly once: capture stopped, socket
// closed, accumulated text persisted at most once. Finalize is safe to call
// repeatedly and concurrently; late callers block until the first call
// completes and observe the same result.
type Finalizer struct {
	stopCapture func() error
	closeSocket func() error
	rec         *Reconciler
	saver       Saver

	once sync.Once
	done chan struct{}
	err  error
}

func NewFinalizer(stopCapture, closeSocket func() error, rec *Reconciler, saver Saver) *Finalizer {
	return &Finalizer{
		stopCapture: stopCapture,
		closeSocket: closeSocket,
		rec:         rec,
		saver:       saver,
		done:        make(chan struct{}),
	}
}

// Finalize runs the teardown. Capture and socket are released even when
// persistence fails; a persistence failure is returned but never retried,
// so the in-memory transcript is lost if the save ultimately fails.
func (f *Finalizer) Finalize(ctx context.Context) error {
	f.once.Do(func() {
		defer close(f.done)

		if f.stopCapture != nil {
			if err := f.stopCapture(); err != nil {
				log.Printf("finalizer: stop capture: %v", err)
			}
		}
		if f.closeSocket != nil {
			if err := f.closeSocket(); err != nil {
				log.Printf("finalizer: close socket: %v", err)
			}
		}

		text := f.rec.Final()
		if strings.TrimSpace(text) == "" || f.saver == nil {
			return
		}
		// cancellation of ctx is what brought us here; the accumulated
		// transcript still deserves a real save attempt
		saveCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), saveTimeout)
		defer cancel()
		if err := f.saver.SaveTranscript(saveCtx, text); err != nil {
			f.err = fmt.Errorf("save transcript: %w", err)
		}
	})

	<-f.done
	return f.err
}

// Finalized reports whether teardown has completed.
func (f *Finalizer) Finalized() bool {
	select {
	case <-f.done:
		return true
	default:
		return false
	}
}
