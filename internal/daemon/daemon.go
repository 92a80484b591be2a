// Package daemon is the recorder agent process: it owns the control
// socket, the live config, and at most one recording pipeline at a time.
package daemon

import (
	"bufio"
	"context"
	"fmt"
	"log"
	"net"
	"os"
	"os/signal"
	"sync"
	"syscall"

	"github.com/verbatimhq/verbatim/internal/apiclient"
	"github.com/verbatimhq/verbatim/internal/bus"
	"github.com/verbatimhq/verbatim/internal/config"
	"github.com/verbatimhq/verbatim/internal/notify"
	"github.com/verbatimhq/verbatim/internal/pipeline"
	"github.com/verbatimhq/verbatim/internal/provider"
	"github.com/verbatimhq/verbatim/internal/relay"
)

type Daemon struct {
	mu      sync.Mutex
	manager *config.Manager

	ctx    context.Context
	cancel context.CancelFunc

	pipeline pipeline.Pipeline

	// newPipeline builds the next recording pipeline; tests swap it out.
	newPipeline func() (pipeline.Pipeline, error)
}

func New(manager *config.Manager) *Daemon {
	ctx, cancel := context.WithCancel(context.Background())
	d := &Daemon{
		manager: manager,
		ctx:     ctx,
		cancel:  cancel,
	}
	d.newPipeline = d.buildPipeline
	return d
}

func (d *Daemon) status() relay.State {
	d.mu.Lock()
	defer d.mu.Unlock()
	if d.pipeline == nil {
		return relay.Idle
	}
	return d.pipeline.Status()
}

func (d *Daemon) Run() error {
	if err := bus.CheckExistingDaemon(); err != nil {
		return err
	}

	ln, err := bus.Listen()
	if err != nil {
		return err
	}
	defer ln.Close()

	if err := bus.CreatePidFile(); err != nil {
		return fmt.Errorf("failed to create PID file: %w", err)
	}
	defer bus.RemovePidFile()

	if err := d.manager.StartWatching(d.ctx); err != nil {
		log.Printf("daemon: config watch unavailable: %v", err)
	}
	defer d.manager.Stop()

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGTERM, syscall.SIGINT)
	defer signal.Stop(sigCh)

	go func() {
		sig := <-sigCh
		log.Printf("Received signal %v, shutting down gracefully", sig)
		d.cancel()
	}()

	go func() {
		<-d.ctx.Done()
		ln.Close()
	}()

	log.Printf("Agent started, listening on control socket")

	for {
		c, err := ln.Accept()
		if err != nil {
			if d.ctx.Err() != nil {
				log.Printf("Shutdown requested")
				return nil
			}
			log.Printf("Accept error: %v", err)
			return fmt.Errorf("accept failed: %w", err)
		}
		go d.handle(c)
	}
}

func (d *Daemon) handle(c net.Conn) {
	defer c.Close()

	line, err := bufio.NewReader(c).ReadString('\n')
	if err != nil {
		log.Printf("Client read error: %v", err)
		fmt.Fprintf(c, "ERR read_error: %v\n", err)
		return
	}
	if len(line) == 0 {
		fmt.Fprint(c, "ERR empty\n")
		return
	}
	cmd := line[0]

	switch cmd {
	case bus.CmdToggle:
		if err := d.toggle(); err != nil {
			fmt.Fprintf(c, "ERR toggle: %v\n", err)
			return
		}
		fmt.Fprint(c, "OK toggled\n")
	case bus.CmdStatus:
		fmt.Fprintf(c, "STATUS status=%s\n", d.status())
	case bus.CmdCancel:
		d.cancelRecording()
		fmt.Fprint(c, "OK cancelled\n")
	case bus.CmdVersion:
		fmt.Fprintf(c, "STATUS proto=%s\n", bus.ProtoVer)
	case bus.CmdQuit:
		fmt.Fprint(c, "OK quitting\n")
		d.cancel()
	default:
		log.Printf("Unknown command: %c", cmd)
		fmt.Fprintf(c, "ERR unknown=%q\n", cmd)
	}
}

// toggle starts a recording when idle and stops the running one otherwise.
// The stopped pipeline keeps its slot until teardown completes, so a new
// pipeline is never constructed while the previous session is finalizing.
func (d *Daemon) toggle() error {
	d.mu.Lock()
	defer d.mu.Unlock()

	if d.pipeline != nil {
		select {
		case <-d.pipeline.Done():
			d.pipeline = nil
		default:
		}
	}

	if d.pipeline == nil {
		p, err := d.newPipeline()
		if err != nil {
			return err
		}
		p.Run(d.ctx)
		d.pipeline = p
		return nil
	}

	switch d.pipeline.Status() {
	case relay.Stopping, relay.Closed:
		// stop already requested; reap frees the slot once the capture
		// device and socket are released
		return fmt.Errorf("previous recording still finalizing")
	}

	d.pipeline.Stop()
	go d.reap(d.pipeline)
	return nil
}

func (d *Daemon) cancelRecording() {
	d.mu.Lock()
	defer d.mu.Unlock()

	if d.pipeline == nil {
		return
	}
	d.pipeline.Cancel()
	go d.reap(d.pipeline)
}

// reap waits for a stopped pipeline to finish teardown, then frees the slot
// so its capture device and socket are released before anything else starts.
func (d *Daemon) reap(p pipeline.Pipeline) {
	<-p.Done()
	d.mu.Lock()
	if d.pipeline == p {
		d.pipeline = nil
	}
	d.mu.Unlock()
}

func (d *Daemon) buildPipeline() (pipeline.Pipeline, error) {
	cfg := d.manager.GetConfig()

	if cfg.API.BaseURL == "" {
		return nil, fmt.Errorf("api.base_url not configured")
	}
	if cfg.API.Token == "" {
		return nil, fmt.Errorf("api.token not configured: run verbatim login")
	}

	p, ok := provider.Get(cfg.Streaming.Provider)
	if !ok || p.Streaming == nil {
		return nil, fmt.Errorf("streaming provider %q unavailable", cfg.Streaming.Provider)
	}

	client := apiclient.New(cfg.API.BaseURL, cfg.API.Token)

	model := cfg.Streaming.Model
	if model == "" {
		model = p.DefaultModel
	}

	return pipeline.New(pipeline.Config{
		Recording: cfg.ToRecordingConfig(),
		Socket: relay.SocketConfig{
			URL:            p.Streaming.BaseURL + p.Streaming.Path,
			Model:          model,
			Language:       cfg.Streaming.Language,
			ConnectTimeout: cfg.Streaming.ConnectTimeout,
		},
		Credentials: client,
		Saver:       client,
		Notifier:    notify.ForType(notifierType(cfg)),
		Timeout:     cfg.Recording.Timeout,
	}), nil
}

func notifierType(cfg *config.Config) string {
	if !cfg.Notifications.Enabled {
		return "none"
	}
	return cfg.Notifications.Type
}
