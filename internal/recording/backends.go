package recording

import (
	"fmt"
	"os/exec"
	"strconv"
)

// ffmpegBackend captures from the default audio source and muxes into any
// of the supported containers.
type ffmpegBackend struct{}

func (ffmpegBackend) name() string { return "ffmpeg" }

func (ffmpegBackend) available() bool {
	_, err := exec.LookPath("ffmpeg")
	return err == nil
}

func (ffmpegBackend) supports(enc Encoding) bool {
	switch enc {
	case OpusWebM, WebM, OpusOgg, Ogg, WAV:
		return true
	}
	return false
}

func (ffmpegBackend) commandArgs(cfg Config, enc Encoding) (string, []string) {
	device := cfg.Device
	if device == "" {
		device = "default"
	}
	args := []string{
		"-hide_banner", "-loglevel", "error",
		"-f", "pulse", "-i", device,
		"-ac", strconv.Itoa(cfg.Channels),
		"-ar", strconv.Itoa(cfg.SampleRate),
	}
	switch enc {
	case OpusWebM:
		args = append(args, "-c:a", "libopus", "-f", "webm")
	case WebM:
		args = append(args, "-f", "webm")
	case OpusOgg:
		args = append(args, "-c:a", "libopus", "-f", "ogg")
	case Ogg:
		args = append(args, "-f", "ogg")
	case WAV:
		args = append(args, "-f", "s16le")
	}
	args = append(args, "pipe:1")
	return "ffmpeg", args
}

// pipewireBackend captures raw PCM through pw-record. It only produces
// linear16, so it sits last in the preference order as the fallback.
type pipewireBackend struct{}

func (pipewireBackend) name() string { return "pipewire" }

func (pipewireBackend) available() bool {
	_, err := exec.LookPath("pw-record")
	return err == nil
}

func (pipewireBackend) supports(enc Encoding) bool { return enc == WAV }

func (pipewireBackend) commandArgs(cfg Config, enc Encoding) (string, []string) {
	args := []string{
		"--format", "s16",
		"--rate", strconv.Itoa(cfg.SampleRate),
		"--channels", strconv.Itoa(cfg.Channels),
		"-",
	}
	if cfg.Device != "" {
		args = append(args, "--target", cfg.Device)
	}
	return "pw-record", args
}

func defaultBackends() []backend {
	return []backend{ffmpegBackend{}, pipewireBackend{}}
}

// Probe reports which backend and encoding a recording session would use,
// without touching the device.
func Probe(cfg Config) (string, Encoding, error) {
	b, enc, err := negotiate(cfg.preference(), defaultBackends())
	if err != nil {
		return "", "", fmt.Errorf("probe capture backends: %w", err)
	}
	return b.name(), enc, nil
}
