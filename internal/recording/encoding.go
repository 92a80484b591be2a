package recording

import (
	"errors"
	"strconv"
)

// ErrUnsupportedFormat is returned when no encoding in the preference list
// is supported by an available capture backend. No device is acquired in
// that case.
var ErrUnsupportedFormat = errors.New("recording: no supported audio encoding")

// Encoding identifies an audio container/codec combination by MIME type,
// matching what the streaming provider accepts on its socket.
type Encoding string

const (
	OpusWebM Encoding = "audio/webm;codecs=opus"
	WebM     Encoding = "audio/webm"
	OpusOgg  Encoding = "audio/ogg;codecs=opus"
	Ogg      Encoding = "audio/ogg"
	WAV      Encoding = "audio/wav"
)

// Valid reports whether e names a known encoding.
func (e Encoding) Valid() bool {
	switch e {
	case OpusWebM, WebM, OpusOgg, Ogg, WAV:
		return true
	}
	return false
}

// DefaultPreference is the ordered encoding preference list; the first
// encoding a backend supports wins.
func DefaultPreference() []Encoding {
	return []Encoding{OpusWebM, WebM, OpusOgg, Ogg, WAV}
}

// WireParams returns the query parameters the streaming socket needs for
// this encoding. Container formats are self-describing, so only raw PCM
// needs explicit encoding metadata.
func (e Encoding) WireParams(sampleRate, channels int) map[string]string {
	if e != WAV {
		return nil
	}
	return map[string]string{
		"encoding":    "linear16",
		"sample_rate": strconv.Itoa(sampleRate),
		"channels":    strconv.Itoa(channels),
	}
}

// backend is a capture tool that can produce one or more encodings.
type backend interface {
	name() string
	available() bool
	supports(enc Encoding) bool
	commandArgs(cfg Config, enc Encoding) (bin string, args []string)
}

// negotiate picks the first preferred encoding any available backend
// supports. It touches no device; selection is purely capability-based.
func negotiate(prefs []Encoding, backends []backend) (backend, Encoding, error) {
	var live []backend
	for _, b := range backends {
		if b.available() {
			live = append(live, b)
		}
	}
	for _, enc := range prefs {
		for _, b := range live {
			if b.supports(enc) {
				return b, enc, nil
			}
		}
	}
	return nil, "", ErrUnsupportedFormat
}
