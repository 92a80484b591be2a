package notify

import (
	"fmt"
	"log"
	"os/exec"
)

type Notifier interface {
	RecordingChanged(on bool)
	TranscriptSaved(text string)
	Error(msg string)
}

type Desktop struct{}

func (Desktop) RecordingChanged(on bool) {
	state := "Stopped"
	if on {
		state = "Started"
	}
	send(fmt.Sprintf("Verbatim: %s Recording", state), false)
}

func (Desktop) TranscriptSaved(text string) {
	preview := text
	if len(preview) > 60 {
		preview = preview[:57] + "..."
	}
	send("Verbatim: transcript saved: "+preview, false)
}

func (Desktop) Error(msg string) {
	send("Verbatim: "+msg, true)
}

func send(msg string, critical bool) {
	args := []string{"-a", "Verbatim"}
	if critical {
		args = append(args, "-u", "critical")
	}
	args = append(args, msg)
	if err := exec.Command("notify-send", args...).Run(); err != nil {
		log.Printf("Failed to send notification: %v", err)
	}
}

// Log writes notifications to the daemon log instead of the desktop.
type Log struct{}

func (Log) RecordingChanged(on bool)    { log.Printf("notify: recording=%v", on) }
func (Log) TranscriptSaved(text string) { log.Printf("notify: transcript saved (%d chars)", len(text)) }
func (Log) Error(msg string)            { log.Printf("notify: error: %s", msg) }

// Nop is a Notifier that does absolutely nothing.
// Useful in unit tests or headless builds.
type Nop struct{}

func (Nop) RecordingChanged(on bool)    {}
func (Nop) TranscriptSaved(text string) {}
func (Nop) Error(msg string)            {}

// ForType maps a configured notifications.type to its Notifier.
func ForType(kind string) Notifier {
	switch kind {
	case "desktop":
		return Desktop{}
	case "log":
		return Log{}
	default:
		return Nop{}
	}
}
