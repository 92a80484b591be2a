// Package deps probes for the external tools the recorder agent shells
// out to. Used by the doctor command.
package deps

import (
	"os/exec"
	"strings"
)

// Status represents the installation status of a dependency
type Status struct {
	Installed bool
	Path      string
	Version   string
}

// CheckFFmpeg checks if ffmpeg is installed and returns its status
func CheckFFmpeg() Status {
	return check("ffmpeg", "-version")
}

// CheckPwRecord checks if pw-record (PipeWire) is installed
func CheckPwRecord() Status {
	return check("pw-record", "--version")
}

// CheckNotifySend checks if notify-send is installed
func CheckNotifySend() Status {
	return check("notify-send", "--version")
}

func check(bin, versionFlag string) Status {
	path, err := exec.LookPath(bin)
	if err != nil {
		return Status{Installed: false}
	}

	status := Status{
		Installed: true,
		Path:      path,
	}

	output, err := exec.Command(path, versionFlag).Output()
	if err == nil {
		lines := strings.Split(string(output), "\n")
		if len(lines) > 0 {
			status.Version = strings.TrimSpace(lines[0])
		}
	}

	return status
}
