package voice

import (
	"os"
	"os/exec"
	"runtime"
)

// DispatchMethod names a terminal-injection mechanism (spec §4.5).
type DispatchMethod string

const (
	DispatchTmux        DispatchMethod = "tmux"
	DispatchAppleScript DispatchMethod = "applescript"
	DispatchXdotool     DispatchMethod = "xdotool"
)

// Dispatcher injects matched text followed by a newline into the agent's
// foreground terminal, by shelling out to whichever mechanism the
// environment supports first. No library in the pack performs terminal
// automation; os/exec is the only available mechanism for this concern.
type Dispatcher struct {
	method  DispatchMethod
	forced  bool
	lookup  func(string) (string, error)
	execRun func(name string, args ...string) error
}

// NewDispatcher auto-detects the dispatch mechanism unless forced is
// non-empty, in which case it is used unconditionally.
func NewDispatcher(forced string) *Dispatcher {
	d := &Dispatcher{
		lookup:  exec.LookPath,
		execRun: runCommand,
	}
	if forced != "" {
		d.method = DispatchMethod(forced)
		d.forced = true
		return d
	}
	d.method = d.detect()
	return d
}

func runCommand(name string, args ...string) error {
	cmd := exec.Command(name, args...)
	return cmd.Run()
}

// detect picks the first available mechanism: tmux (if inside a tmux
// session), applescript (on macOS), xdotool (if present on the PATH).
func (d *Dispatcher) detect() DispatchMethod {
	if os.Getenv("TMUX") != "" {
		return DispatchTmux
	}
	if runtime.GOOS == "darwin" {
		return DispatchAppleScript
	}
	if _, err := d.lookup("xdotool"); err == nil {
		return DispatchXdotool
	}
	return ""
}

// Method reports the currently selected dispatch mechanism ("" if none is
// available).
func (d *Dispatcher) Method() DispatchMethod {
	return d.method
}

// Dispatch injects text followed by a newline via the selected mechanism.
// Returns true iff the subprocess exited zero.
func (d *Dispatcher) Dispatch(text string) bool {
	switch d.method {
	case DispatchTmux:
		return d.execRun("tmux", "send-keys", text, "Enter") == nil
	case DispatchAppleScript:
		script := `tell application "System Events" to keystroke "` + text + `"` + "\n" +
			`delay 0.1` + "\n" +
			`tell application "System Events" to keystroke return`
		return d.execRun("osascript", "-e", script) == nil
	case DispatchXdotool:
		if d.execRun("xdotool", "type", "--delay", "0", text) != nil {
			return false
		}
		return d.execRun("xdotool", "key", "Return") == nil
	default:
		return false
	}
}
