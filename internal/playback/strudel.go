package playback

import (
	"context"
	"fmt"
	"io"
	"log"
	"os/exec"
	"strings"
	"sync"
)

// evalTerminator separates successive pattern sources on the REPL's stdin.
// Strudel's headless REPL evaluates a buffered chunk when it sees a null
// byte on its own line.
const evalTerminator = "\x00\n"

// StrudelEngine drives a headless Strudel REPL as a child process, writing
// pattern source to its stdin. One process per service lifetime; the
// controller owns lazy creation.
type StrudelEngine struct {
	command string
	args    []string

	mu    sync.Mutex
	cmd   *exec.Cmd
	stdin io.WriteCloser
}

// NewStrudelEngine builds an engine around the configured REPL command line,
// e.g. "strudel repl --headless". The process is not started until
// Initialize.
func NewStrudelEngine(commandLine string) *StrudelEngine {
	parts := strings.Fields(commandLine)
	eng := &StrudelEngine{}
	if len(parts) > 0 {
		eng.command = parts[0]
		eng.args = parts[1:]
	}
	return eng
}

// Initialize spawns the REPL process and keeps its stdin pipe open. A failed
// start leaves the engine unstarted so a later call can retry.
func (e *StrudelEngine) Initialize(_ context.Context) error {
	e.mu.Lock()
	defer e.mu.Unlock()

	if e.cmd != nil {
		return nil
	}
	if e.command == "" {
		return fmt.Errorf("%w: no engine command configured", ErrEngine)
	}

	cmd := exec.Command(e.command, e.args...)
	stdin, err := cmd.StdinPipe()
	if err != nil {
		return fmt.Errorf("%w: stdin pipe: %v", ErrEngine, err)
	}
	if err := cmd.Start(); err != nil {
		_ = stdin.Close()
		return fmt.Errorf("%w: start %s: %v", ErrEngine, e.command, err)
	}

	log.Printf("🔊 Strudel engine started (pid %d, command: %s)", cmd.Process.Pid, e.command)
	e.cmd = cmd
	e.stdin = stdin
	return nil
}

// Evaluate writes the pattern source to the REPL. The REPL replaces or blends
// patterns itself; evaluating without a preceding hush layers the new pattern
// over whatever is sounding.
func (e *StrudelEngine) Evaluate(_ context.Context, code string) error {
	e.mu.Lock()
	defer e.mu.Unlock()

	if e.cmd == nil {
		return fmt.Errorf("%w: engine not initialized", ErrEngine)
	}

	if _, err := e.stdin.Write([]byte(code + evalTerminator)); err != nil {
		// A dead pipe means the process is gone; drop the handle so the
		// next Initialize respawns it.
		log.Printf("❌ Strudel engine write failed: %v", err)
		e.teardownLocked()
		return fmt.Errorf("%w: evaluate: %v", ErrEngine, err)
	}
	return nil
}

// Hush silences the engine. Errors are swallowed: hush is best-effort and
// stopping must never fail the caller.
func (e *StrudelEngine) Hush() {
	e.mu.Lock()
	defer e.mu.Unlock()

	if e.cmd == nil {
		return
	}
	if _, err := e.stdin.Write([]byte("hush()" + evalTerminator)); err != nil {
		log.Printf("⚠️  Strudel engine hush failed: %v", err)
		e.teardownLocked()
	}
}

// Close stops the child process. Used on service shutdown.
func (e *StrudelEngine) Close() {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.teardownLocked()
}

func (e *StrudelEngine) teardownLocked() {
	if e.cmd == nil {
		return
	}
	_ = e.stdin.Close()
	if p := e.cmd.Process; p != nil {
		_ = p.Kill()
	}
	e.cmd = nil
	e.stdin = nil
}
