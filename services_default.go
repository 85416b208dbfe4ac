package abd

import (
	"io"
	"os/exec"
	"runtime"
)

// RegisterDefaultServices installs the reference service bodies named in
// SPEC_FULL.md §4.6 onto d: sink/source (credit-flow test services),
// shell:/exec: (os/exec-backed, no real pty — concrete service bodies are
// explicitly out of scope beyond this reference set), and grammar-only stubs
// for reverse:/jdwp:/sync:/dev:/dev-raw:/reconnect/spin so the dispatcher's
// parsing and error semantics are exercised even though this daemon doesn't
// implement them.
func RegisterDefaultServices(d *ServiceDispatcher) {
	registerSinkSource(d)

	d.RegisterFD("shell", runShell)
	d.RegisterFD("exec", runExec)

	notImplemented := func(name string) FDService {
		return func(req ServiceRequest, t *Transport) (io.ReadWriteCloser, error) {
			return nil, newServiceError("%s: not implemented in this daemon", name)
		}
	}
	for _, name := range []string{"reverse", "jdwp", "sync", "dev", "dev-raw", "reconnect", "spin"} {
		d.RegisterFD(name, notImplemented(name))
	}
}

// pipePair implements io.ReadWriteCloser over a command's combined
// stdout/stderr and its stdin, so a single fd-backed LocalSocket can carry
// both directions. Reads from the command, writes to its stdin.
type pipePair struct {
	cmd    *exec.Cmd
	stdin  io.WriteCloser
	stdout io.ReadCloser
}

func (p *pipePair) Read(b []byte) (int, error)  { return p.stdout.Read(b) }
func (p *pipePair) Write(b []byte) (int, error) { return p.stdin.Write(b) }
func (p *pipePair) Close() error {
	p.stdin.Close()
	p.stdout.Close()
	return p.cmd.Process.Kill()
}

func shellCommand() (string, []string) {
	if runtime.GOOS == "windows" {
		return "cmd.exe", nil
	}
	return "/bin/sh", []string{"-i"}
}

// runShell spawns an interactive shell. A real pty driver is intentionally
// not wired (see RegisterDefaultServices) — stdin/stdout pipes stand in for it, which
// is enough to exercise the OPEN/WRTE/OKAY/CLSE flow.
func runShell(req ServiceRequest, t *Transport) (io.ReadWriteCloser, error) {
	name, args := shellCommand()
	cmd := exec.Command(name, args...)

	stdin, err := cmd.StdinPipe()
	if err != nil {
		return nil, err
	}
	stdout, err := cmd.StdoutPipe()
	if err != nil {
		return nil, err
	}
	cmd.Stderr = cmd.Stdout
	if err := cmd.Start(); err != nil {
		return nil, err
	}
	return &pipePair{cmd: cmd, stdin: stdin, stdout: stdout}, nil
}

// runExec runs req.Rest to completion via the platform shell, merging
// stdout/stderr, and closes once the process exits.
func runExec(req ServiceRequest, t *Transport) (io.ReadWriteCloser, error) {
	if req.Rest == "" {
		return nil, newServiceError("exec: missing command")
	}
	var cmd *exec.Cmd
	if runtime.GOOS == "windows" {
		cmd = exec.Command("cmd.exe", "/C", req.Rest)
	} else {
		cmd = exec.Command("/bin/sh", "-c", req.Rest)
	}

	stdin, err := cmd.StdinPipe()
	if err != nil {
		return nil, err
	}
	stdout, err := cmd.StdoutPipe()
	if err != nil {
		return nil, err
	}
	cmd.Stderr = cmd.Stdout
	if err := cmd.Start(); err != nil {
		return nil, err
	}
	return &pipePair{cmd: cmd, stdin: stdin, stdout: stdout}, nil
}
