package softap

import (
	"os"
	"os/exec"
	"path/filepath"
	"strings"
	"syscall"
	"time"

	"github.com/pkg/errors"
	"github.com/shirou/gopsutil/v4/process"
	log "github.com/sirupsen/logrus"
)

// legacyPid marks a running AP that has no process of its own.
const legacyPid = 1

// killTimeout is how long a terminated process may take to exit before it
// is killed.
const killTimeout = 5 * time.Second

// Stale processes found on the system are not our children and have no
// exit future, so their exit is polled.
const (
	staleExitTimeout  = 2 * time.Second
	stalePollInterval = 50 * time.Millisecond
)

// A Process is a started AP. Processes launched by a Launcher carry an
// exit future; the legacy sentinel does not and never exits.
type Process struct {
	Pid int

	proc *os.Process
	done chan struct{}
	err  error
}

func sentinelProcess() *Process {
	return &Process{Pid: legacyPid}
}

// Exited reports whether the process has exited.
func (p *Process) Exited() bool {
	if p.done == nil {
		return false
	}
	select {
	case <-p.done:
		return true
	default:
		return false
	}
}

// Err returns the exit status once the process has exited.
func (p *Process) Err() error {
	if !p.Exited() {
		return nil
	}
	return p.err
}

// Terminate sends SIGTERM and waits for the process to exit, killing it if
// it does not exit within killTimeout.
func (p *Process) Terminate() error {
	if p.done == nil || p.Exited() {
		return nil
	}

	if err := p.proc.Signal(syscall.SIGTERM); err != nil && !errors.Is(err, os.ErrProcessDone) {
		return errors.Wrapf(err, "cannot terminate process %d", p.Pid)
	}

	select {
	case <-p.done:
		return nil
	case <-time.After(killTimeout):
	}

	log.WithField("pid", p.Pid).Warn("Process did not exit after SIGTERM, killing it")
	if err := p.proc.Kill(); err != nil && !errors.Is(err, os.ErrProcessDone) {
		return errors.Wrapf(err, "cannot kill process %d", p.Pid)
	}
	<-p.done
	return nil
}

// A Launcher starts a program in the background.
type Launcher interface {
	Launch(path string, args ...string) (*Process, error)
}

// ExecLauncher launches programs with os/exec. Their output is forwarded
// to the log.
type ExecLauncher struct{}

// Launch starts path with args. A failure to execute the program is
// returned rather than left to the child.
func (ExecLauncher) Launch(path string, args ...string) (*Process, error) {
	cmd := exec.Command(path, args...)

	out := log.WithField("program", filepath.Base(path)).WriterLevel(log.InfoLevel)
	cmd.Stdout = out
	cmd.Stderr = out

	if err := cmd.Start(); err != nil {
		_ = out.Close()
		return nil, errors.Wrapf(err, "cannot execute %s", path)
	}

	p := &Process{
		Pid:  cmd.Process.Pid,
		proc: cmd.Process,
		done: make(chan struct{}),
	}
	go func() {
		p.err = cmd.Wait()
		_ = out.Close()
		close(p.done)
	}()

	log.WithFields(log.Fields{"pid": p.Pid, "program": path}).Info("Process started")
	return p, nil
}

// An external process found on the system, e.g. an AP process left behind
// by an earlier instance. Using the interface allows mocking it in tests.
type foundProcess interface {
	getPid() int32
	terminate() error
}

// Wrapper for gopsutil process. It implements the foundProcess interface.
type processWrapper struct {
	process *process.Process
}

func (p *processWrapper) getPid() int32 {
	return p.process.Pid
}

// terminate sends SIGTERM and waits for the process to go, killing it if
// it outlives staleExitTimeout. The caller may reuse its resources once
// terminate returns nil.
func (p *processWrapper) terminate() error {
	pid := p.process.Pid
	if err := p.process.Terminate(); err != nil {
		return errors.Wrapf(err, "cannot terminate process %d", pid)
	}
	if waitGone(pid, staleExitTimeout, process.PidExists) {
		return nil
	}

	log.WithField("pid", pid).Warn("Stale process did not exit after SIGTERM, killing it")
	if err := p.process.Kill(); err != nil {
		return errors.Wrapf(err, "cannot kill process %d", pid)
	}
	if !waitGone(pid, staleExitTimeout, process.PidExists) {
		return errors.Errorf("process %d is still running", pid)
	}
	return nil
}

// waitGone polls exists until pid is gone or timeout passes.
func waitGone(pid int32, timeout time.Duration, exists func(int32) (bool, error)) bool {
	deadline := time.Now().Add(timeout)
	for {
		if ok, err := exists(pid); err == nil && !ok {
			return true
		}
		if time.Now().After(deadline) {
			return false
		}
		time.Sleep(stalePollInterval)
	}
}

// Lists processes running a given program with a given argument.
type processFinder interface {
	find(program, arg string) ([]foundProcess, error)
}

// A default implementation of processFinder based on gopsutil.
type processFinderImpl struct{}

func (processFinderImpl) find(program, arg string) ([]foundProcess, error) {
	processes, err := process.Processes()
	if err != nil {
		return nil, errors.Wrap(err, "failed to list running processes")
	}

	self := int32(os.Getpid())
	var found []foundProcess
	for _, p := range processes {
		if p.Pid == self {
			continue
		}
		name, err := p.Name()
		if err != nil || name != filepath.Base(program) {
			continue
		}
		args, err := p.CmdlineSlice()
		if err != nil || !containsArg(args, arg) {
			continue
		}
		found = append(found, &processWrapper{process: p})
	}
	return found, nil
}

func containsArg(args []string, arg string) bool {
	for _, a := range args {
		if a == arg || strings.HasSuffix(a, "="+arg) {
			return true
		}
	}
	return false
}

// ProcessInfo describes a running AP process.
type ProcessInfo struct {
	Pid       int
	Name      string
	Cmdline   string
	RSS       uint64
	StartedAt time.Time
}

// inspectProcess looks up pid with gopsutil.
func inspectProcess(pid int) (*ProcessInfo, error) {
	p, err := process.NewProcess(int32(pid))
	if err != nil {
		return nil, errors.Wrapf(err, "cannot inspect process %d", pid)
	}

	info := &ProcessInfo{Pid: pid}
	info.Name, _ = p.Name()
	info.Cmdline, _ = p.Cmdline()
	if mem, err := p.MemoryInfo(); err == nil {
		info.RSS = mem.RSS
	}
	if ms, err := p.CreateTime(); err == nil {
		info.StartedAt = time.UnixMilli(ms)
	}
	return info, nil
}
