package softap

import (
	"path/filepath"
	"testing"
	"time"

	"github.com/pkg/errors"
	"github.com/prometheus/client_golang/prometheus"
	promtestutil "github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/require"

	"github.com/tomiamao/softap/internal/apconfig"
	"github.com/tomiamao/softap/internal/fwpath"
)

type fakeHandle struct {
	closed bool
}

func (h *fakeHandle) Close() error {
	h.closed = true
	return nil
}

// fakeBackend records the calls made by the supervisor.
type fakeBackend struct {
	calls []string

	startDriverErr error
	stopDriverErr  error
	startAPErr     error
	configureErr   error
	reloadErr      error

	// next is returned by StartAP; a fresh running process when nil.
	next       *Process
	configured *apconfig.Params
	apIfaces   []string
	reloaded   []string
}

func (b *fakeBackend) StartDriver(iface string) error {
	b.calls = append(b.calls, "start "+iface)
	return b.startDriverErr
}

func (b *fakeBackend) StopDriver(iface string) error {
	b.calls = append(b.calls, "stop "+iface)
	return b.stopDriverErr
}

func (b *fakeBackend) StartAP(apIface string) (*Process, error) {
	b.calls = append(b.calls, "startap")
	b.apIfaces = append(b.apIfaces, apIface)
	if b.startAPErr != nil {
		return nil, b.startAPErr
	}
	if b.next != nil {
		p := b.next
		b.next = nil
		return p, nil
	}
	return runningProcess(100 + len(b.calls)), nil
}

func (b *fakeBackend) StopAP(_ string, p *Process) error {
	b.calls = append(b.calls, "stopap")
	return nil
}

func (b *fakeBackend) Configure(p *apconfig.Params) error {
	b.calls = append(b.calls, "set")
	b.configured = p
	return b.configureErr
}

func (b *fakeBackend) ReloadFirmware(iface string, mode fwpath.Mode, path string) error {
	b.calls = append(b.calls, "fwreload")
	b.reloaded = append(b.reloaded, iface, string(mode), path)
	return b.reloadErr
}

// runningProcess returns a process whose exit future has not resolved.
func runningProcess(pid int) *Process {
	return &Process{Pid: pid, done: make(chan struct{})}
}

// exitedProcess returns a process that has already exited.
func exitedProcess(pid int) *Process {
	p := &Process{Pid: pid, done: make(chan struct{}), err: errors.New("exit status 1")}
	close(p.done)
	return p
}

type sleeps []time.Duration

func (s *sleeps) sleep(d time.Duration) { *s = append(*s, d) }

func firmware() *fwpath.Service {
	return &fwpath.Service{Paths: map[fwpath.Mode]string{
		fwpath.ModeAP:  "/fw/ap.bin",
		fwpath.ModeSTA: "/fw/sta.bin",
	}}
}

func newTestSupervisor(t *testing.T, b Backend, opts ...Option) (*Supervisor, *fakeHandle, *sleeps) {
	t.Helper()
	h := &fakeHandle{}
	var sl sleeps
	opts = append([]Option{WithSleeper(sl.sleep)}, opts...)
	return NewSupervisor(h, b, firmware(), opts...), h, &sl
}

func TestStartAPIsIdempotent(t *testing.T) {
	b := &fakeBackend{}
	s, _, sl := newTestSupervisor(t, b)

	require.NoError(t, s.StartAP())
	require.True(t, s.IsRunning())
	require.NoError(t, s.StartAP())

	require.Equal(t, []string{"startap"}, b.calls)
	require.Equal(t, []time.Duration{DefaultDelays.BSSStart}, []time.Duration(*sl))
}

func TestStopAPWhenNotRunning(t *testing.T) {
	b := &fakeBackend{}
	s, _, sl := newTestSupervisor(t, b)

	require.NoError(t, s.StopAP())
	require.Empty(t, b.calls)
	require.Empty(t, *sl)
}

func TestStartStopAP(t *testing.T) {
	b := &fakeBackend{}
	s, _, sl := newTestSupervisor(t, b)

	require.NoError(t, s.StartAP())
	require.NoError(t, s.StopAP())
	require.False(t, s.IsRunning())
	require.NoError(t, s.StopAP())

	require.Equal(t, []string{"startap", "stopap"}, b.calls)
	require.Equal(t, []time.Duration{DefaultDelays.BSSStart, DefaultDelays.BSSStop}, []time.Duration(*sl))
}

func TestStartAPFailureLeavesStateUnchanged(t *testing.T) {
	b := &fakeBackend{startAPErr: errors.New("exec failed")}
	s, _, sl := newTestSupervisor(t, b)

	err := s.StartAP()
	require.Equal(t, ServiceStartFailed, Code(err))
	require.False(t, s.IsRunning())
	require.Empty(t, *sl)
}

func TestStartAPProcessExitsDuringStartup(t *testing.T) {
	b := &fakeBackend{next: exitedProcess(7)}
	s, _, _ := newTestSupervisor(t, b)

	err := s.StartAP()
	require.Equal(t, ServiceStartFailed, Code(err))
	require.False(t, s.IsRunning())
}

func TestStartAPRelaunchesExitedProcess(t *testing.T) {
	p := runningProcess(7)
	b := &fakeBackend{next: p}
	s, _, _ := newTestSupervisor(t, b)

	require.NoError(t, s.StartAP())
	close(p.done)

	require.False(t, s.Status().Running)
	require.NoError(t, s.StartAP())
	require.Equal(t, []string{"startap", "startap"}, b.calls)
	require.True(t, s.IsRunning())
}

func TestOperationsWithoutHandle(t *testing.T) {
	b := &fakeBackend{}
	s := NewSupervisor(nil, b, firmware(), WithSleeper(func(time.Duration) {}))

	require.Equal(t, OperationFailed, Code(s.StartDriver("wlan0")))
	require.Equal(t, OperationFailed, Code(s.StopDriver("wlan0")))
	require.Equal(t, OperationFailed, Code(s.StartAP()))
	require.Equal(t, OperationFailed, Code(s.Configure([]string{"wlan0", "wlan0", "Net"})))
	require.Equal(t, OperationFailed, Code(s.ReloadFirmware([]string{"wlan0", "AP"})))
	require.Empty(t, b.calls)
	require.NoError(t, s.Close())
}

func TestStartDriver(t *testing.T) {
	b := &fakeBackend{}
	s, _, sl := newTestSupervisor(t, b, WithInterface("wlan1"))

	require.NoError(t, s.StartDriver(""))
	require.NoError(t, s.StartDriver("wlan2"))
	require.Equal(t, []string{"start wlan1", "start wlan2"}, b.calls)
	require.Equal(t, []time.Duration{DefaultDelays.DriverStart, DefaultDelays.DriverStart}, []time.Duration(*sl))

	b.startDriverErr = errors.New("ioctl failed")
	require.Equal(t, ServiceStartFailed, Code(s.StartDriver("")))
}

func TestStopDriverIgnoresBackendErrors(t *testing.T) {
	b := &fakeBackend{stopDriverErr: errors.New("ioctl failed")}
	s, _, _ := newTestSupervisor(t, b)

	require.NoError(t, s.StopDriver(""))
	require.Equal(t, []string{"stop " + DefaultInterface}, b.calls)
}

func TestConfigure(t *testing.T) {
	b := &fakeBackend{}
	s, _, sl := newTestSupervisor(t, b)

	require.NoError(t, s.Configure([]string{"wlan0", "wlan1", "Net", "broadcast", "6", "wpa2-psk", "abcdefgh"}))
	require.Equal(t, "Net", b.configured.SSID)
	require.Equal(t, []time.Duration{DefaultDelays.SetConfig}, []time.Duration(*sl))

	// The AP interface is remembered.
	require.NoError(t, s.StartAP())
	require.Equal(t, []string{"wlan1"}, b.apIfaces)
	require.Equal(t, "wlan1", s.Status().ApIface)
}

func TestConfigureErrors(t *testing.T) {
	tests := []struct {
		name string
		args []string
		err  error
		code ResponseCode
	}{
		{name: "too few", args: []string{"wlan0", "wlan1"}, code: CommandSyntaxError},
		{name: "unknown security", args: []string{"wlan0", "wlan1", "Net", "broadcast", "6", "wep"}, code: CommandParameterError},
		{name: "backend failure", args: []string{"wlan0", "wlan1", "Net"}, err: errors.New("disk full"), code: OperationFailed},
		{name: "backend service failure", args: []string{"wlan0", "wlan1", "Net"}, err: fail(ServiceStartFailed, errors.New("ioctl")), code: ServiceStartFailed},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			b := &fakeBackend{configureErr: tt.err}
			s, _, _ := newTestSupervisor(t, b)
			require.Equal(t, tt.code, Code(s.Configure(tt.args)))
		})
	}
}

func TestConfigureSyntaxErrorTouchesNothing(t *testing.T) {
	b := &fakeBackend{}
	s, _, sl := newTestSupervisor(t, b)

	require.Equal(t, CommandSyntaxError, Code(s.Configure(nil)))
	require.Empty(t, b.calls)
	require.Empty(t, *sl)
}

func TestReloadFirmware(t *testing.T) {
	b := &fakeBackend{}
	s, _, _ := newTestSupervisor(t, b)

	require.NoError(t, s.ReloadFirmware([]string{"wlan0", "AP"}))
	require.Equal(t, []string{"wlan0", "AP", "/fw/ap.bin"}, b.reloaded)

	b.reloadErr = errors.New("write failed")
	require.Equal(t, OperationFailed, Code(s.ReloadFirmware([]string{"wlan0", "STA"})))
}

func TestReloadFirmwareRejectsBadArguments(t *testing.T) {
	b := &fakeBackend{}
	s, _, _ := newTestSupervisor(t, b)

	require.Equal(t, CommandSyntaxError, Code(s.ReloadFirmware([]string{"wlan0"})))
	require.Equal(t, CommandParameterError, Code(s.ReloadFirmware([]string{"wlan0", "BOGUS"})))
	// P2P has no image configured.
	require.Equal(t, CommandParameterError, Code(s.ReloadFirmware([]string{"wlan0", "P2P"})))
	require.Empty(t, b.calls)
}

func TestCloseStopsAP(t *testing.T) {
	b := &fakeBackend{}
	s, h, _ := newTestSupervisor(t, b)

	require.NoError(t, s.StartAP())
	require.NoError(t, s.Close())
	require.True(t, h.closed)
	require.False(t, s.IsRunning())
	require.Equal(t, []string{"startap", "stopap"}, b.calls)
}

func TestMetrics(t *testing.T) {
	reg := prometheus.NewRegistry()
	m := NewMetrics(reg)

	b := &fakeBackend{}
	s, _, _ := newTestSupervisor(t, b, WithMetrics(m))

	require.NoError(t, s.StartAP())
	require.Equal(t, 1.0, promtestutil.ToFloat64(m.running))
	require.Equal(t, CommandParameterError, Code(s.ReloadFirmware([]string{"wlan0", "BOGUS"})))
	require.NoError(t, s.StopAP())
	require.Equal(t, 0.0, promtestutil.ToFloat64(m.running))

	require.Equal(t, 1.0, promtestutil.ToFloat64(m.operations.WithLabelValues("startap", "214")))
	require.Equal(t, 1.0, promtestutil.ToFloat64(m.operations.WithLabelValues("fwreload", "501")))
}

func TestCode(t *testing.T) {
	require.Equal(t, SoftapStatusResult, Code(nil))
	require.Equal(t, OperationFailed, Code(errors.New("boom")))
	require.Equal(t, CommandSyntaxError, Code(errors.Wrap(apconfig.ErrSyntax, "x")))
	require.Equal(t, CommandParameterError, Code(errors.Wrap(apconfig.ErrParameter, "x")))
	require.Equal(t, CommandParameterError, Code(errors.Wrap(fwpath.ErrUnknownMode, "x")))
	require.Equal(t, ServiceStartFailed, Code(errors.WithMessage(fail(ServiceStartFailed, errors.New("x")), "y")))
}

func TestInstanceLock(t *testing.T) {
	path := filepath.Join(t.TempDir(), "softapd.lock")

	l, err := AcquireInstanceLock(path)
	require.NoError(t, err)

	_, err = AcquireInstanceLock(path)
	require.ErrorIs(t, err, ErrAlreadyLocked)

	require.NoError(t, l.Release())
	l, err = AcquireInstanceLock(path)
	require.NoError(t, err)
	require.NoError(t, l.Release())
}
