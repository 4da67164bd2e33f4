// Package softap supervises the SoftAP lifecycle: driver start and stop,
// AP configuration, the AP itself and firmware reloads.
package softap

import (
	"io"
	"sync"
	"time"

	"github.com/pkg/errors"
	log "github.com/sirupsen/logrus"

	"github.com/tomiamao/softap/internal/apconfig"
	"github.com/tomiamao/softap/internal/fwpath"
	"github.com/tomiamao/softap/internal/wext"
)

// DefaultInterface is the AP interface used until one is configured.
const DefaultInterface = "wlan0"

// Delays are the fixed pauses after driver and AP actions that let the
// driver settle.
type Delays struct {
	DriverStart time.Duration
	BSSStart    time.Duration
	BSSStop     time.Duration
	SetConfig   time.Duration
}

// DefaultDelays are the settle delays used unless overridden.
var DefaultDelays = Delays{
	DriverStart: 800 * time.Millisecond,
	BSSStart:    200 * time.Millisecond,
	BSSStop:     500 * time.Millisecond,
	SetConfig:   500 * time.Millisecond,
}

// Status describes the supervisor state.
type Status struct {
	Running bool
	// Pid is zero when the AP has no process of its own.
	Pid     int
	ApIface string
	// IfaceType is the nl80211 type of ApIface, if known.
	IfaceType string
	Process   *ProcessInfo
	Config    *apconfig.Summary
}

// A Supervisor owns the control socket and the AP process handle and
// serializes every operation on them.
type Supervisor struct {
	mu sync.Mutex

	handle   io.Closer
	backend  Backend
	firmware FirmwareService
	typer    InterfaceTyper
	metrics  *Metrics
	delays   Delays
	sleep    func(time.Duration)

	apIface string
	proc    *Process
}

// An Option configures a Supervisor.
type Option func(*Supervisor)

// WithDelays overrides the settle delays.
func WithDelays(d Delays) Option {
	return func(s *Supervisor) { s.delays = d }
}

// WithSleeper replaces time.Sleep for the settle delays.
func WithSleeper(fn func(time.Duration)) Option {
	return func(s *Supervisor) { s.sleep = fn }
}

// WithMetrics records operations in m.
func WithMetrics(m *Metrics) Option {
	return func(s *Supervisor) { s.metrics = m }
}

// WithInterface sets the AP interface used before one is configured.
func WithInterface(iface string) Option {
	return func(s *Supervisor) { s.apIface = iface }
}

// WithInterfaceTyper reports the nl80211 interface type in Status.
func WithInterfaceTyper(t InterfaceTyper) Option {
	return func(s *Supervisor) { s.typer = t }
}

// NewSupervisor creates a Supervisor. handle is the control socket the
// backend issues its ioctls on; the Supervisor closes it in Close. A nil
// handle means the socket could not be opened and every operation fails.
func NewSupervisor(handle io.Closer, backend Backend, firmware FirmwareService, opts ...Option) *Supervisor {
	s := &Supervisor{
		handle:   handle,
		backend:  backend,
		firmware: firmware,
		delays:   DefaultDelays,
		sleep:    time.Sleep,
		apIface:  DefaultInterface,
	}
	for _, o := range opts {
		o(s)
	}
	return s
}

func (s *Supervisor) checkHandle(op string) error {
	if s.handle == nil {
		log.Errorf("Softap %s - failed to open socket", op)
		return fail(OperationFailed, wext.ErrNoHandle)
	}
	return nil
}

func (s *Supervisor) iface(iface, op string) string {
	if iface == "" {
		log.WithField("iface", s.apIface).Debugf("Softap %s - using the configured interface", op)
		return s.apIface
	}
	return iface
}

// StartDriver starts the driver on iface, or on the AP interface when
// iface is empty.
func (s *Supervisor) StartDriver(iface string) (err error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	defer func() { s.metrics.observeOperation("start", err) }()

	if err := s.checkHandle("driver start"); err != nil {
		return err
	}
	iface = s.iface(iface, "driver start")

	if err := s.backend.StartDriver(iface); err != nil {
		log.WithError(err).WithField("iface", iface).Error("Softap driver start failed")
		return fail(ServiceStartFailed, err)
	}

	s.sleep(s.delays.DriverStart)
	log.WithField("iface", iface).Info("Softap driver started")
	return nil
}

// StopDriver stops the driver on iface, or on the AP interface when iface
// is empty. Driver errors are logged but not returned.
func (s *Supervisor) StopDriver(iface string) (err error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	defer func() { s.metrics.observeOperation("stop", err) }()

	if err := s.checkHandle("driver stop"); err != nil {
		return err
	}
	iface = s.iface(iface, "driver stop")

	if err := s.backend.StopDriver(iface); err != nil {
		log.WithError(err).WithField("iface", iface).Error("Softap driver stop failed")
	} else {
		log.WithField("iface", iface).Info("Softap driver stopped")
	}
	return nil
}

// StartAP starts the AP. It does nothing if the AP is already running.
func (s *Supervisor) StartAP() (err error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	defer func() { s.metrics.observeOperation("startap", err) }()

	s.reap()
	if s.proc != nil {
		log.Info("SoftAP is already running")
		return nil
	}
	if err := s.checkHandle("startap"); err != nil {
		return err
	}

	p, err := s.backend.StartAP(s.apIface)
	if err != nil {
		log.WithError(err).Error("SoftAP failed to start")
		return fail(ServiceStartFailed, err)
	}
	s.proc = p
	s.metrics.setRunning(true)

	s.sleep(s.delays.BSSStart)

	if p.Exited() {
		s.proc = nil
		s.metrics.setRunning(false)
		err := errors.Errorf("AP process %d exited during startup: %v", p.Pid, p.Err())
		log.WithError(err).Error("SoftAP failed to start")
		return fail(ServiceStartFailed, err)
	}

	log.WithField("pid", p.Pid).Info("SoftAP started successfully")
	return nil
}

// StopAP stops the AP. It does nothing if the AP is not running. The
// process handle is cleared even if stopping fails.
func (s *Supervisor) StopAP() (err error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	defer func() { s.metrics.observeOperation("stopap", err) }()

	if s.proc == nil {
		log.Info("SoftAP is not running")
		return nil
	}
	s.stopAP()
	return nil
}

func (s *Supervisor) stopAP() {
	if err := s.backend.StopAP(s.apIface, s.proc); err != nil {
		log.WithError(err).WithField("pid", s.proc.Pid).Error("SoftAP stop failed")
	}
	s.proc = nil
	s.metrics.setRunning(false)

	s.sleep(s.delays.BSSStop)
	log.Info("SoftAP stopped successfully")
}

// reap clears the process handle if the AP process exited on its own.
func (s *Supervisor) reap() {
	if s.proc != nil && s.proc.Exited() {
		log.WithError(s.proc.Err()).WithField("pid", s.proc.Pid).Warn("SoftAP process exited unexpectedly")
		s.proc = nil
		s.metrics.setRunning(false)
	}
}

// IsRunning reports whether the AP is running.
func (s *Supervisor) IsRunning() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.proc != nil
}

// Configure applies the positional configure arguments, see
// apconfig.ParseArgs. The AP interface is remembered for later
// operations.
func (s *Supervisor) Configure(args []string) (err error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	defer func() { s.metrics.observeOperation("set", err) }()

	if err := s.checkHandle("set"); err != nil {
		return err
	}

	p, err := apconfig.ParseArgs(args)
	if err != nil {
		log.WithError(err).Error("Softap set - invalid arguments")
		return classify(OperationFailed, err)
	}
	if p.ApIface != "" {
		s.apIface = p.ApIface
	}

	if err := s.backend.Configure(p); err != nil {
		log.WithError(err).Error("Softap set - failed")
		return classify(OperationFailed, err)
	}

	s.sleep(s.delays.SetConfig)
	log.WithFields(log.Fields{"iface": p.WlanIface, "ssid": p.SSID}).Info("Softap set - Ok")
	return nil
}

// ReloadFirmware switches the driver firmware. args are the interface and
// the mode token AP, P2P or STA.
func (s *Supervisor) ReloadFirmware(args []string) (err error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	defer func() { s.metrics.observeOperation("fwreload", err) }()

	if err := s.checkHandle("fwreload"); err != nil {
		return err
	}
	if len(args) < 2 {
		return fail(CommandSyntaxError, errors.Wrap(apconfig.ErrSyntax, "expected <iface> <AP|P2P|STA>"))
	}
	iface := args[0]

	mode, err := fwpath.ParseMode(args[1])
	if err != nil {
		return fail(CommandParameterError, err)
	}
	path, ok := s.firmware.Path(mode)
	if !ok {
		return fail(CommandParameterError, errors.Errorf("no firmware configured for mode %s", mode))
	}

	if err := s.backend.ReloadFirmware(iface, mode, path); err != nil {
		log.WithError(err).Error("Softap fwReload failed")
		return fail(OperationFailed, err)
	}

	log.WithFields(log.Fields{"iface": iface, "mode": mode, "path": path}).Info("Softap fwReload - Ok")
	return nil
}

// Status returns the supervisor state along with whatever the backend and
// the system can tell about the AP.
func (s *Supervisor) Status() *Status {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.reap()
	st := &Status{
		Running: s.proc != nil,
		ApIface: s.apIface,
	}
	// The legacy sentinel has no process of its own.
	if s.proc != nil && s.proc.Pid != legacyPid {
		st.Pid = s.proc.Pid
	}

	if r, ok := s.backend.(statusReporter); ok {
		r.reportStatus(st)
	}
	if s.typer != nil {
		if t, err := s.typer.InterfaceType(s.apIface); err == nil {
			st.IfaceType = t
		} else {
			log.WithError(err).WithField("iface", s.apIface).Debug("Cannot read the interface type")
		}
	}
	return st
}

// Close stops the AP if it is running and releases the control socket.
func (s *Supervisor) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.proc != nil {
		s.stopAP()
	}
	if s.handle == nil {
		return nil
	}
	err := s.handle.Close()
	s.handle = nil
	return err
}
