package softap

import (
	"crypto/rand"
	"os"

	"github.com/pkg/errors"
	log "github.com/sirupsen/logrus"

	"github.com/tomiamao/softap/internal/apconfig"
	"github.com/tomiamao/softap/internal/fwpath"
)

// Default hostapd locations.
const (
	DefaultHostapdBinary = "/system/bin/hostapd"
	DefaultHostapdConfig = "/data/misc/wifi/hostapd.conf"
	DefaultEntropyFile   = "/data/misc/wifi/entropy.bin"
)

// entropySize is the size of a freshly seeded entropy file.
const entropySize = 21

// HostapdConfig configures a HostapdBackend.
type HostapdConfig struct {
	Binary     string
	ConfigPath string
	// EntropyFile is passed to hostapd with -e. Empty disables it.
	EntropyFile string
	Renderer    apconfig.Hostapd
	Owner       apconfig.Owner
}

// A HostapdBackend runs hostapd as a child process and feeds it a
// generated configuration file.
type HostapdBackend struct {
	cfg      HostapdConfig
	links    LinkController
	launcher Launcher
	firmware FirmwareService
	typer    InterfaceTyper
	finder   processFinder
}

var _ Backend = (*HostapdBackend)(nil)

// NewHostapdBackend creates a HostapdBackend. typer may be nil, in which
// case interface types are left alone.
func NewHostapdBackend(cfg HostapdConfig, links LinkController, launcher Launcher, firmware FirmwareService, typer InterfaceTyper) *HostapdBackend {
	if cfg.Binary == "" {
		cfg.Binary = DefaultHostapdBinary
	}
	if cfg.ConfigPath == "" {
		cfg.ConfigPath = DefaultHostapdConfig
	}
	if launcher == nil {
		launcher = ExecLauncher{}
	}
	return &HostapdBackend{
		cfg:      cfg,
		links:    links,
		launcher: launcher,
		firmware: firmware,
		typer:    typer,
		finder:   processFinderImpl{},
	}
}

// StartDriver brings the interface up. A failure is only logged, the
// driver itself needs no command.
func (b *HostapdBackend) StartDriver(iface string) error {
	if err := b.links.Up(iface); err != nil {
		log.WithError(err).WithField("iface", iface).Error("Softap interface up failed")
	}
	return nil
}

// StopDriver brings the interface down. A failure is only logged.
func (b *HostapdBackend) StopDriver(iface string) error {
	if err := b.links.Down(iface); err != nil {
		log.WithError(err).WithField("iface", iface).Error("Softap interface down failed")
	}
	return nil
}

// StartAP launches hostapd on the configuration file. Stale hostapd
// processes serving the same file are terminated first.
func (b *HostapdBackend) StartAP(_ string) (*Process, error) {
	b.terminateStale()

	var args []string
	if b.cfg.EntropyFile != "" {
		if err := b.ensureEntropyFile(); err != nil {
			return nil, err
		}
		args = append(args, "-e", b.cfg.EntropyFile)
	}
	args = append(args, b.cfg.ConfigPath)

	return b.launcher.Launch(b.cfg.Binary, args...)
}

// StopAP terminates hostapd and waits for it.
func (b *HostapdBackend) StopAP(_ string, p *Process) error {
	log.WithField("pid", p.Pid).Debug("Stopping the SoftAP service")
	return p.Terminate()
}

// Configure writes the hostapd configuration file.
func (b *HostapdBackend) Configure(p *apconfig.Params) error {
	text, err := b.cfg.Renderer.Render(p)
	if err != nil {
		return err
	}
	if err := apconfig.WriteFile(b.cfg.ConfigPath, []byte(text), b.cfg.Owner); err != nil {
		return fail(OperationFailed, err)
	}

	log.WithFields(log.Fields{
		"path":     b.cfg.ConfigPath,
		"iface":    p.WlanIface,
		"security": p.Security,
	}).Info("Hostapd configuration written")
	return nil
}

// ReloadFirmware switches the firmware path and, when an InterfaceTyper is
// available, moves the interface to the matching nl80211 type.
func (b *HostapdBackend) ReloadFirmware(iface string, mode fwpath.Mode, path string) error {
	if err := b.firmware.Change(path); err != nil {
		return err
	}
	if b.typer != nil {
		if err := b.typer.SetInterfaceMode(iface, mode); err != nil {
			log.WithError(err).WithField("iface", iface).Warn("Cannot switch interface type after firmware reload")
		}
	}
	return nil
}

func (b *HostapdBackend) terminateStale() {
	stale, err := b.finder.find(b.cfg.Binary, b.cfg.ConfigPath)
	if err != nil {
		log.WithError(err).Warn("Cannot look for stale hostapd processes")
		return
	}
	for _, p := range stale {
		log.WithField("pid", p.getPid()).Warn("Terminating stale hostapd process")
		if err := p.terminate(); err != nil {
			log.WithError(err).Error("Cannot terminate stale hostapd process")
		}
	}
}

// ensureEntropyFile seeds the entropy file if it is missing.
func (b *HostapdBackend) ensureEntropyFile() error {
	if _, err := os.Stat(b.cfg.EntropyFile); err == nil {
		return nil
	} else if !errors.Is(err, os.ErrNotExist) {
		return errors.Wrapf(err, "cannot access %s", b.cfg.EntropyFile)
	}

	seed := make([]byte, entropySize)
	if _, err := rand.Read(seed); err != nil {
		return errors.Wrap(err, "cannot generate entropy")
	}
	if err := apconfig.WriteFile(b.cfg.EntropyFile, seed, b.cfg.Owner); err != nil {
		return errors.WithMessage(err, "cannot create entropy file")
	}

	log.WithField("path", b.cfg.EntropyFile).Info("Entropy file created")
	return nil
}

func (b *HostapdBackend) reportStatus(st *Status) {
	if st.Pid > 0 {
		if info, err := inspectProcess(st.Pid); err == nil {
			st.Process = info
		} else {
			log.WithError(err).Debug("Cannot inspect the AP process")
		}
	}

	if sum, err := apconfig.ReadFile(b.cfg.ConfigPath); err == nil {
		st.Config = sum
	} else if !errors.Is(err, os.ErrNotExist) {
		log.WithError(err).Debug("Cannot read the hostapd configuration")
	}
}
