package softap

import (
	"github.com/pkg/errors"
	log "github.com/sirupsen/logrus"

	"github.com/tomiamao/softap/internal/apconfig"
	"github.com/tomiamao/softap/internal/fwpath"
	"github.com/tomiamao/softap/internal/wext"
)

// Private commands understood by legacy SoftAP drivers.
const (
	cmdDriverStart = "START"
	cmdDriverStop  = "STOP"
	cmdBSSStart    = "AP_BSS_START"
	cmdBSSStop     = "AP_BSS_STOP"
	cmdSetConfig   = "AP_SET_CFG"
	cmdFwReload    = "WL_FW_RELOAD"
)

// A LegacyBackend drives drivers that implement the AP themselves, through
// private commands.
type LegacyBackend struct {
	d   *wext.Dispatcher
	buf wext.Buffer
}

var _ Backend = (*LegacyBackend)(nil)

// NewLegacyBackend creates a LegacyBackend dispatching through d.
func NewLegacyBackend(d *wext.Dispatcher) *LegacyBackend {
	return &LegacyBackend{d: d}
}

func (b *LegacyBackend) command(iface, name string) error {
	b.buf.Reset()
	_, err := b.d.Dispatch(iface, name, &b.buf, 0)
	return err
}

func (b *LegacyBackend) StartDriver(iface string) error {
	return b.command(iface, cmdDriverStart)
}

func (b *LegacyBackend) StopDriver(iface string) error {
	return b.command(iface, cmdDriverStop)
}

func (b *LegacyBackend) StartAP(apIface string) (*Process, error) {
	if err := b.command(apIface, cmdBSSStart); err != nil {
		return nil, err
	}
	return sentinelProcess(), nil
}

func (b *LegacyBackend) StopAP(apIface string, _ *Process) error {
	return b.command(apIface, cmdBSSStop)
}

// Configure sends the AP_SET_CFG command. Nothing is dispatched unless the
// whole command fits in the buffer.
func (b *LegacyBackend) Configure(p *apconfig.Params) error {
	if err := apconfig.BuildPrivateCommand(&b.buf, p); err != nil {
		if errors.Is(err, wext.ErrCommandTooLarge) {
			log.WithError(err).Error("Softap set - command is too big")
			return fail(OperationFailed, err)
		}
		return err
	}

	if _, err := b.d.Dispatch(p.WlanIface, cmdSetConfig, &b.buf, 0); err != nil {
		return fail(ServiceStartFailed, err)
	}
	return nil
}

func (b *LegacyBackend) ReloadFirmware(iface string, _ fwpath.Mode, path string) error {
	b.buf.Reset()
	if _, err := b.buf.WriteString("FW_PATH=" + path); err != nil {
		return err
	}
	_, err := b.d.Dispatch(iface, cmdFwReload, &b.buf, 0)
	return err
}
