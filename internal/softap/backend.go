package softap

import (
	"github.com/tomiamao/softap/internal/apconfig"
	"github.com/tomiamao/softap/internal/fwpath"
)

// A Backend performs the driver and AP actions for one kind of hardware.
// It is selected once, when the Supervisor is built.
type Backend interface {
	StartDriver(iface string) error
	StopDriver(iface string) error
	// StartAP starts the AP on apIface and returns its process handle.
	StartAP(apIface string) (*Process, error)
	StopAP(apIface string, p *Process) error
	Configure(p *apconfig.Params) error
	ReloadFirmware(iface string, mode fwpath.Mode, path string) error
}

// A LinkController brings network interfaces up and down.
type LinkController interface {
	Up(iface string) error
	Down(iface string) error
}

// A FirmwareService maps firmware modes to images and switches images.
type FirmwareService interface {
	Path(mode fwpath.Mode) (string, bool)
	Change(path string) error
}

// An InterfaceTyper inspects and switches the nl80211 interface type.
type InterfaceTyper interface {
	InterfaceType(iface string) (string, error)
	SetInterfaceMode(iface string, mode fwpath.Mode) error
}

// statusReporter is implemented by backends that can add details to a
// Status.
type statusReporter interface {
	reportStatus(st *Status)
}
