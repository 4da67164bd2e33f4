// Package wext issues Linux wireless extension private commands.
//
// Private commands are vendor specific and are not registered ahead of
// time. Every dispatch asks the driver for its private command table,
// resolves the symbolic name to an ioctl number and then issues it.
package wext

import (
	"syscall"

	"github.com/pkg/errors"
	log "github.com/sirupsen/logrus"
)

var (
	// ErrNoHandle is returned when the dispatcher has no control socket.
	ErrNoHandle = errors.New("no control socket")
	// ErrUnsupportedCommand is returned when the driver does not advertise
	// the requested private command.
	ErrUnsupportedCommand = errors.New("private command not supported")
	// ErrInvalidPrivateIoctl is returned when a sub-command has no grouping
	// entry in the driver's table.
	ErrInvalidPrivateIoctl = errors.New("invalid private ioctl")
)

// defaultTableEntries is how many table entries fit in one buffer's worth
// of iw_priv_args.
const defaultTableEntries = MaxBufferSize / sizeofPrivArgs

// A Point is the iw_point payload of a wireless extension request. Length
// may be updated by the kernel.
type Point struct {
	Data   []byte
	Length uint16
	Flags  uint16
}

// An Ioctler issues wireless extension requests addressed by interface
// name.
type Ioctler interface {
	Ioctl(req uint32, iface string, p *Point) (int, error)
}

// An Observer is notified after every dispatch attempt.
type Observer func(command string, err error)

// A Dispatcher resolves and issues private commands.
type Dispatcher struct {
	ioc      Ioctler
	observer Observer
}

// NewDispatcher creates a Dispatcher issuing requests through ioc.
func NewDispatcher(ioc Ioctler) *Dispatcher {
	return &Dispatcher{ioc: ioc}
}

// SetObserver installs fn to be called after every Dispatch.
func (d *Dispatcher) SetObserver(fn Observer) {
	d.observer = fn
}

// PrivateCommands fetches the driver's private command table for iface.
func (d *Dispatcher) PrivateCommands(iface string) ([]PrivArgs, error) {
	if d.ioc == nil {
		return nil, ErrNoHandle
	}

	entries := defaultTableEntries
	for attempt := 0; ; attempt++ {
		tbl := make([]byte, entries*sizeofPrivArgs)
		p := &Point{Data: tbl, Length: uint16(entries)}

		_, err := d.ioc.Ioctl(SIOCGIWPRIV, iface, p)
		switch {
		case err == nil:
			return parsePrivArgs(tbl, int(p.Length))
		case errors.Is(err, syscall.E2BIG) && attempt == 0 && int(p.Length) > entries:
			// The driver reports the size it needs.
			entries = int(p.Length)
		default:
			return nil, errors.Wrapf(err, "SIOCGIWPRIV failed on %s", iface)
		}
	}
}

// Resolve maps name to the ioctl number and sub-command to issue, given
// the driver's table.
//
// Drivers may group several commands under one ioctl number. Such commands
// carry a number below SIOCDEVPRIVATE and are issued through the first
// preceding unnamed entry with the same argument descriptors, with their
// own number passed as the sub-command.
func Resolve(table []PrivArgs, name string) (cmd uint32, sub uint16, err error) {
	i := 0
	for ; i < len(table); i++ {
		if table[i].Name == name {
			break
		}
	}
	if i == len(table) {
		return 0, 0, errors.Wrapf(ErrUnsupportedCommand, "%q", name)
	}

	cmd = table[i].Cmd
	if cmd >= SIOCDEVPRIVATE {
		return cmd, 0, nil
	}

	for j := 0; j < i; j++ {
		if table[j].SetArgs == table[i].SetArgs &&
			table[j].GetArgs == table[i].GetArgs &&
			table[j].Name == "" {
			return table[j].Cmd, uint16(cmd), nil
		}
	}

	return 0, 0, errors.Wrapf(ErrInvalidPrivateIoctl, "%q has no grouping entry", name)
}

// Dispatch issues the private command name on iface with the contents of
// buf. A zero length sends the NUL-terminated string in buf, terminator
// included; any other length is sent as is. The raw ioctl result is
// returned, with an error when it indicates failure.
func (d *Dispatcher) Dispatch(iface, name string, buf *Buffer, length int) (int, error) {
	ret, err := d.dispatch(iface, name, buf, length)
	if d.observer != nil {
		d.observer(name, err)
	}
	return ret, err
}

func (d *Dispatcher) dispatch(iface, name string, buf *Buffer, length int) (int, error) {
	if buf == nil {
		buf = new(Buffer)
	}

	table, err := d.PrivateCommands(iface)
	if err != nil {
		return -1, err
	}

	cmd, sub, err := Resolve(table, name)
	if err != nil {
		log.WithField("iface", iface).WithError(err).Error("Cannot resolve private command")
		return -1, err
	}

	if length == 0 && len(buf.cstring()) > 0 {
		length = len(buf.cstring()) + 1
	}
	if length < 0 || length > MaxBufferSize {
		return -1, errors.Wrapf(ErrCommandTooLarge, "length %d", length)
	}

	log.WithFields(log.Fields{
		"iface":   iface,
		"command": name,
		"ioctl":   cmd,
		"sub":     sub,
		"length":  length,
	}).Debug("Issuing private command")

	ret, err := d.ioc.Ioctl(cmd, iface, &Point{
		Data:   buf.payload(),
		Length: uint16(length),
		Flags:  sub,
	})
	if err != nil {
		return ret, errors.Wrapf(err, "private command %s on %s", name, iface)
	}
	if ret < 0 {
		return ret, errors.Errorf("private command %s on %s returned %d", name, iface, ret)
	}
	return ret, nil
}
