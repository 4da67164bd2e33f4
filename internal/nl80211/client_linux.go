//go:build linux
// +build linux

// Package nl80211 inspects and retypes Wi-Fi interfaces over generic
// netlink.
package nl80211

import (
	"net"

	"github.com/mdlayher/genetlink"
	"github.com/mdlayher/netlink"
	"github.com/mdlayher/netlink/nlenc"
	"github.com/mdlayher/wifi"
	"github.com/pkg/errors"
	log "github.com/sirupsen/logrus"
	"golang.org/x/sys/unix"

	"github.com/tomiamao/softap/internal/fwpath"
)

// ErrNotFound is returned when no Wi-Fi interface has the requested name.
var ErrNotFound = errors.New("no such wireless interface")

// A Client talks to nl80211.
type Client struct {
	c             *genetlink.Conn
	familyID      uint16
	familyVersion uint8
}

// New dials a generic netlink connection and verifies that nl80211 is
// available.
func New() (*Client, error) {
	c, err := genetlink.Dial(nil)
	if err != nil {
		return nil, errors.Wrap(err, "cannot dial generic netlink")
	}

	// Strict options are best effort, older kernels reject some of them.
	for _, o := range []netlink.ConnOption{
		netlink.ExtendedAcknowledge,
		netlink.GetStrictCheck,
		netlink.NoENOBUFS,
	} {
		_ = c.SetOption(o, true)
	}

	return initClient(c)
}

func initClient(c *genetlink.Conn) (*Client, error) {
	family, err := c.GetFamily(unix.NL80211_GENL_NAME)
	if err != nil {
		_ = c.Close()
		return nil, errors.Wrap(err, "nl80211 is not available")
	}

	return &Client{
		c:             c,
		familyID:      family.ID,
		familyVersion: family.Version,
	}, nil
}

// Close closes the generic netlink connection.
func (c *Client) Close() error { return c.c.Close() }

// execute sends cmd with the attributes set by params. The request flag
// is always set.
func (c *Client) execute(cmd uint8, flags netlink.HeaderFlags, params func(ae *netlink.AttributeEncoder)) ([]genetlink.Message, error) {
	ae := netlink.NewAttributeEncoder()
	if params != nil {
		params(ae)
	}
	b, err := ae.Encode()
	if err != nil {
		return nil, err
	}

	return c.c.Execute(
		genetlink.Message{
			Header: genetlink.Header{
				Command: cmd,
				Version: c.familyVersion,
			},
			Data: b,
		},
		c.familyID,
		netlink.Request|flags,
	)
}

// Interfaces lists the system's Wi-Fi interfaces.
func (c *Client) Interfaces() ([]*wifi.Interface, error) {
	msgs, err := c.execute(unix.NL80211_CMD_GET_INTERFACE, netlink.Dump, nil)
	if err != nil {
		return nil, errors.Wrap(err, "cannot list wireless interfaces")
	}
	return parseInterfaces(msgs)
}

// InterfaceByName returns the Wi-Fi interface called name.
func (c *Client) InterfaceByName(name string) (*wifi.Interface, error) {
	ifis, err := c.Interfaces()
	if err != nil {
		return nil, err
	}
	for _, ifi := range ifis {
		if ifi.Name == name {
			return ifi, nil
		}
	}
	return nil, errors.Wrapf(ErrNotFound, "%q", name)
}

// InterfaceType returns the nl80211 type of name, e.g. "access point".
func (c *Client) InterfaceType(name string) (string, error) {
	ifi, err := c.InterfaceByName(name)
	if err != nil {
		return "", err
	}
	return ifi.Type.String(), nil
}

// SetInterfaceMode switches name to the interface type matching a
// firmware mode.
func (c *Client) SetInterfaceMode(name string, mode fwpath.Mode) error {
	t, err := interfaceType(mode)
	if err != nil {
		return err
	}
	ifi, err := c.InterfaceByName(name)
	if err != nil {
		return err
	}
	if ifi.Type == t {
		return nil
	}

	_, err = c.execute(unix.NL80211_CMD_SET_INTERFACE, netlink.Acknowledge, func(ae *netlink.AttributeEncoder) {
		ae.Uint32(unix.NL80211_ATTR_IFINDEX, uint32(ifi.Index))
		ae.Uint32(unix.NL80211_ATTR_IFTYPE, uint32(t))
	})
	if err != nil {
		return errors.Wrapf(err, "cannot set %s to %s", name, t)
	}

	log.WithFields(log.Fields{"iface": name, "from": ifi.Type, "to": t}).Info("Interface type changed")
	return nil
}

func interfaceType(mode fwpath.Mode) (wifi.InterfaceType, error) {
	switch mode {
	case fwpath.ModeAP:
		return wifi.InterfaceTypeAP, nil
	case fwpath.ModeSTA:
		return wifi.InterfaceTypeStation, nil
	case fwpath.ModeP2P:
		return wifi.InterfaceTypeP2PGroupOwner, nil
	}
	return 0, errors.Wrapf(fwpath.ErrUnknownMode, "%q", mode)
}

func parseInterfaces(msgs []genetlink.Message) ([]*wifi.Interface, error) {
	ifis := make([]*wifi.Interface, 0, len(msgs))
	for _, m := range msgs {
		attrs, err := netlink.UnmarshalAttributes(m.Data)
		if err != nil {
			return nil, err
		}

		var ifi wifi.Interface
		parseInterface(&ifi, attrs)
		ifis = append(ifis, &ifi)
	}

	return ifis, nil
}

func parseInterface(ifi *wifi.Interface, attrs []netlink.Attribute) {
	for _, a := range attrs {
		switch a.Type {
		case unix.NL80211_ATTR_IFINDEX:
			ifi.Index = int(nlenc.Uint32(a.Data))
		case unix.NL80211_ATTR_IFNAME:
			ifi.Name = nlenc.String(a.Data)
		case unix.NL80211_ATTR_MAC:
			ifi.HardwareAddr = net.HardwareAddr(a.Data)
		case unix.NL80211_ATTR_WIPHY:
			ifi.PHY = int(nlenc.Uint32(a.Data))
		case unix.NL80211_ATTR_IFTYPE:
			// wifi.InterfaceType follows the ordering of nl80211's
			// interface type constants.
			ifi.Type = wifi.InterfaceType(nlenc.Uint32(a.Data))
		case unix.NL80211_ATTR_WDEV:
			ifi.Device = int(nlenc.Uint64(a.Data))
		case unix.NL80211_ATTR_WIPHY_FREQ:
			ifi.Frequency = int(nlenc.Uint32(a.Data))
		}
	}
}
