//go:build linux
// +build linux

// Package ifctl brings network interfaces up and down over rtnetlink.
package ifctl

import (
	"github.com/josharian/native"
	"github.com/mdlayher/netlink"
	"github.com/pkg/errors"
	log "github.com/sirupsen/logrus"
	"golang.org/x/sys/unix"
)

// sizeofIfInfomsg is sizeof(struct ifinfomsg).
const sizeofIfInfomsg = 16

type executor interface {
	Execute(m netlink.Message) ([]netlink.Message, error)
	Close() error
}

// A Controller changes interface link state.
type Controller struct {
	c executor
}

// Dial opens a NETLINK_ROUTE socket.
func Dial() (*Controller, error) {
	c, err := netlink.Dial(unix.NETLINK_ROUTE, nil)
	if err != nil {
		return nil, errors.Wrap(err, "cannot dial rtnetlink")
	}
	return &Controller{c: c}, nil
}

// Close closes the netlink socket.
func (c *Controller) Close() error { return c.c.Close() }

// Up sets IFF_UP on iface.
func (c *Controller) Up(iface string) error {
	return c.setLink(iface, true)
}

// Down clears IFF_UP on iface.
func (c *Controller) Down(iface string) error {
	return c.setLink(iface, false)
}

func (c *Controller) setLink(iface string, up bool) error {
	m, err := linkMessage(iface, up)
	if err != nil {
		return err
	}
	if _, err := c.c.Execute(m); err != nil {
		return errors.Wrapf(err, "cannot set link state of %s", iface)
	}

	log.WithFields(log.Fields{"iface": iface, "up": up}).Debug("Link state changed")
	return nil
}

// linkMessage builds an RTM_NEWLINK request changing only IFF_UP. The
// interface is addressed by name.
func linkMessage(iface string, up bool) (netlink.Message, error) {
	if iface == "" || len(iface) >= unix.IFNAMSIZ {
		return netlink.Message{}, errors.Errorf("invalid interface name %q", iface)
	}

	hdr := make([]byte, sizeofIfInfomsg)
	hdr[0] = unix.AF_UNSPEC
	var flags uint32
	if up {
		flags = unix.IFF_UP
	}
	native.Endian.PutUint32(hdr[8:12], flags)
	native.Endian.PutUint32(hdr[12:16], unix.IFF_UP)

	ae := netlink.NewAttributeEncoder()
	ae.String(unix.IFLA_IFNAME, iface)
	attrs, err := ae.Encode()
	if err != nil {
		return netlink.Message{}, err
	}

	return netlink.Message{
		Header: netlink.Header{
			Type:  unix.RTM_NEWLINK,
			Flags: netlink.Request | netlink.Acknowledge,
		},
		Data: append(hdr, attrs...),
	}, nil
}
