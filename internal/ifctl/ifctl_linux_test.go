//go:build linux
// +build linux

package ifctl

import (
	"strings"
	"syscall"
	"testing"

	"github.com/josharian/native"
	"github.com/mdlayher/netlink"
	"github.com/stretchr/testify/require"
	"golang.org/x/sys/unix"
)

type fakeExecutor struct {
	msgs []netlink.Message
	err  error
}

func (f *fakeExecutor) Execute(m netlink.Message) ([]netlink.Message, error) {
	f.msgs = append(f.msgs, m)
	return nil, f.err
}

func (f *fakeExecutor) Close() error { return nil }

func decodeLink(t *testing.T, m netlink.Message) (flags, change uint32, name string) {
	t.Helper()
	require.Equal(t, netlink.HeaderType(unix.RTM_NEWLINK), m.Header.Type)
	require.Equal(t, netlink.Request|netlink.Acknowledge, m.Header.Flags)
	require.GreaterOrEqual(t, len(m.Data), sizeofIfInfomsg)

	flags = native.Endian.Uint32(m.Data[8:12])
	change = native.Endian.Uint32(m.Data[12:16])

	ad, err := netlink.NewAttributeDecoder(m.Data[sizeofIfInfomsg:])
	require.NoError(t, err)
	for ad.Next() {
		if ad.Type() == unix.IFLA_IFNAME {
			name = ad.String()
		}
	}
	require.NoError(t, ad.Err())
	return flags, change, name
}

func TestUpDown(t *testing.T) {
	f := &fakeExecutor{}
	c := &Controller{c: f}

	require.NoError(t, c.Up("wlan0"))
	require.NoError(t, c.Down("wlan0"))
	require.Len(t, f.msgs, 2)

	flags, change, name := decodeLink(t, f.msgs[0])
	require.EqualValues(t, unix.IFF_UP, flags)
	require.EqualValues(t, unix.IFF_UP, change)
	require.Equal(t, "wlan0", name)

	flags, change, _ = decodeLink(t, f.msgs[1])
	require.Zero(t, flags)
	require.EqualValues(t, unix.IFF_UP, change)
}

func TestLinkFailure(t *testing.T) {
	f := &fakeExecutor{err: syscall.ENODEV}
	c := &Controller{c: f}

	err := c.Up("wlan9")
	require.ErrorIs(t, err, syscall.ENODEV)
	require.Contains(t, err.Error(), "wlan9")
}

func TestInvalidName(t *testing.T) {
	f := &fakeExecutor{}
	c := &Controller{c: f}

	require.Error(t, c.Up(""))
	require.Error(t, c.Down(strings.Repeat("w", unix.IFNAMSIZ)))
	require.Empty(t, f.msgs)
}
