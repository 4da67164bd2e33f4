//go:build linux
// +build linux

package nl80211

import (
	"net"
	"testing"

	"github.com/google/go-cmp/cmp"
	"github.com/mdlayher/genetlink"
	"github.com/mdlayher/genetlink/genltest"
	"github.com/mdlayher/netlink"
	"github.com/mdlayher/netlink/nlenc"
	"github.com/mdlayher/wifi"
	"github.com/stretchr/testify/require"
	"golang.org/x/sys/unix"

	"github.com/tomiamao/softap/internal/fwpath"
)

var family = genetlink.Family{
	ID:      26,
	Version: 1,
	Name:    unix.NL80211_GENL_NAME,
}

func interfaceMessage(t *testing.T, index int, name string, typ wifi.InterfaceType) genetlink.Message {
	t.Helper()
	b, err := netlink.MarshalAttributes([]netlink.Attribute{
		{Type: unix.NL80211_ATTR_IFINDEX, Data: nlenc.Uint32Bytes(uint32(index))},
		{Type: unix.NL80211_ATTR_IFNAME, Data: nlenc.Bytes(name)},
		{Type: unix.NL80211_ATTR_MAC, Data: []byte{0xde, 0xad, 0xbe, 0xef, 0xde, 0xad}},
		{Type: unix.NL80211_ATTR_WIPHY, Data: nlenc.Uint32Bytes(0)},
		{Type: unix.NL80211_ATTR_IFTYPE, Data: nlenc.Uint32Bytes(uint32(typ))},
		{Type: unix.NL80211_ATTR_WDEV, Data: nlenc.Uint64Bytes(1)},
		{Type: unix.NL80211_ATTR_WIPHY_FREQ, Data: nlenc.Uint32Bytes(2437)},
	})
	require.NoError(t, err)
	return genetlink.Message{Data: b}
}

// testClient serves two interfaces, wlan0 in station mode and wlan1 as an
// access point, and records SET_INTERFACE requests.
func testClient(t *testing.T) (*Client, *[][]byte) {
	t.Helper()
	var sets [][]byte

	conn := genltest.Dial(genltest.ServeFamily(family, func(greq genetlink.Message, _ netlink.Message) ([]genetlink.Message, error) {
		switch greq.Header.Command {
		case unix.NL80211_CMD_GET_INTERFACE:
			return []genetlink.Message{
				interfaceMessage(t, 3, "wlan0", wifi.InterfaceTypeStation),
				interfaceMessage(t, 4, "wlan1", wifi.InterfaceTypeAP),
			}, nil
		case unix.NL80211_CMD_SET_INTERFACE:
			sets = append(sets, greq.Data)
			return nil, nil
		}
		return nil, unix.EOPNOTSUPP
	}))

	c, err := initClient(conn)
	require.NoError(t, err)
	t.Cleanup(func() { _ = c.Close() })
	return c, &sets
}

func TestInterfaces(t *testing.T) {
	c, _ := testClient(t)

	ifis, err := c.Interfaces()
	require.NoError(t, err)

	mac := net.HardwareAddr{0xde, 0xad, 0xbe, 0xef, 0xde, 0xad}
	want := []*wifi.Interface{
		{Index: 3, Name: "wlan0", HardwareAddr: mac, Type: wifi.InterfaceTypeStation, Device: 1, Frequency: 2437},
		{Index: 4, Name: "wlan1", HardwareAddr: mac, Type: wifi.InterfaceTypeAP, Device: 1, Frequency: 2437},
	}
	if diff := cmp.Diff(want, ifis); diff != "" {
		t.Fatalf("unexpected interfaces (-want +got):\n%s", diff)
	}
}

func TestInterfaceType(t *testing.T) {
	c, _ := testClient(t)

	typ, err := c.InterfaceType("wlan1")
	require.NoError(t, err)
	require.Equal(t, wifi.InterfaceTypeAP.String(), typ)

	_, err = c.InterfaceType("wlan9")
	require.ErrorIs(t, err, ErrNotFound)
}

func TestSetInterfaceMode(t *testing.T) {
	c, sets := testClient(t)

	require.NoError(t, c.SetInterfaceMode("wlan0", fwpath.ModeAP))
	require.Len(t, *sets, 1)

	ad, err := netlink.NewAttributeDecoder((*sets)[0])
	require.NoError(t, err)
	var index, typ uint32
	for ad.Next() {
		switch ad.Type() {
		case unix.NL80211_ATTR_IFINDEX:
			index = ad.Uint32()
		case unix.NL80211_ATTR_IFTYPE:
			typ = ad.Uint32()
		}
	}
	require.NoError(t, ad.Err())
	require.EqualValues(t, 3, index)
	require.EqualValues(t, wifi.InterfaceTypeAP, typ)

	// Already an access point.
	require.NoError(t, c.SetInterfaceMode("wlan1", fwpath.ModeAP))
	require.Len(t, *sets, 1)
}

func TestSetInterfaceModeUnknown(t *testing.T) {
	c, sets := testClient(t)

	require.ErrorIs(t, c.SetInterfaceMode("wlan0", fwpath.Mode("MESH")), fwpath.ErrUnknownMode)
	require.ErrorIs(t, c.SetInterfaceMode("wlan9", fwpath.ModeSTA), ErrNotFound)
	require.Empty(t, *sets)
}

func TestInitClientMissingFamily(t *testing.T) {
	conn := genltest.Dial(func(genetlink.Message, netlink.Message) ([]genetlink.Message, error) {
		return nil, unix.ENOENT
	})

	_, err := initClient(conn)
	require.Error(t, err)
}
