package apconfig

import (
	"fmt"
	"strings"

	"github.com/tomiamao/softap/internal/psk"
)

const (
	// DefaultDriver is the hostapd driver interface.
	DefaultDriver = "nl80211"
	// DefaultCtrlInterface is the hostapd control socket directory.
	DefaultCtrlInterface = "/data/misc/wifi/hostapd"
)

// Hostapd renders hostapd configuration files.
type Hostapd struct {
	Driver        string
	CtrlInterface string
}

// Render validates p and returns the complete configuration text.
func (h Hostapd) Render(p *Params) (string, error) {
	if err := p.Validate(); err != nil {
		return "", err
	}

	driver, ctrl := h.Driver, h.CtrlInterface
	if driver == "" {
		driver = DefaultDriver
	}
	if ctrl == "" {
		ctrl = DefaultCtrlInterface
	}

	hidden := 0
	if p.Hidden {
		hidden = 1
	}

	var sb strings.Builder
	fmt.Fprintf(&sb, "interface=%s\n", p.WlanIface)
	fmt.Fprintf(&sb, "driver=%s\n", driver)
	fmt.Fprintf(&sb, "ctrl_interface=%s\n", ctrl)
	fmt.Fprintf(&sb, "ssid=%s\n", p.SSID)
	fmt.Fprintf(&sb, "channel=%d\n", p.Channel)
	sb.WriteString("ieee80211n=1\n")
	sb.WriteString("hw_mode=g\n")
	fmt.Fprintf(&sb, "ignore_broadcast_ssid=%d\n", hidden)

	switch p.Security {
	case SecurityWPA:
		sb.WriteString("wpa=1\n")
		sb.WriteString("wpa_pairwise=TKIP CCMP\n")
		fmt.Fprintf(&sb, "wpa_psk=%s\n", psk.Derive(p.SSID, p.Passphrase))
	case SecurityWPA2:
		sb.WriteString("wpa=2\n")
		sb.WriteString("rsn_pairwise=CCMP\n")
		fmt.Fprintf(&sb, "wpa_psk=%s\n", psk.Derive(p.SSID, p.Passphrase))
	}

	return sb.String(), nil
}
