// Package apconfig builds SoftAP configuration, either as a hostapd
// configuration file or as a private command argument string.
package apconfig

import (
	"strconv"
	"strings"
	"unicode/utf8"

	"github.com/pkg/errors"
	"golang.org/x/sys/unix"
)

const (
	// DefaultSSID is used when no SSID is supplied.
	DefaultSSID = "AndroidAP"
	// DefaultChannel is used when no channel, or a non-positive one, is
	// supplied.
	DefaultChannel = 6
	// DefaultPreamble and DefaultMaxClients are only sent to legacy drivers.
	DefaultPreamble   = 0
	DefaultMaxClients = 8

	maxSSIDLen       = 32
	minPassphraseLen = 8
	maxPassphraseLen = 63

	// MinArgs is the minimum number of positional configure arguments.
	MinArgs = 3
)

var (
	// ErrSyntax is returned when required arguments are missing.
	ErrSyntax = errors.New("command syntax error")
	// ErrParameter is returned when an argument is not acceptable.
	ErrParameter = errors.New("command parameter error")
)

// Security is the requested authentication mode.
type Security string

// Security modes understood by both output modes. SecurityNone means none
// was requested.
const (
	SecurityNone Security = ""
	SecurityOpen Security = "open"
	SecurityWPA  Security = "wpa-psk"
	SecurityWPA2 Security = "wpa2-psk"
)

// Protected reports whether s needs a pre-shared key.
func (s Security) Protected() bool {
	return s == SecurityWPA || s == SecurityWPA2
}

func parseSecurity(tok string) (Security, error) {
	switch s := Security(tok); s {
	case SecurityOpen, SecurityWPA, SecurityWPA2:
		return s, nil
	}
	return SecurityNone, errors.Wrapf(ErrParameter, "unknown security mode %q", tok)
}

// Params are the validated parameters of a SoftAP configuration.
type Params struct {
	WlanIface  string
	ApIface    string
	SSID       string
	Hidden     bool
	Channel    int
	Security   Security
	Passphrase string
	Preamble   int
	MaxClients int
}

// ParseArgs builds Params from the positional configure arguments:
//
//	wlanIface apIface ssid [hidden|broadcast] [channel] [security] [key] [preamble] [maxClients]
func ParseArgs(args []string) (*Params, error) {
	if len(args) < MinArgs {
		return nil, errors.Wrapf(ErrSyntax, "expected at least %d arguments, got %d", MinArgs, len(args))
	}

	arg := func(i int) string {
		if i < len(args) {
			return args[i]
		}
		return ""
	}

	p := &Params{
		WlanIface:  args[0],
		ApIface:    args[1],
		SSID:       args[2],
		Hidden:     strings.EqualFold(arg(3), "hidden"),
		Passphrase: arg(6),
		Preamble:   DefaultPreamble,
		MaxClients: DefaultMaxClients,
	}

	var err error
	if p.Channel, err = parseInt("channel", arg(4), 0); err != nil {
		return nil, err
	}
	if tok := arg(5); tok != "" {
		if p.Security, err = parseSecurity(tok); err != nil {
			return nil, err
		}
	}
	if p.Preamble, err = parseInt("preamble", arg(7), DefaultPreamble); err != nil {
		return nil, err
	}
	if p.MaxClients, err = parseInt("max clients", arg(8), DefaultMaxClients); err != nil {
		return nil, err
	}

	p.applyDefaults()
	if err := p.Validate(); err != nil {
		return nil, err
	}
	return p, nil
}

func parseInt(what, s string, def int) (int, error) {
	if s == "" {
		return def, nil
	}
	n, err := strconv.Atoi(s)
	if err != nil {
		return 0, errors.Wrapf(ErrParameter, "invalid %s %q", what, s)
	}
	return n, nil
}

func (p *Params) applyDefaults() {
	if p.SSID == "" {
		p.SSID = DefaultSSID
	}
	if p.Channel <= 0 {
		p.Channel = DefaultChannel
	}
}

// Validate checks that p can be rendered safely.
func (p *Params) Validate() error {
	if err := validateIface(p.WlanIface); err != nil {
		return err
	}
	if p.ApIface != "" {
		if err := validateIface(p.ApIface); err != nil {
			return err
		}
	}

	switch {
	case len(p.SSID) > maxSSIDLen:
		return errors.Wrapf(ErrParameter, "SSID is longer than %d bytes", maxSSIDLen)
	case hasControl(p.SSID):
		return errors.Wrap(ErrParameter, "SSID contains control characters")
	case p.MaxClients < 0 || p.Preamble < 0:
		return errors.Wrap(ErrParameter, "preamble and max clients must not be negative")
	}

	switch p.Security {
	case SecurityNone, SecurityOpen:
	case SecurityWPA, SecurityWPA2:
		n := utf8.RuneCountInString(p.Passphrase)
		if n < minPassphraseLen || n > maxPassphraseLen {
			return errors.Wrapf(ErrParameter, "%s passphrase must be %d to %d characters", p.Security, minPassphraseLen, maxPassphraseLen)
		}
		if hasControl(p.Passphrase) {
			return errors.Wrap(ErrParameter, "passphrase contains control characters")
		}
	default:
		return errors.Wrapf(ErrParameter, "unknown security mode %q", p.Security)
	}

	return nil
}

// validateIface applies the kernel's interface name rules.
func validateIface(name string) error {
	if name == "" || len(name) >= unix.IFNAMSIZ || name == "." || name == ".." ||
		hasControl(name) || strings.ContainsAny(name, " \t/:") {
		return errors.Wrapf(ErrParameter, "invalid interface name %q", name)
	}
	return nil
}

func hasControl(s string) bool {
	return strings.ContainsFunc(s, func(r rune) bool {
		return r < 0x20 || r == 0x7f
	})
}
