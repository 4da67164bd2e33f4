package apconfig

import (
	"github.com/pkg/errors"
	"gopkg.in/ini.v1"
)

// Summary is the non-secret part of a hostapd configuration file.
type Summary struct {
	Interface string
	SSID      string
	Channel   int
	Hidden    bool
	Security  Security
}

// ReadFile parses the hostapd configuration at path. The pre-shared key
// is never returned.
func ReadFile(path string) (*Summary, error) {
	cfg, err := ini.LoadSources(ini.LoadOptions{
		IgnoreInlineComment:     true,
		KeyValueDelimiters:      "=",
		PreserveSurroundedQuote: true,
		SkipUnrecognizableLines: true,
	}, path)
	if err != nil {
		return nil, errors.Wrapf(err, "cannot read %s", path)
	}

	sec := cfg.Section(ini.DefaultSection)
	s := &Summary{
		Interface: sec.Key("interface").String(),
		SSID:      sec.Key("ssid").String(),
		Channel:   sec.Key("channel").MustInt(0),
		Hidden:    sec.Key("ignore_broadcast_ssid").MustInt(0) != 0,
		Security:  SecurityOpen,
	}

	switch sec.Key("wpa").MustInt(0) {
	case 1:
		s.Security = SecurityWPA
	case 2:
		s.Security = SecurityWPA2
	}

	return s, nil
}
