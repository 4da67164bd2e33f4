package apconfig

import (
	"strconv"
	"strings"

	"github.com/pkg/errors"
	log "github.com/sirupsen/logrus"

	"github.com/tomiamao/softap/internal/psk"
	"github.com/tomiamao/softap/internal/wext"
)

// DefaultLegacyKey is sent to legacy drivers when no passphrase is given.
// It is kept for compatibility with those drivers only.
const DefaultLegacyKey = "12345678"

// endMarker terminates a legacy AP_CFG command.
const endMarker = "END"

// BuildPrivateCommand writes the AP_CFG private command for p into buf:
//
//	ASCII_CMD=AP_CFG,SSID=..,SEC=..,KEY=..,CHANNEL=..,PREAMBLE=..,MAX_SCB=..,END
//
// buf is reset first. If the command does not fit, wext.ErrCommandTooLarge
// is returned and buf must not be dispatched.
func BuildPrivateCommand(buf *wext.Buffer, p *Params) error {
	if err := p.Validate(); err != nil {
		return err
	}
	if strings.Contains(p.SSID, ",") {
		return errors.Wrap(ErrParameter, "SSID must not contain commas for legacy drivers")
	}

	sec := p.Security
	if sec == SecurityNone {
		sec = SecurityOpen
	}

	key := DefaultLegacyKey
	if p.Passphrase != "" {
		key = psk.Derive(p.SSID, p.Passphrase)
	} else {
		log.Warn("No passphrase given, sending the default legacy key")
	}

	buf.Reset()
	params := [][2]string{
		{"ASCII_CMD", "AP_CFG"},
		{"SSID", p.SSID},
		{"SEC", string(sec)},
		{"KEY", key},
		{"CHANNEL", strconv.Itoa(p.Channel)},
		{"PREAMBLE", strconv.Itoa(p.Preamble)},
		{"MAX_SCB", strconv.Itoa(p.MaxClients)},
	}
	for _, kv := range params {
		if err := appendParam(buf, kv[0], kv[1]); err != nil {
			buf.Reset()
			return err
		}
	}
	if _, err := buf.WriteString(endMarker); err != nil {
		buf.Reset()
		return err
	}

	return nil
}

// appendParam writes "key=value," into buf, all or nothing.
func appendParam(buf *wext.Buffer, key, value string) error {
	_, err := buf.WriteString(key + "=" + value + ",")
	return errors.WithMessagef(err, "cannot append %s", key)
}
