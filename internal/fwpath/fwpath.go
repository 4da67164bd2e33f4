// Package fwpath selects and switches the Wi-Fi driver firmware image.
package fwpath

import (
	"os"

	"github.com/pkg/errors"
	log "github.com/sirupsen/logrus"
)

// DefaultParam is the driver module parameter holding the firmware path.
const DefaultParam = "/sys/module/bcmdhd/parameters/firmware_path"

// ErrUnknownMode is returned for a mode token other than AP, P2P or STA.
var ErrUnknownMode = errors.New("unknown firmware mode")

// Mode is the operating mode a firmware image is built for.
type Mode string

// Firmware modes.
const (
	ModeAP  Mode = "AP"
	ModeP2P Mode = "P2P"
	ModeSTA Mode = "STA"
)

// ParseMode maps a mode token to a Mode. Tokens are case sensitive.
func ParseMode(tok string) (Mode, error) {
	switch m := Mode(tok); m {
	case ModeAP, ModeP2P, ModeSTA:
		return m, nil
	}
	return "", errors.Wrapf(ErrUnknownMode, "%q", tok)
}

// A Service knows the firmware image for each mode and switches the
// driver between them.
type Service struct {
	// Param is the file the firmware path is written to.
	Param string
	// Paths maps each mode to its firmware image. Modes without an entry
	// are unsupported.
	Paths map[Mode]string
}

// Path returns the firmware image for m.
func (s *Service) Path(m Mode) (string, bool) {
	p, ok := s.Paths[m]
	return p, ok && p != ""
}

// Change points the driver at the firmware image path. The driver loads
// it on the next interface start.
func (s *Service) Change(path string) error {
	param := s.Param
	if param == "" {
		param = DefaultParam
	}

	f, err := os.OpenFile(param, os.O_WRONLY, 0)
	if err != nil {
		return errors.Wrapf(err, "cannot open %s", param)
	}
	defer f.Close()

	// The driver copies the value verbatim, so it gets a C string.
	if _, err := f.Write(append([]byte(path), 0)); err != nil {
		return errors.Wrapf(err, "cannot write firmware path to %s", param)
	}

	log.WithFields(log.Fields{"path": path, "param": param}).Info("Firmware path changed")
	return nil
}
