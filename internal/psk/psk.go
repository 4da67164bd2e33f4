// Package psk derives WPA pre-shared keys from passphrases.
package psk

import (
	"crypto/sha1"
	"encoding/hex"

	"golang.org/x/crypto/pbkdf2"
)

const (
	// Iterations is the PBKDF2 round count mandated by IEEE 802.11i.
	Iterations = 4096
	// KeyLen is the length of a derived key in bytes.
	KeyLen = 32
)

// Key computes the raw WPA key for an SSID and passphrase.
func Key(ssid, passphrase []byte) []byte {
	return pbkdf2.Key(passphrase, ssid, Iterations, KeyLen, sha1.New)
}

// Derive returns the key for ssid and passphrase as a lowercase hex string
// of 2*KeyLen characters, suitable for hostapd's wpa_psk setting.
func Derive(ssid, passphrase string) string {
	return hex.EncodeToString(Key([]byte(ssid), []byte(passphrase)))
}
