package wext

import (
	"bytes"
	"fmt"

	"github.com/josharian/native"
	"golang.org/x/sys/unix"
)

// Wireless extension ioctl numbers from linux/wireless.h and
// linux/sockios.h.
const (
	SIOCGIWPRIV     = 0x8B0D
	SIOCIWFIRSTPRIV = 0x8BE0
	SIOCIWLASTPRIV  = 0x8BFF
	SIOCDEVPRIVATE  = 0x89F0
)

// sizeofPrivArgs is sizeof(struct iw_priv_args).
const sizeofPrivArgs = 8 + unix.IFNAMSIZ

// PrivArgs describes one private command advertised by a driver.
type PrivArgs struct {
	Cmd     uint32
	SetArgs uint16
	GetArgs uint16
	Name    string
}

// parsePrivArgs decodes n iw_priv_args entries from b.
func parsePrivArgs(b []byte, n int) ([]PrivArgs, error) {
	if n < 0 || n*sizeofPrivArgs > len(b) {
		return nil, fmt.Errorf("private command table of %d entries does not fit in %d bytes", n, len(b))
	}

	args := make([]PrivArgs, 0, n)
	for i := 0; i < n; i++ {
		e := b[i*sizeofPrivArgs : (i+1)*sizeofPrivArgs]
		name := e[8:]
		if j := bytes.IndexByte(name, 0); j >= 0 {
			name = name[:j]
		}

		args = append(args, PrivArgs{
			Cmd:     native.Endian.Uint32(e[0:4]),
			SetArgs: native.Endian.Uint16(e[4:6]),
			GetArgs: native.Endian.Uint16(e[6:8]),
			Name:    string(name),
		})
	}

	return args, nil
}

// marshalPrivArgs encodes args in the kernel's iw_priv_args layout. Names
// longer than IFNAMSIZ-1 are truncated.
func marshalPrivArgs(args []PrivArgs) []byte {
	b := make([]byte, len(args)*sizeofPrivArgs)
	for i, a := range args {
		e := b[i*sizeofPrivArgs : (i+1)*sizeofPrivArgs]
		native.Endian.PutUint32(e[0:4], a.Cmd)
		native.Endian.PutUint16(e[4:6], a.SetArgs)
		native.Endian.PutUint16(e[6:8], a.GetArgs)
		copy(e[8:sizeofPrivArgs-1], a.Name)
	}
	return b
}
