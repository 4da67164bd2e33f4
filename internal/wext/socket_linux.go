//go:build linux
// +build linux

package wext

import (
	"runtime"
	"unsafe"

	"github.com/pkg/errors"
	"golang.org/x/sys/unix"
)

var _ Ioctler = (*Socket)(nil)

// iwPoint mirrors struct iw_point.
type iwPoint struct {
	pointer unsafe.Pointer
	length  uint16
	flags   uint16
}

// iwreq mirrors struct iwreq with the iw_point member of union iwreq_data.
// The union is 16 bytes on every architecture because of its sockaddr
// member.
type iwreq struct {
	name [unix.IFNAMSIZ]byte
	data iwPoint
	_    [16 - unsafe.Sizeof(iwPoint{})]byte
}

// A Socket is a datagram socket used only as a handle for wireless
// extension ioctls.
type Socket struct {
	fd int
}

// Open creates a control Socket.
func Open() (*Socket, error) {
	fd, err := unix.Socket(unix.AF_INET, unix.SOCK_DGRAM|unix.SOCK_CLOEXEC, 0)
	if err != nil {
		return nil, errors.Wrap(err, "failed to open control socket")
	}
	return &Socket{fd: fd}, nil
}

// Close releases the socket.
func (s *Socket) Close() error {
	if s.fd < 0 {
		return nil
	}
	err := unix.Close(s.fd)
	s.fd = -1
	return err
}

// Ioctl issues req on iface. The kernel's updated length is stored back
// into p.
func (s *Socket) Ioctl(req uint32, iface string, p *Point) (int, error) {
	if s.fd < 0 {
		return -1, ErrNoHandle
	}
	if len(iface) >= unix.IFNAMSIZ {
		return -1, errors.Errorf("interface name %q is too long", iface)
	}

	var wrq iwreq
	copy(wrq.name[:], iface)
	if len(p.Data) > 0 {
		wrq.data.pointer = unsafe.Pointer(&p.Data[0])
	}
	wrq.data.length = p.Length
	wrq.data.flags = p.Flags

	r, _, errno := unix.Syscall(unix.SYS_IOCTL, uintptr(s.fd), uintptr(req), uintptr(unsafe.Pointer(&wrq)))
	runtime.KeepAlive(p.Data)

	p.Length = wrq.data.length
	if errno != 0 {
		return -1, errno
	}
	return int(r), nil
}
