package softap

import (
	"github.com/gofrs/flock"
	"github.com/pkg/errors"
)

// ErrAlreadyLocked is returned when another instance holds the lock.
var ErrAlreadyLocked = errors.New("another instance is already running")

// An InstanceLock guarantees that one supervisor drives the AP at a time.
type InstanceLock struct {
	f *flock.Flock
}

// AcquireInstanceLock takes the lock file at path without blocking.
func AcquireInstanceLock(path string) (*InstanceLock, error) {
	f := flock.New(path)

	ok, err := f.TryLock()
	if err != nil {
		_ = f.Close()
		return nil, errors.Wrapf(err, "cannot lock %s", path)
	}
	if !ok {
		_ = f.Close()
		return nil, errors.Wrapf(ErrAlreadyLocked, "%s is held", path)
	}
	return &InstanceLock{f: f}, nil
}

// Release drops the lock.
func (l *InstanceLock) Release() error {
	return l.f.Close()
}
