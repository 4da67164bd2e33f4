package apconfig

import (
	"os"

	"github.com/pkg/errors"
	log "github.com/sirupsen/logrus"
	"golang.org/x/sys/unix"
)

// FileMode is the permission of written configuration files.
const FileMode os.FileMode = 0o660

// Owner is the uid and gid a configuration file is handed to. A value of
// -1 leaves that id unchanged.
type Owner struct {
	UID int
	GID int
}

// WriteFile replaces the file at path with data. Any existing entry at
// path, including a symbolic link, is removed rather than followed, and
// the new file is created exclusively. The file is left with FileMode and
// owner. On any failure the file is deleted, so a partially written or
// partially secured file never remains.
func WriteFile(path string, data []byte, owner Owner) (err error) {
	if err := os.Remove(path); err != nil && !errors.Is(err, os.ErrNotExist) {
		return errors.Wrapf(err, "cannot remove old %s", path)
	}

	f, err := os.OpenFile(path, os.O_WRONLY|os.O_CREATE|os.O_EXCL|unix.O_NOFOLLOW, FileMode)
	if err != nil {
		return errors.Wrapf(err, "cannot create %s", path)
	}
	defer func() {
		if err == nil {
			return
		}
		_ = f.Close()
		if rerr := os.Remove(path); rerr != nil {
			log.WithError(rerr).WithField("path", path).Error("Cannot remove incomplete configuration file")
		}
	}()

	if _, err := f.Write(data); err != nil {
		return errors.Wrapf(err, "cannot write to %s", path)
	}
	// Creation is subject to the umask.
	if err := f.Chmod(FileMode); err != nil {
		return errors.Wrapf(err, "cannot change permissions of %s to %o", path, FileMode)
	}
	if err := f.Chown(owner.UID, owner.GID); err != nil {
		return errors.Wrapf(err, "cannot change ownership of %s to %d:%d", path, owner.UID, owner.GID)
	}
	if err := f.Close(); err != nil {
		return errors.Wrapf(err, "cannot close %s", path)
	}
	return nil
}
