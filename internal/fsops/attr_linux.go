//go:build linux

package fsops

import (
	"errors"
	"os"

	"golang.org/x/sys/unix"
)

// inode flags from linux/fs.h
const (
	fsImmutableFl = 0x00000010
	fsAppendFl    = 0x00000020
)

var errUnsupported = errors.New("inode flags unsupported")

// clearInodeFlags drops FS_IMMUTABLE_FL and FS_APPEND_FL (chattr -i -a)
func clearInodeFlags(path string) error {
	f, err := os.OpenFile(path, os.O_RDONLY|unix.O_NONBLOCK|unix.O_NOFOLLOW, 0)
	if err != nil {
		return err
	}
	defer f.Close()

	fd := int(f.Fd())
	flags, err := unix.IoctlGetUint32(fd, unix.FS_IOC_GETFLAGS)
	if err != nil {
		if errors.Is(err, unix.ENOTTY) || errors.Is(err, unix.EOPNOTSUPP) {
			return errUnsupported
		}
		return err
	}
	if flags&(fsImmutableFl|fsAppendFl) == 0 {
		return nil
	}
	flags &^= fsImmutableFl | fsAppendFl
	return unix.IoctlSetPointerInt(fd, unix.FS_IOC_SETFLAGS, int(flags))
}
