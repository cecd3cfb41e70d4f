//go:build !linux

package fsops

import "errors"

var errUnsupported = errors.New("inode flags unsupported")

func clearInodeFlags(string) error {
	return errUnsupported
}
