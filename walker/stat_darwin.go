//go:build darwin

package walker

import (
	"io/fs"
	"syscall"
)

// statCreatedAt prefers the filesystem's birth time on Darwin, falling back
// to mtime if the underlying syscall stat is unavailable.
func statCreatedAt(info fs.FileInfo) int64 {
	if st, ok := info.Sys().(*syscall.Stat_t); ok {
		return st.Birthtimespec.Sec
	}
	return info.ModTime().Unix()
}
