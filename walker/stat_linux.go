//go:build linux

package walker

import (
	"io/fs"
	"syscall"
)

// statCreatedAt falls back to ctime on Linux, which has no portable birth
// time in the standard stat structure; ctime is the closest available
// approximation and itself falls back to mtime on failure.
func statCreatedAt(info fs.FileInfo) int64 {
	if st, ok := info.Sys().(*syscall.Stat_t); ok {
		return st.Ctim.Sec
	}
	return info.ModTime().Unix()
}
