//go:build !linux && !darwin

package walker

import "io/fs"

// statCreatedAt falls back to mtime on platforms with no syscall stat
// structure exposed through this module's build tags.
func statCreatedAt(info fs.FileInfo) int64 {
	return info.ModTime().Unix()
}
