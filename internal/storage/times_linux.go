//go:build linux

package storage

import (
	"os"
	"syscall"
	"time"
)

// fileTimes returns the inode change time and the modification time.
// Linux does not expose a birth time through os.FileInfo.
func fileTimes(info os.FileInfo) (created, modified time.Time) {
	modified = info.ModTime()
	if st, ok := info.Sys().(*syscall.Stat_t); ok {
		return time.Unix(int64(st.Ctim.Sec), int64(st.Ctim.Nsec)), modified //nolint:unconvert // int32 on 386
	}
	return modified, modified
}
