//go:build !linux

package storage

import (
	"os"
	"time"
)

func fileTimes(info os.FileInfo) (created, modified time.Time) {
	return info.ModTime(), info.ModTime()
}
