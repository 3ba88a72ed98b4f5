//go:build windows

package filesystem

import (
	"errors"
	"os"

	"github.com/vertextoedge/media-cache/internal/port"
)

// GetDiskUsage is not supported on windows
func (m *Manager) GetDiskUsage() (*port.DiskUsage, error) {
	return nil, errors.New("disk usage is not supported on windows")
}

func allocatedSize(info os.FileInfo) uint64 {
	return uint64(info.Size())
}
