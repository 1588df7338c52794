//go:build linux

package resource

import (
	"context"
	"fmt"

	"github.com/prometheus/procfs"
	"golang.org/x/sys/unix"
)

// HostSampler reads memory from /proc/meminfo and disk space with statfs(2).
// Used memory is MemTotal minus MemAvailable, so reclaimable page cache counts as
// free. Kernels without MemAvailable fall back to sysinfo(2).
type HostSampler struct {
	// ProcRoot is the procfs mount point. Empty means /proc.
	ProcRoot string
}

func (h HostSampler) Sample(ctx context.Context, diskPath string) (Sample, error) {
	if err := ctx.Err(); err != nil {
		return Sample{}, err
	}

	total, available, err := h.memory()
	if err != nil {
		return Sample{}, err
	}
	if available > total {
		available = total
	}

	var fs unix.Statfs_t
	if err := unix.Statfs(diskPath, &fs); err != nil {
		return Sample{}, fmt.Errorf("statfs %s: %w", diskPath, err)
	}
	bsize := uint64(fs.Bsize)

	return Sample{
		MemoryTotal: total,
		MemoryUsed:  total - available,
		DiskTotal:   uint64(fs.Blocks) * bsize,
		DiskFree:    uint64(fs.Bavail) * bsize,
	}, nil
}

func (h HostSampler) memory() (total, available uint64, err error) {
	root := h.ProcRoot
	if root == "" {
		root = procfs.DefaultMountPoint
	}
	if fs, err := procfs.NewFS(root); err == nil {
		if mi, err := fs.Meminfo(); err == nil && mi.MemTotalBytes != nil && mi.MemAvailableBytes != nil {
			return *mi.MemTotalBytes, *mi.MemAvailableBytes, nil
		}
	}

	var info unix.Sysinfo_t
	if err := unix.Sysinfo(&info); err != nil {
		return 0, 0, fmt.Errorf("sysinfo: %w", err)
	}
	unit := uint64(info.Unit)
	if unit == 0 {
		unit = 1
	}
	return uint64(info.Totalram) * unit, (uint64(info.Freeram) + uint64(info.Bufferram)) * unit, nil
}
