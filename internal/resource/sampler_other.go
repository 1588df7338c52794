//go:build !linux

package resource

import (
	"context"
	"runtime"
)

// HostSampler falls back to the Go runtime's own memory usage on platforms without
// sysinfo(2). Host totals and disk space are reported as unknown.
type HostSampler struct{}

func (HostSampler) Sample(ctx context.Context, _ string) (Sample, error) {
	if err := ctx.Err(); err != nil {
		return Sample{}, err
	}
	var ms runtime.MemStats
	runtime.ReadMemStats(&ms)
	return Sample{MemoryUsed: ms.Sys}, nil
}
