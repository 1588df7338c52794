package resource

import "context"

// Sample is a raw reading of host memory and of the filesystem holding diskPath.
// Zero totals mean the value could not be measured on this platform.
type Sample struct {
	MemoryTotal uint64
	MemoryUsed  uint64
	DiskTotal   uint64
	DiskFree    uint64
}

// Sampler reads host resource usage.
type Sampler interface {
	Sample(ctx context.Context, diskPath string) (Sample, error)
}

// SamplerFunc adapts a function to the Sampler interface.
type SamplerFunc func(ctx context.Context, diskPath string) (Sample, error)

func (f SamplerFunc) Sample(ctx context.Context, diskPath string) (Sample, error) {
	return f(ctx, diskPath)
}
