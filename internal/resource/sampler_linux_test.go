//go:build linux

package resource

import (
	"context"
	"os"
	"path/filepath"
	"testing"
)

// A host with most of its memory in page cache: MemFree is low but MemAvailable is high.
const cachedMeminfo = `MemTotal:       16384000 kB
MemFree:          512000 kB
MemAvailable:   12288000 kB
Buffers:          256000 kB
Cached:         11264000 kB
SwapCached:            0 kB
Active:          4096000 kB
Inactive:        9216000 kB
SwapTotal:             0 kB
SwapFree:              0 kB
`

func writeProc(t *testing.T, meminfo string) string {
	t.Helper()
	root := t.TempDir()
	if err := os.WriteFile(filepath.Join(root, "meminfo"), []byte(meminfo), 0o644); err != nil {
		t.Fatal(err)
	}
	return root
}

func TestHostSampler_PageCacheCountsAsAvailable(t *testing.T) {
	sampler := HostSampler{ProcRoot: writeProc(t, cachedMeminfo)}

	sample, err := sampler.Sample(context.Background(), t.TempDir())
	if err != nil {
		t.Fatalf("Sample failed: %v", err)
	}

	const kib = 1024
	if sample.MemoryTotal != 16384000*kib {
		t.Errorf("expected total %d, got %d", 16384000*kib, sample.MemoryTotal)
	}
	if sample.MemoryUsed != (16384000-12288000)*kib {
		t.Errorf("expected used %d, got %d", (16384000-12288000)*kib, sample.MemoryUsed)
	}

	used := float64(sample.MemoryUsed) / float64(sample.MemoryTotal) * 100
	if level := DefaultThresholds().MemoryLevel(used); level != LevelNormal {
		t.Errorf("expected normal memory pressure with a warm page cache, got %s", level)
	}
}

func TestHostSampler_FallsBackWithoutMemAvailable(t *testing.T) {
	sampler := HostSampler{ProcRoot: writeProc(t, "MemTotal:       16384000 kB\nMemFree:          512000 kB\n")}

	sample, err := sampler.Sample(context.Background(), t.TempDir())
	if err != nil {
		t.Fatalf("Sample failed: %v", err)
	}
	if sample.MemoryTotal == 0 {
		t.Error("expected sysinfo total memory")
	}
	if sample.MemoryUsed > sample.MemoryTotal {
		t.Errorf("used %d exceeds total %d", sample.MemoryUsed, sample.MemoryTotal)
	}
}
