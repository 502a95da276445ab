package cpuspec

import (
	"runtime"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestDeterminePerformanceCores(t *testing.T) {
	t.Parallel()
	tests := []struct {
		brand string
		want  int
	}{
		{"12th Gen Intel(R) Core(TM) i9-12900K", 8},
		{"13th Gen Intel(R) Core(TM) i5-13600K", 6},
		{"14th Gen Intel(R) Core(TM) i3-14100", 4},
		{"Intel(R) Core(TM) Ultra 7 265K", 8},
		{"Intel(R) Core(TM) Ultra 5 225", 4},
		{"Apple M2 Max", 8},
		{"Apple M1", 4},
		{"AMD Ryzen 9 7950X 16-Core Processor", 0},
		{"", 0},
	}
	for _, tt := range tests {
		assert.Equal(t, tt.want, determinePerformanceCores(tt.brand), tt.brand)
	}
}

func TestRecommendedPoolSize(t *testing.T) {
	t.Parallel()
	n := runtime.NumCPU()

	assert.Equal(t, 64, CPUSpec{}.RecommendedPoolSize(64))
	assert.Equal(t, n, CPUSpec{}.RecommendedPoolSize(0))
	assert.Equal(t, 1, CPUSpec{PerformanceCores: 1, PhysicalCores: 8}.RecommendedPoolSize(0))
	assert.Equal(t, n, CPUSpec{PhysicalCores: n + 100}.RecommendedPoolSize(-1))
}

func TestSummary(t *testing.T) {
	t.Parallel()
	s := CPUSpec{BrandName: "Apple M2 Max", PhysicalCores: 12, LogicalCores: 12, PerformanceCores: 8, TotalMemory: 32 << 30}.Summary()
	assert.Equal(t, "Apple M2 Max, 12 physical / 12 logical cores, 8 performance cores, 32.0 GiB memory", s)
	assert.Equal(t, "unknown CPU, 0 physical / 0 logical cores", CPUSpec{}.Summary())
}

func TestGetCPUSpec(t *testing.T) {
	t.Parallel()
	spec := GetCPUSpec()
	assert.GreaterOrEqual(t, spec.RecommendedPoolSize(0), 1)
}
