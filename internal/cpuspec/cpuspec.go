// Package cpuspec inspects the host CPU and memory to size the likelihood
// worker pool.
package cpuspec

import (
	"fmt"
	"regexp"
	"runtime"
	"strings"

	"github.com/klauspost/cpuid/v2"
	"github.com/shirou/gopsutil/v3/mem"
)

// CPUSpec contains information about CPU specifications
type CPUSpec struct {
	BrandName        string
	PhysicalCores    int
	LogicalCores     int
	PerformanceCores int
	TotalMemory      uint64
	AvailableMemory  uint64
}

// GetCPUSpec returns the specification of the host.
func GetCPUSpec() CPUSpec {
	brandName := cpuid.CPU.BrandName
	spec := CPUSpec{
		BrandName:        brandName,
		PhysicalCores:    cpuid.CPU.PhysicalCores,
		LogicalCores:     cpuid.CPU.LogicalCores,
		PerformanceCores: determinePerformanceCores(brandName),
	}
	if vm, err := mem.VirtualMemory(); err == nil {
		spec.TotalMemory = vm.Total
		spec.AvailableMemory = vm.Available
	}
	return spec
}

// RecommendedPoolSize returns the worker count for likelihood evaluation.
// A positive request is honoured as is. Otherwise performance cores are
// preferred on hybrid CPUs, then physical cores, and the result never
// exceeds the CPUs available to the process.
func (c CPUSpec) RecommendedPoolSize(requested int) int {
	if requested > 0 {
		return requested
	}
	available := runtime.NumCPU()

	n := c.PerformanceCores
	if n <= 0 {
		n = c.PhysicalCores
	}
	if n <= 0 {
		n = c.LogicalCores
	}
	if n <= 0 || n > available {
		n = available
	}
	return max(n, 1)
}

// Summary describes the host in one line for the startup log.
func (c CPUSpec) Summary() string {
	brand := c.BrandName
	if brand == "" {
		brand = "unknown CPU"
	}
	s := fmt.Sprintf("%s, %d physical / %d logical cores", brand, c.PhysicalCores, c.LogicalCores)
	if c.PerformanceCores > 0 {
		s += fmt.Sprintf(", %d performance cores", c.PerformanceCores)
	}
	if c.TotalMemory > 0 {
		s += fmt.Sprintf(", %.1f GiB memory", float64(c.TotalMemory)/(1<<30))
	}
	return s
}

var (
	intelHybridRegex = regexp.MustCompile(`intel.*(?:core.*i[3579]-(1[234])(\d)00|core.*ultra\s+([579])\s+(?:processor\s+)?(\d{3}))`)
	appleRegex       = regexp.MustCompile(`apple\s+(m[1-4])\s*(pro|max|ultra)?`)
)

// determinePerformanceCores returns the P-core count of known hybrid CPUs
// and zero for everything else.
func determinePerformanceCores(brandName string) int {
	brandName = strings.ToLower(brandName)

	if m := intelHybridRegex.FindStringSubmatch(brandName); m != nil {
		if m[1] != "" {
			// 12th to 14th gen: tiers 7 and 9 have 8 P-cores, 5 and 6 have 6, below that 4.
			switch m[2] {
			case "9", "7":
				return 8
			case "6", "5", "4":
				return 6
			default:
				return 4
			}
		}
		switch m[3] {
		case "9", "7":
			return 8
		case "5":
			if m[4] == "225" {
				return 4
			}
			return 6
		}
	}

	if m := appleRegex.FindStringSubmatch(brandName); m != nil {
		switch m[2] {
		case "ultra":
			return 16
		case "max", "pro":
			return 8
		default:
			return 4
		}
	}
	return 0
}
