package cluster

import (
	"bufio"
	"context"
	"os"
	"os/exec"
	"runtime"
	"strconv"
	"strings"
	"time"

	"golang.org/x/sys/cpu"

	"github.com/pyferris/pyferris/pkg/types"
)

// DetectCapabilities probes the local node's hardware, per section 4.6.
// Every probe is best-effort: a failure just leaves that field at its
// zero value rather than aborting startup.
func DetectCapabilities() types.Capabilities {
	c := types.Capabilities{
		CPUCores: runtime.NumCPU(),
		MemoryGB: detectMemoryGB(),
		Features: detectCPUFeatures(),
	}
	c.NvidiaGPU = countNvidiaGPUs()
	c.AMDGPU = countAMDGPUs()
	c.OpenCLGPU = countRenderNodes()
	return c
}

func detectCPUFeatures() []string {
	var features []string
	if cpu.X86.HasAVX {
		features = append(features, "avx")
	}
	if cpu.X86.HasAVX2 {
		features = append(features, "avx2")
	}
	if cpu.X86.HasSSE41 {
		features = append(features, "sse4.1")
	}
	return features
}

// detectMemoryGB reads total system memory from /proc/meminfo. Absence
// (non-Linux, permission denied) leaves the value at 0.
func detectMemoryGB() float64 {
	f, err := os.Open("/proc/meminfo")
	if err != nil {
		return 0
	}
	defer f.Close()

	scanner := bufio.NewScanner(f)
	for scanner.Scan() {
		line := scanner.Text()
		if !strings.HasPrefix(line, "MemTotal:") {
			continue
		}
		fields := strings.Fields(line)
		if len(fields) < 2 {
			return 0
		}
		kb, err := strconv.ParseFloat(fields[1], 64)
		if err != nil {
			return 0
		}
		return kb / (1024 * 1024)
	}
	return 0
}

// countNvidiaGPUs shells out to nvidia-smi and counts reported devices.
// Absence of the tool or a nonzero exit is not fatal: the count is
// simply 0.
func countNvidiaGPUs() int {
	ctx, cancel := context.WithTimeout(context.Background(), 3*time.Second)
	defer cancel()

	if _, err := exec.LookPath("nvidia-smi"); err != nil {
		return 0
	}
	out, err := exec.CommandContext(ctx, "nvidia-smi", "--query-gpu=name", "--format=csv,noheader").Output()
	if err != nil {
		return 0
	}
	return countNonEmptyLines(string(out))
}

// countAMDGPUs shells out to rocm-smi and counts reported devices.
func countAMDGPUs() int {
	ctx, cancel := context.WithTimeout(context.Background(), 3*time.Second)
	defer cancel()

	if _, err := exec.LookPath("rocm-smi"); err != nil {
		return 0
	}
	out, err := exec.CommandContext(ctx, "rocm-smi", "--showid").Output()
	if err != nil {
		return 0
	}
	count := 0
	for _, line := range strings.Split(string(out), "\n") {
		if strings.Contains(line, "GPU[") {
			count++
		}
	}
	return count
}

// countRenderNodes counts OpenCL/integrated-GPU render device entries at
// the platform's well-known device path.
func countRenderNodes() int {
	entries, err := os.ReadDir("/dev/dri")
	if err != nil {
		return 0
	}
	count := 0
	for _, e := range entries {
		if strings.HasPrefix(e.Name(), "renderD") {
			count++
		}
	}
	return count
}

func countNonEmptyLines(s string) int {
	count := 0
	for _, line := range strings.Split(s, "\n") {
		if strings.TrimSpace(line) != "" {
			count++
		}
	}
	return count
}
