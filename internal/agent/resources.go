package agent

import (
	"fmt"
	"strconv"
	"strings"

	"github.com/docker/docker/api/types/container"
)

const cpuPeriod = 100000

// resourceLimits converts human-readable limits ("1.5", "512m") into
// container resources. Empty or "0" leaves a limit unset.
func resourceLimits(cpu, mem string) (container.Resources, error) {
	memBytes, err := parseMemoryLimit(mem)
	if err != nil {
		return container.Resources{}, err
	}
	quota, err := parseCPULimit(cpu)
	if err != nil {
		return container.Resources{}, err
	}

	res := container.Resources{Memory: memBytes}
	if quota > 0 {
		res.CPUPeriod = cpuPeriod
		res.CPUQuota = quota
	}
	return res, nil
}

func parseMemoryLimit(s string) (int64, error) {
	s = strings.ToLower(strings.TrimSpace(s))
	if s == "" || s == "0" {
		return 0, nil
	}

	units := map[byte]int64{'k': 1 << 10, 'm': 1 << 20, 'g': 1 << 30}
	mult := int64(1)
	if u, ok := units[s[len(s)-1]]; ok {
		mult = u
		s = s[:len(s)-1]
	}

	n, err := strconv.ParseInt(s, 10, 64)
	if err != nil {
		return 0, fmt.Errorf("agent: memory limit %q: %w", s, err)
	}
	if n < 0 {
		return 0, fmt.Errorf("agent: memory limit %q is negative", s)
	}
	return n * mult, nil
}

func parseCPULimit(s string) (int64, error) {
	s = strings.TrimSpace(s)
	if s == "" || s == "0" {
		return 0, nil
	}

	cpus, err := strconv.ParseFloat(s, 64)
	if err != nil {
		return 0, fmt.Errorf("agent: cpu limit %q: %w", s, err)
	}
	if cpus < 0 {
		return 0, fmt.Errorf("agent: cpu limit %q is negative", s)
	}
	return int64(cpus * cpuPeriod), nil
}
