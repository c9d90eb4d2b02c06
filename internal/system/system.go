package system

import (
	"fmt"
	"os"
	"os/exec"
	"path/filepath"
	"regexp"
	"sort"
	"strconv"
	"strings"

	"github.com/shirou/gopsutil/v3/cpu"
	"github.com/shirou/gopsutil/v3/mem"
)

// HostInfo is what the loader needs to know about the machine to size its
// fetch pools.
type HostInfo struct {
	LogicalCPUs     int
	TotalMemory     uint64
	AvailableMemory uint64
}

func Probe() (HostInfo, error) {
	var info HostInfo

	cpus, err := cpu.Counts(true)
	if err != nil {
		return info, fmt.Errorf("cpu count: %w", err)
	}
	info.LogicalCPUs = cpus

	vm, err := mem.VirtualMemory()
	if err != nil {
		return info, fmt.Errorf("virtual memory: %w", err)
	}
	info.TotalMemory = vm.Total
	info.AvailableMemory = vm.Available
	return info, nil
}

const lowMemory = 1 << 30

// RecommendedConcurrency picks a per-tier in-flight limit: one pipeline per
// logical CPU within [2, 8], dropping to 2 when less than 1 GiB is free.
func RecommendedConcurrency(info HostInfo) int {
	if info.AvailableMemory > 0 && info.AvailableMemory < lowMemory {
		return 2
	}
	n := info.LogicalCPUs
	if n < 2 {
		n = 2
	}
	if n > 8 {
		n = 8
	}
	return n
}

// SequenceInfo describes a frame directory found on disk.
type SequenceInfo struct {
	Dir    string
	Prefix string
	Digits int
	Ext    string
	Count  int
	Bytes  int64
	First  string
	Last   string
}

var frameName = regexp.MustCompile(`^(.*?)(\d+)\.([A-Za-z0-9]+)$`)

// DetectSequence scans dir for numbered frames named {prefix}{digits}.{ext}.
// When prefix is empty the most common prefix wins.
func DetectSequence(dir, prefix string) (SequenceInfo, error) {
	entries, err := os.ReadDir(dir)
	if err != nil {
		return SequenceInfo{}, err
	}

	type group struct {
		digits int
		ext    string
		names  []string
		bytes  int64
	}
	groups := make(map[string]*group)

	for _, entry := range entries {
		if entry.IsDir() {
			continue
		}
		m := frameName.FindStringSubmatch(entry.Name())
		if m == nil {
			continue
		}
		if prefix != "" && m[1] != prefix {
			continue
		}
		ext := strings.ToLower(m[3])
		if ext != "webp" && ext != "png" && ext != "jpg" && ext != "jpeg" {
			continue
		}
		key := m[1] + "\x00" + ext
		g, ok := groups[key]
		if !ok {
			g = &group{digits: len(m[2]), ext: m[3]}
			groups[key] = g
		}
		g.names = append(g.names, entry.Name())
		if info, err := entry.Info(); err == nil {
			g.bytes += info.Size()
		}
	}

	var (
		best    *group
		bestKey string
	)
	for key, g := range groups {
		if best == nil || len(g.names) > len(best.names) || (len(g.names) == len(best.names) && key < bestKey) {
			best, bestKey = g, key
		}
	}
	if best == nil {
		return SequenceInfo{}, fmt.Errorf("no numbered frames found in %s", dir)
	}

	sort.Slice(best.names, func(i, j int) bool {
		return frameNumber(best.names[i]) < frameNumber(best.names[j])
	})

	return SequenceInfo{
		Dir:    filepath.Clean(dir),
		Prefix: strings.SplitN(bestKey, "\x00", 2)[0],
		Digits: best.digits,
		Ext:    best.ext,
		Count:  len(best.names),
		Bytes:  best.bytes,
		First:  best.names[0],
		Last:   best.names[len(best.names)-1],
	}, nil
}

func frameNumber(name string) int {
	m := frameName.FindStringSubmatch(name)
	if m == nil {
		return -1
	}
	n, _ := strconv.Atoi(m[2])
	return n
}

// GetBestH264Encoder prefers hardware encoders that ffmpeg reports and falls
// back to libx264.
func GetBestH264Encoder() string {
	out, err := exec.Command("ffmpeg", "-hide_banner", "-encoders").CombinedOutput()
	if err != nil {
		return "libx264"
	}
	for _, name := range []string{"h264_videotoolbox", "h264_nvenc"} {
		if strings.Contains(string(out), name) {
			return name
		}
	}
	return "libx264"
}

// DefaultQuality is the quality value each encoder gets when none is set.
func DefaultQuality(encoder string) int {
	switch encoder {
	case "h264_videotoolbox":
		return 75
	case "h264_nvenc":
		return 28
	default:
		return 23
	}
}
