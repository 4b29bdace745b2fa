package health

import (
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"

	"github.com/shirou/gopsutil/v3/disk"
)

// Output markers printed by the node-check agent
const (
	PassMarker = "PASS"
	FailMarker = "FAIL:"
)

// DirCheck is a directory and the minimum number of bytes it must offer
type DirCheck struct {
	Path     string
	MinBytes uint64
}

// String renders the check as "path:bytes", the agent's argument form
func (c DirCheck) String() string {
	return fmt.Sprintf("%s:%d", c.Path, c.MinBytes)
}

// ParseDirCheck parses "path" or "path:size"
func ParseDirCheck(s string) (DirCheck, error) {
	idx := strings.LastIndexByte(s, ':')
	if idx < 0 {
		return DirCheck{Path: s}, nil
	}
	size, err := ParseBytes(s[idx+1:])
	if err != nil {
		return DirCheck{}, fmt.Errorf("invalid size in %q: %w", s, err)
	}
	return DirCheck{Path: s[:idx], MinBytes: size}, nil
}

var byteUnits = []struct {
	suffix string
	mult   uint64
}{
	{"TIB", 1 << 40}, {"GIB", 1 << 30}, {"MIB", 1 << 20}, {"KIB", 1 << 10},
	{"TB", 1 << 40}, {"GB", 1 << 30}, {"MB", 1 << 20}, {"KB", 1 << 10},
	{"T", 1 << 40}, {"G", 1 << 30}, {"M", 1 << 20}, {"K", 1 << 10},
	{"B", 1},
}

// ParseBytes parses a byte count with an optional binary unit suffix, e.g. "10GB"
func ParseBytes(s string) (uint64, error) {
	text := strings.ToUpper(strings.TrimSpace(s))
	if text == "" {
		return 0, fmt.Errorf("empty size")
	}
	mult := uint64(1)
	for _, u := range byteUnits {
		if strings.HasSuffix(text, u.suffix) {
			text = strings.TrimSpace(strings.TrimSuffix(text, u.suffix))
			mult = u.mult
			break
		}
	}
	n, err := strconv.ParseFloat(text, 64)
	if err != nil || n < 0 {
		return 0, fmt.Errorf("invalid size %q", s)
	}
	return uint64(n * float64(mult)), nil
}

// diskUsage is replaced in tests
var diskUsage = func(path string) (total, free uint64, err error) {
	u, err := disk.Usage(path)
	if err != nil {
		return 0, 0, err
	}
	return u.Total, u.Free, nil
}

// CheckNode runs on the node being diagnosed. Each directory is created if
// missing, compared against its byte threshold (free bytes when useFree is
// set, total capacity otherwise) and tested for writability by creating and
// removing a marker file. It returns one message per failed check.
func CheckNode(checks []DirCheck, useFree bool) []string {
	var failures []string
	for _, c := range checks {
		if err := checkDir(c, useFree); err != nil {
			failures = append(failures, err.Error())
		}
	}
	return failures
}

func checkDir(c DirCheck, useFree bool) error {
	if c.Path == "" {
		return nil
	}
	if err := os.MkdirAll(c.Path, 0o700); err != nil {
		return fmt.Errorf("cannot create %s: %v", c.Path, err)
	}

	if c.MinBytes > 0 {
		total, free, err := diskUsage(c.Path)
		if err != nil {
			return fmt.Errorf("cannot stat %s: %v", c.Path, err)
		}
		have, kind := total, "total"
		if useFree {
			have, kind = free, "free"
		}
		if have < c.MinBytes {
			return fmt.Errorf("insufficient %s space in %s: have %d bytes, need %d", kind, c.Path, have, c.MinBytes)
		}
	}

	marker := filepath.Join(c.Path, fmt.Sprintf(".scrun-check-%d", os.Getpid()))
	if err := os.WriteFile(marker, []byte("ok"), 0o600); err != nil {
		return fmt.Errorf("cannot write to %s: %v", c.Path, err)
	}
	if err := os.Remove(marker); err != nil {
		return fmt.Errorf("cannot remove marker in %s: %v", c.Path, err)
	}
	return nil
}
