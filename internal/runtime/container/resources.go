package container

import (
	"math"
	"strconv"
	"strings"

	"github.com/forgehook/forgehostd/internal/forgehosterr"
)

// ParseMemory converts a manifest memory string ("<int>[m|g]") into bytes
// per spec.md §4.2.
func ParseMemory(s string) (int64, error) {
	if s == "" {
		return 0, nil
	}
	s = strings.TrimSpace(strings.ToLower(s))
	var mult int64 = 1
	switch {
	case strings.HasSuffix(s, "g"):
		mult = 1024 * 1024 * 1024
		s = strings.TrimSuffix(s, "g")
	case strings.HasSuffix(s, "m"):
		mult = 1024 * 1024
		s = strings.TrimSuffix(s, "m")
	}
	n, err := strconv.ParseInt(s, 10, 64)
	if err != nil {
		return 0, forgehosterr.Wrap(forgehosterr.CodeValidation, err)
	}
	return n * mult, nil
}

// ParseCPU converts a manifest cpu string ("<float>") into CPU-nanoseconds
// (floor(n*1e9)) per spec.md §4.2.
func ParseCPU(s string) (int64, error) {
	if s == "" {
		return 0, nil
	}
	n, err := strconv.ParseFloat(strings.TrimSpace(s), 64)
	if err != nil {
		return 0, forgehosterr.Wrap(forgehosterr.CodeValidation, err)
	}
	return int64(math.Floor(n * 1e9)), nil
}
