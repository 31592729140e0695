package config

import (
	"fmt"
	"strconv"
	"strings"

	"github.com/Ellipsis-Labs/cargo-hold/internal/cherr"
)

// sizeSuffixes maps a one-letter size suffix to its byte multiplier. Cargo
// and its ecosystem tools write sizes as "5G", "500M", "1024K" or a raw
// byte count with no suffix; this shape is hand-rolled against the standard
// library rather than grounded on a third-party sizes parser (see
// DESIGN.md).
var sizeSuffixes = map[byte]uint64{
	'K': 1 << 10,
	'M': 1 << 20,
	'G': 1 << 30,
	'T': 1 << 40,
}

// ParseSize parses a size string such as "5G", "500M", "1024K", or a bare
// byte count, into a byte count. An empty string parses to 0.
func ParseSize(s string) (uint64, error) {
	s = strings.TrimSpace(s)
	if s == "" {
		return 0, nil
	}
	last := s[len(s)-1]
	if mult, ok := sizeSuffixes[upperByte(last)]; ok {
		n, err := strconv.ParseUint(s[:len(s)-1], 10, 64)
		if err != nil {
			return 0, cherr.NewInvalidArgument(fmt.Sprintf("size %q: %v", s, err))
		}
		return n * mult, nil
	}
	n, err := strconv.ParseUint(s, 10, 64)
	if err != nil {
		return 0, cherr.NewInvalidArgument(fmt.Sprintf("size %q is neither a suffixed size nor a raw byte count", s))
	}
	return n, nil
}

func upperByte(b byte) byte {
	if b >= 'a' && b <= 'z' {
		return b - ('a' - 'A')
	}
	return b
}
