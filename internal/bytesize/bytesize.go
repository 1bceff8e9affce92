package bytesize

import (
	"fmt"
	"strconv"
	"strings"
)

// ByteSize represents a size in bytes that can be unmarshaled from
// human-readable strings such as "1Gi", "500Mi", "100MB", or a plain number.
//
// Supported formats:
//   - Plain numbers: 1024, 1073741824
//   - Binary units (×1024): Ki/KiB, Mi/MiB, Gi/GiB, Ti/TiB
//   - Decimal units (×1000): K/KB, M/MB, G/GB, T/TB
//   - Bytes: B
type ByteSize uint64

// Common byte size constants.
const (
	B  ByteSize = 1
	KB ByteSize = 1000
	MB ByteSize = 1000 * KB
	GB ByteSize = 1000 * MB
	TB ByteSize = 1000 * GB

	KiB ByteSize = 1024
	MiB ByteSize = 1024 * KiB
	GiB ByteSize = 1024 * MiB
	TiB ByteSize = 1024 * GiB
)

// unitGroup associates one or more case-insensitive suffixes with a
// multiplier; building the lookup table this way keeps the binary/decimal
// unit families next to each other instead of as one flat literal map.
type unitGroup struct {
	mult     ByteSize
	suffixes []string
}

var unitGroups = []unitGroup{
	{B, []string{"", "b"}},
	{KB, []string{"k", "kb"}},
	{MB, []string{"m", "mb"}},
	{GB, []string{"g", "gb"}},
	{TB, []string{"t", "tb"}},
	{KiB, []string{"ki", "kib"}},
	{MiB, []string{"mi", "mib"}},
	{GiB, []string{"gi", "gib"}},
	{TiB, []string{"ti", "tib"}},
}

var unitMultipliers = func() map[string]ByteSize {
	t := make(map[string]ByteSize)
	for _, g := range unitGroups {
		for _, suf := range g.suffixes {
			t[suf] = g.mult
		}
	}
	return t
}()

// ParseByteSize parses a human-readable byte size string into a ByteSize
// value. It accepts formats like "1Gi", "500Mi", "100MB", "1024", etc.
func ParseByteSize(s string) (ByteSize, error) {
	trimmed := strings.TrimSpace(s)
	if trimmed == "" {
		return 0, fmt.Errorf("bytesize: empty size string")
	}

	i := 0
	for i < len(trimmed) && (isASCIIDigit(trimmed[i]) || trimmed[i] == '.') {
		i++
	}
	if i == 0 {
		return 0, fmt.Errorf("bytesize: no numeric value in %q", s)
	}

	numStr := trimmed[:i]
	unit := strings.ToLower(strings.TrimSpace(trimmed[i:]))

	multiplier, ok := unitMultipliers[unit]
	if !ok {
		return 0, fmt.Errorf("bytesize: unknown unit %q in %q", unit, s)
	}

	if strings.Contains(numStr, ".") {
		f, err := strconv.ParseFloat(numStr, 64)
		if err != nil {
			return 0, fmt.Errorf("bytesize: invalid number %q: %w", numStr, err)
		}
		return ByteSize(f * float64(multiplier)), nil
	}

	n, err := strconv.ParseUint(numStr, 10, 64)
	if err != nil {
		return 0, fmt.Errorf("bytesize: invalid number %q: %w", numStr, err)
	}
	return ByteSize(n) * multiplier, nil
}

func isASCIIDigit(c byte) bool {
	return c >= '0' && c <= '9'
}

// UnmarshalText implements encoding.TextUnmarshaler for ByteSize, so it can
// be decoded directly from config values via mapstructure/viper.
func (b *ByteSize) UnmarshalText(text []byte) error {
	size, err := ParseByteSize(string(text))
	if err != nil {
		return err
	}
	*b = size
	return nil
}

// binaryUnit is one step of the descending-threshold table String uses to
// pick the largest binary unit that still reads as >= 1.00.
type binaryUnit struct {
	threshold ByteSize
	suffix    string
}

var binaryUnits = []binaryUnit{
	{TiB, "TiB"},
	{GiB, "GiB"},
	{MiB, "MiB"},
	{KiB, "KiB"},
}

// String returns a human-readable representation of the byte size.
func (b ByteSize) String() string {
	for _, u := range binaryUnits {
		if b >= u.threshold {
			return fmt.Sprintf("%.2f%s", float64(b)/float64(u.threshold), u.suffix)
		}
	}
	return fmt.Sprintf("%dB", uint64(b))
}

// Uint64 returns the ByteSize as a uint64.
func (b ByteSize) Uint64() uint64 {
	return uint64(b)
}

// Int64 returns the ByteSize as an int64. May overflow for very large values.
func (b ByteSize) Int64() int64 {
	return int64(b)
}
