package memory

import (
	"fmt"
	"math"
	"strconv"
	"strings"

	"gopkg.in/yaml.v3"
)

// BufferCapacity is the maximum number of links a node keeps per remote node.
// Negative values mean unbounded.
type BufferCapacity int

// Unbounded never discards links.
const Unbounded BufferCapacity = -1

// IsUnbounded reports whether the capacity never triggers eviction.
func (b BufferCapacity) IsUnbounded() bool {
	return b < 0
}

func (b BufferCapacity) String() string {
	if b.IsUnbounded() {
		return "unbounded"
	}
	return strconv.Itoa(int(b))
}

// ParseBufferCapacity accepts a non-negative integer or one of
// "unbounded", "inf", ".inf", "infinity".
func ParseBufferCapacity(s string) (BufferCapacity, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "unbounded", "inf", ".inf", "+inf", "infinity":
		return Unbounded, nil
	}
	n, err := strconv.Atoi(strings.TrimSpace(s))
	if err != nil {
		return 0, fmt.Errorf("buffer capacity %q: expected a non-negative integer or \"unbounded\"", s)
	}
	if n < 0 {
		return 0, fmt.Errorf("buffer capacity must be non-negative, got %d", n)
	}
	return BufferCapacity(n), nil
}

// UnmarshalYAML implements yaml.Unmarshaler.
func (b *BufferCapacity) UnmarshalYAML(value *yaml.Node) error {
	if value.Kind != yaml.ScalarNode {
		return fmt.Errorf("line %d: buffer capacity must be a scalar", value.Line)
	}
	// YAML's own infinity literal decodes as a float.
	if f, err := strconv.ParseFloat(value.Value, 64); err == nil && math.IsInf(f, 1) {
		*b = Unbounded
		return nil
	}
	parsed, err := ParseBufferCapacity(value.Value)
	if err != nil {
		return fmt.Errorf("line %d: %w", value.Line, err)
	}
	*b = parsed
	return nil
}

// MarshalYAML implements yaml.Marshaler.
func (b BufferCapacity) MarshalYAML() (any, error) {
	if b.IsUnbounded() {
		return "unbounded", nil
	}
	return int(b), nil
}
