// Package validate implements the two-layer IR validator: Layer-0 checks
// structural/typing invariants, Layer-1 checks cross-field semantic
// invariants (bit layout, ranges, overlap). Both passes are pure: they
// take a Spec and return a list of issues, never mutating the input, and
// never short-circuit on the first problem.
package validate

import "fmt"

// Category is one of the closed set of issue kinds the two validation
// layers emit.
type Category string

const (
	CategoryDLCOverflow         Category = "DLC_OVERFLOW"
	CategoryBitOverlap          Category = "BIT_OVERLAP"
	CategoryRangeInverted       Category = "RANGE_INVERTED"
	CategoryDefaultOutOfRange   Category = "DEFAULT_OUT_OF_RANGE"
	CategoryScaleZero           Category = "SCALE_ZERO"
	CategoryEnumOutOfRange      Category = "ENUM_OUT_OF_RANGE"
	CategoryBitLengthOutOfRange Category = "BIT_LENGTH_OUT_OF_RANGE"
	CategoryDLCOutOfRange       Category = "DLC_OUT_OF_RANGE"
	CategoryStartBitNegative    Category = "START_BIT_NEGATIVE"
)

// Issue is one validator finding: a category, a JSON-pointer-style path,
// and a human-readable message.
type Issue struct {
	Category Category
	Path     string
	Message  string
}

func (i Issue) String() string {
	return fmt.Sprintf("%s at %s: %s", i.Category, i.Path, i.Message)
}

// Issues is a batch of findings from one validation pass.
type Issues []Issue

// Empty reports whether no issues were found (the pass succeeded).
func (is Issues) Empty() bool { return len(is) == 0 }
