package validate

import (
	"fmt"

	"github.com/kstaniek/canforge/internal/ir"
	"github.com/kstaniek/canforge/internal/layout"
)

// Semantic runs the Layer-1 cross-field pass: bit layout, ranges, overlap.
// It assumes s already passed Schema; it is pure and accumulates every
// issue rather than stopping at the first.
func Semantic(s ir.Spec) Issues {
	var issues Issues
	for mi, m := range s.Messages {
		mpath := fmt.Sprintf("/messages/%d", mi)
		limit := m.DLC * 8
		// owner tracks which signal first claimed a bit, for the
		// BIT_OVERLAP message naming the other signal.
		owner := map[int]string{}
		for si, sig := range m.Signals {
			spath := fmt.Sprintf("%s/signals/%d", mpath, si)
			if sig.BitLength < 1 || sig.BitLength > 64 {
				// Already reported by Schema; skip layout computation
				// rather than propagate a bogus derived range.
				continue
			}
			positions, err := layout.Positions(sig.StartBit, sig.BitLength, sig.ByteOrder)
			if err != nil {
				continue
			}

			for _, p := range positions {
				if p < 0 || p >= limit {
					issues = append(issues, Issue{
						Category: CategoryDLCOverflow,
						Path:     spath,
						Message:  fmt.Sprintf("signal %q occupies bit %d, outside [0,%d)", sig.Name, p, limit),
					})
					break // report the first out-of-range bit only
				}
			}

			// Cumulative per-message union: one BIT_OVERLAP issue per
			// distinct other signal this signal intersects, not one per
			// overlapping bit.
			overlapsWith := map[string]bool{}
			for _, p := range positions {
				if p < 0 || p >= limit {
					continue // already reported as DLC_OVERFLOW above
				}
				if other, ok := owner[p]; ok && other != sig.Name && !overlapsWith[other] {
					overlapsWith[other] = true
					issues = append(issues, Issue{
						Category: CategoryBitOverlap,
						Path:     spath,
						Message:  fmt.Sprintf("signal %q overlaps signal %q at bit %d", sig.Name, other, p),
					})
				}
				if _, ok := owner[p]; !ok {
					owner[p] = sig.Name
				}
			}

			if sig.Min != nil && sig.Max != nil && *sig.Min >= *sig.Max {
				issues = append(issues, Issue{
					Category: CategoryRangeInverted,
					Path:     spath,
					Message:  fmt.Sprintf("signal %q min %v >= max %v", sig.Name, *sig.Min, *sig.Max),
				})
			}

			if sig.Default != nil && sig.Min != nil && sig.Max != nil {
				d := float64(*sig.Default)
				if d < *sig.Min || d > *sig.Max {
					issues = append(issues, Issue{
						Category: CategoryDefaultOutOfRange,
						Path:     spath,
						Message:  fmt.Sprintf("signal %q default %d outside [%v,%v]", sig.Name, *sig.Default, *sig.Min, *sig.Max),
					})
				}
			}

			if sig.Scale == 0 {
				issues = append(issues, Issue{
					Category: CategoryScaleZero,
					Path:     spath,
					Message:  fmt.Sprintf("signal %q has scale 0", sig.Name),
				})
			}

			for ei, e := range sig.Enum {
				if !layout.Representable(sig.BitLength, sig.Signed, e.Value) {
					issues = append(issues, Issue{
						Category: CategoryEnumOutOfRange,
						Path:     fmt.Sprintf("%s/enum/%d", spath, ei),
						Message:  fmt.Sprintf("signal %q enum %q value %d not representable in %d-bit %s field", sig.Name, e.Name, e.Value, sig.BitLength, signedness(sig.Signed)),
					})
				}
			}
		}
	}
	return issues
}

func signedness(signed bool) string {
	if signed {
		return "signed"
	}
	return "unsigned"
}
