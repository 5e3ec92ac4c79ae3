package validate

import (
	"fmt"

	"github.com/kstaniek/canforge/internal/ir"
)

// Schema runs the Layer-0 structural pass: primitive-range constraints on
// an already-parsed Spec (bit_length 1..64, dlc 1..64, start_bit >= 0).
// Type mismatches, missing required fields and unknown keys are caught
// earlier, by ir.Parse itself, since those require access to the raw
// document. Schema never mutates s and never short-circuits: every
// message and signal is checked regardless of earlier findings.
func Schema(s ir.Spec) Issues {
	var issues Issues
	for mi, m := range s.Messages {
		mpath := fmt.Sprintf("/messages/%d", mi)
		if m.DLC < 1 || m.DLC > 64 {
			issues = append(issues, Issue{
				Category: CategoryDLCOutOfRange,
				Path:     mpath + "/dlc",
				Message:  fmt.Sprintf("dlc %d out of range [1,64]", m.DLC),
			})
		}
		for si, sig := range m.Signals {
			spath := fmt.Sprintf("%s/signals/%d", mpath, si)
			if sig.BitLength < 1 || sig.BitLength > 64 {
				issues = append(issues, Issue{
					Category: CategoryBitLengthOutOfRange,
					Path:     spath + "/bit_length",
					Message:  fmt.Sprintf("bit_length %d out of range [1,64]", sig.BitLength),
				})
			}
			if sig.StartBit < 0 {
				issues = append(issues, Issue{
					Category: CategoryStartBitNegative,
					Path:     spath + "/start_bit",
					Message:  fmt.Sprintf("start_bit %d must be non-negative", sig.StartBit),
				})
			}
		}
	}
	return issues
}
