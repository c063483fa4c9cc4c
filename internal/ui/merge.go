// File: internal/ui/merge.go
package ui

// Merge deduplicates the two detector outputs into one candidate list.
//
// Structural candidates always survive, in detector order, because they carry
// a real handle for interaction. A vision candidate is discarded when its best
// IoU against any structural candidate reaches the threshold (the structural
// rectangle wins); otherwise it survives as a standalone virtual control,
// appended after the structural ones in detector order. With an empty
// structural list every vision candidate survives unchanged.
func Merge(structural, vision []Control, iouThreshold float64) []Control {
	merged := make([]Control, 0, len(structural)+len(vision))
	merged = append(merged, structural...)

	for _, v := range vision {
		duplicate := false
		for _, s := range structural {
			if IoU(s.Rect(), v.Rect()) >= iouThreshold {
				duplicate = true
				break
			}
		}
		if !duplicate {
			merged = append(merged, v)
		}
	}
	return merged
}
