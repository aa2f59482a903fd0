package detect

import (
	"image"
	"sort"
)

// DefaultIoUThreshold is the overlap ratio above which two candidates are
// considered duplicates of the same object.
const DefaultIoUThreshold = 0.5

// IoU computes the intersection-over-union of two rectangles. Degenerate
// rectangles yield zero.
func IoU(a, b image.Rectangle) float64 {
	inter := a.Intersect(b)
	if inter.Empty() {
		return 0
	}
	interArea := float64(inter.Dx() * inter.Dy())
	union := float64(a.Dx()*a.Dy()) + float64(b.Dx()*b.Dy()) - interArea
	if union <= 0 {
		return 0
	}
	return interArea / union
}

// nonMaxSuppression keeps, in confidence-descending order, every candidate
// whose IoU with all previously kept candidates is below threshold. The sort
// is stable so ties keep their decode order.
func nonMaxSuppression(candidates []Candidate, threshold float64) []Candidate {
	if len(candidates) == 0 {
		return nil
	}

	sorted := make([]Candidate, len(candidates))
	copy(sorted, candidates)
	sort.SliceStable(sorted, func(i, j int) bool {
		return sorted[i].Confidence > sorted[j].Confidence
	})

	kept := make([]Candidate, 0, len(sorted))
	for _, c := range sorted {
		overlaps := false
		for _, k := range kept {
			if IoU(c.Box, k.Box) >= threshold {
				overlaps = true
				break
			}
		}
		if !overlaps {
			kept = append(kept, c)
		}
	}
	return kept
}
