// Package align maps heterogeneous source forecast-hour sequences onto the
// canonical horizon grid by linear interpolation in time. Real model output
// is irregular (hourly near-term, then 3-hourly, then 12-hourly), so each
// target offset is interpolated from the two nearest native offsets that
// bracket it. Targets outside the native range are omitted, never
// extrapolated.
package align

import (
	"sort"
	"time"
)

// Sample is one native value at a lead-time offset from issuance.
type Sample struct {
	Offset time.Duration
	Value  float64
}

// Result holds the aligned series and the count of target offsets that fell
// outside the native range.
type Result struct {
	Points     []Sample
	OutOfRange int
}

// Interpolate aligns the native series onto the target offsets. The native
// slice is not modified. Output order follows the target order; identical
// inputs always produce identical outputs.
func Interpolate(native []Sample, targets []time.Duration) Result {
	if len(native) == 0 {
		return Result{OutOfRange: len(targets)}
	}

	sorted := make([]Sample, len(native))
	copy(sorted, native)
	sort.Slice(sorted, func(i, j int) bool { return sorted[i].Offset < sorted[j].Offset })

	var res Result
	for _, target := range targets {
		if target < sorted[0].Offset || target > sorted[len(sorted)-1].Offset {
			res.OutOfRange++
			continue
		}

		// First native offset >= target.
		i := sort.Search(len(sorted), func(i int) bool { return sorted[i].Offset >= target })
		if sorted[i].Offset == target {
			res.Points = append(res.Points, Sample{Offset: target, Value: sorted[i].Value})
			continue
		}

		lo, hi := sorted[i-1], sorted[i]
		frac := float64(target-lo.Offset) / float64(hi.Offset-lo.Offset)
		res.Points = append(res.Points, Sample{
			Offset: target,
			Value:  lo.Value + frac*(hi.Value-lo.Value),
		})
	}
	return res
}
