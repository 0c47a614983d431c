package indicator

// windowExtrema returns the indices whose value is the maximum (or minimum)
// of the symmetric window around them. Ties count as extrema; indices too
// close to either edge for a full window are skipped.
func windowExtrema(values []float64, window int, wantMax bool) []int {
	var out []int
	for i := window; i < len(values)-window; i++ {
		extremum := true
		for j := i - window; j <= i+window && extremum; j++ {
			if j == i {
				continue
			}
			if wantMax && values[j] > values[i] {
				extremum = false
			}
			if !wantMax && values[j] < values[i] {
				extremum = false
			}
		}
		if extremum {
			out = append(out, i)
		}
	}
	return out
}

// findPeaks returns indices of strict local maxima whose prominence is at
// least minProminence.
func findPeaks(values []float64, minProminence float64) []int {
	var peaks []int
	for i := 1; i < len(values)-1; i++ {
		if values[i] <= values[i-1] || values[i] <= values[i+1] {
			continue
		}
		if prominence(values, i) >= minProminence {
			peaks = append(peaks, i)
		}
	}
	return peaks
}

// prominence measures a peak against the higher of the two valley floors
// separating it from taller terrain (or the series edge).
func prominence(values []float64, peak int) float64 {
	left := values[peak]
	for j := peak - 1; j >= 0; j-- {
		if values[j] > values[peak] {
			break
		}
		if values[j] < left {
			left = values[j]
		}
	}
	right := values[peak]
	for j := peak + 1; j < len(values); j++ {
		if values[j] > values[peak] {
			break
		}
		if values[j] < right {
			right = values[j]
		}
	}
	base := left
	if right > base {
		base = right
	}
	return values[peak] - base
}

func negate(values []float64) []float64 {
	out := make([]float64, len(values))
	for i, v := range values {
		out[i] = -v
	}
	return out
}

// nearestIndex returns the candidate closest to target, or -1 when there are
// no candidates.
func nearestIndex(candidates []int, target int) int {
	best, bestDist := -1, 0
	for _, c := range candidates {
		d := c - target
		if d < 0 {
			d = -d
		}
		if best == -1 || d < bestDist {
			best, bestDist = c, d
		}
	}
	return best
}
