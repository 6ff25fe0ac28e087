package dsp

// PeakParams controls [PickPeaks]. Window sizes are in frames.
type PeakParams struct {
	PreMax  int
	PostMax int
	PreAvg  int
	PostAvg int
	Delta   float64
	Wait    int
}

// PickPeaks returns the indices of x that are local maxima in the window
// [n-PreMax, n+PostMax], exceed the mean of [n-PreAvg, n+PostAvg] by at least
// Delta, and lie more than Wait frames after the previously accepted peak.
// Windows are clamped at the ends of x.
func PickPeaks(x []float64, p PeakParams) []int {
	var peaks []int
	last := -p.Wait - 1
	for n := range x {
		if x[n] <= 0 {
			continue
		}
		lo, hi := clampWindow(n, p.PreMax, p.PostMax, len(x))
		isMax := true
		for i := lo; i < hi; i++ {
			if x[i] > x[n] {
				isMax = false
				break
			}
		}
		if !isMax {
			continue
		}
		lo, hi = clampWindow(n, p.PreAvg, p.PostAvg, len(x))
		var sum float64
		for i := lo; i < hi; i++ {
			sum += x[i]
		}
		if x[n] < sum/float64(hi-lo)+p.Delta {
			continue
		}
		if n-last <= p.Wait {
			continue
		}
		peaks = append(peaks, n)
		last = n
	}
	return peaks
}

func clampWindow(n, pre, post, size int) (lo, hi int) {
	lo = n - pre
	if lo < 0 {
		lo = 0
	}
	hi = n + post + 1
	if hi > size {
		hi = size
	}
	return lo, hi
}

// Backtrack moves every event index to the nearest preceding local minimum of
// energy. Events with no earlier minimum move to index 0. The result keeps the
// input order and may contain duplicates when two events share a minimum.
func Backtrack(events []int, energy []float64) []int {
	minima := LocalMinima(energy)
	out := make([]int, len(events))
	for k, ev := range events {
		best := 0
		for _, m := range minima {
			if m > ev {
				break
			}
			best = m
		}
		out[k] = best
	}
	return out
}

// LocalMaxima returns indices i where x[i] is strictly greater than its left
// neighbour and at least its right neighbour. End points count when they beat
// their single neighbour.
func LocalMaxima(x []float64) []int {
	var out []int
	for i := range x {
		left := i == 0 || x[i] > x[i-1]
		right := i == len(x)-1 || x[i] >= x[i+1]
		if left && right && len(x) > 1 {
			out = append(out, i)
		}
	}
	return out
}

// LocalMinima returns interior indices i where x[i] is at most its left
// neighbour and strictly below its right neighbour.
func LocalMinima(x []float64) []int {
	var out []int
	for i := 1; i+1 < len(x); i++ {
		if x[i] <= x[i-1] && x[i] < x[i+1] {
			out = append(out, i)
		}
	}
	return out
}
