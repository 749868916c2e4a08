package antispoof

import "github.com/montanaflynn/stats"

// History is a fixed-capacity ring buffer of evidence. Pushing onto a full
// buffer evicts the oldest entry.
type History struct {
	buf   []Evidence
	start int
	n     int
}

// NewHistory creates an empty history holding at most capacity entries.
func NewHistory(capacity int) *History {
	if capacity < 1 {
		capacity = 1
	}
	return &History{buf: make([]Evidence, capacity)}
}

// Push appends ev, evicting the oldest entry when full.
func (h *History) Push(ev Evidence) {
	if h.n < len(h.buf) {
		h.buf[(h.start+h.n)%len(h.buf)] = ev
		h.n++
		return
	}
	h.buf[h.start] = ev
	h.start = (h.start + 1) % len(h.buf)
}

func (h *History) Len() int   { return h.n }
func (h *History) Cap() int   { return len(h.buf) }
func (h *History) Full() bool { return h.n == len(h.buf) }

// At returns the i-th entry, oldest first.
func (h *History) At(i int) Evidence {
	return h.buf[(h.start+i)%len(h.buf)]
}

// Last returns up to n most recent entries, oldest first.
func (h *History) Last(n int) []Evidence {
	if n > h.n {
		n = h.n
	}
	out := make([]Evidence, n)
	for i := 0; i < n; i++ {
		out[i] = h.At(h.n - n + i)
	}
	return out
}

// Confidences returns the confidence values, oldest first.
func (h *History) Confidences() []float64 {
	out := make([]float64, h.n)
	for i := 0; i < h.n; i++ {
		out[i] = h.At(i).Confidence
	}
	return out
}

// Variance is the population variance of the buffered confidences.
// Fewer than two samples report 0.
func (h *History) Variance() float64 {
	if h.n < 2 {
		return 0
	}
	v, err := stats.PopulationVariance(stats.Float64Data(h.Confidences()))
	if err != nil {
		return 0
	}
	return v
}

// Clear drops every entry.
func (h *History) Clear() {
	clear(h.buf)
	h.start = 0
	h.n = 0
}
