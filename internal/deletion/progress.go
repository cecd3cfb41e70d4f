package deletion

import "math"

// Percent converts processed/total into a whole percentage in [0, 100].
// An empty tree is complete by definition.
func Percent(processed, total int) int {
	if total <= 0 {
		return 100
	}
	p := int(math.Round(float64(processed) / float64(total) * 100))
	if p < 0 {
		return 0
	}
	if p > 100 {
		return 100
	}
	return p
}

// Progress tracks item attempts of one operation against the scanned total
type Progress struct {
	total     int
	processed int
}

// NewProgress creates a tracker for total items
func NewProgress(total int) *Progress {
	return &Progress{total: total}
}

// Advance records one attempt, successful or not, and returns the new percentage
func (p *Progress) Advance() int {
	p.processed++
	return p.Percent()
}

func (p *Progress) Percent() int {
	return Percent(p.processed, p.total)
}

func (p *Progress) Processed() int {
	return p.processed
}

func (p *Progress) Total() int {
	return p.total
}
