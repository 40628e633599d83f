package result

// Progress tracks one direction of a transfer. A new percentage becomes
// visible only when it is 0, 100, or at least two points above the last
// visible value.
type Progress struct {
	Total       int
	Transferred int
	percent     int
	started     bool
	pending     bool
}

// Percent returns the last visible percentage, or -1 before the first.
func (p Progress) Percent() int {
	if !p.started {
		return -1
	}
	return p.percent
}

// update records transferred against total and reports whether the
// percentage crossed a visibility milestone.
func (p *Progress) update(transferred, total int) bool {
	p.Transferred = transferred
	p.Total = total
	if total <= 0 {
		return false
	}

	pct := transferred * 100 / total
	if p.started {
		if pct == p.percent {
			return false
		}
		if pct != 0 && pct != 100 && p.percent+2 > pct {
			return false
		}
	}

	p.percent = pct
	p.started = true
	p.pending = true
	return true
}

// take consumes the pending milestone.
func (p *Progress) take() bool {
	if !p.pending {
		return false
	}
	p.pending = false
	return true
}
