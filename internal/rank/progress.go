package rank

// Progress describes how far an XP total has advanced through its current
// tier. Percent is clamped to [0, 100]; at the terminal tier Next is nil,
// Percent is 100 and XPNeeded is 0.
type Progress struct {
	Current  Tier    `json:"current"`
	Next     *Tier   `json:"next,omitempty"`
	Percent  float64 `json:"percent"`
	XPNeeded int     `json:"xp_needed"`
}

// ProgressToNext computes promotion progress for the given XP total.
//
// Within-tier percent is (xp - current.MinXP) / (next.MinXP - current.MinXP).
// The denominator is guaranteed positive by the ladder invariant checked at
// package init, so the division can never produce NaN or Inf.
func ProgressToNext(xp int) Progress {
	current := TierForXP(xp)
	if current.Terminal() {
		return Progress{Current: current, Percent: 100, XPNeeded: 0}
	}

	next := tiers[current.Level] // ladder index == level-1, so this is level+1

	span := next.MinXP - current.MinXP
	pct := float64(xp-current.MinXP) / float64(span) * 100
	if pct < 0 {
		pct = 0
	}
	if pct > 100 {
		pct = 100
	}

	needed := next.MinXP - xp
	if needed < 0 {
		needed = 0
	}

	return Progress{Current: current, Next: &next, Percent: pct, XPNeeded: needed}
}
