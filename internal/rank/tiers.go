// Package rank implements the pure XP/tier/streak computations consumed by
// profile and dashboard views. Nothing here performs I/O; every function is
// safe for concurrent callers.
package rank

import (
	"fmt"
	"math"
)

// Tier is a named XP bracket. MinXP and MaxXP are inclusive; the terminal
// tier carries MaxXP == math.MaxInt.
type Tier struct {
	Name   string `json:"name"`
	MinXP  int    `json:"min_xp"`
	MaxXP  int    `json:"max_xp"`
	Level  int    `json:"level"`
	Family string `json:"family"`
}

// Terminal reports whether no promotion exists beyond this tier.
func (t Tier) Terminal() bool {
	return t.MaxXP == math.MaxInt
}

// tiers is the fixed ladder. The thresholds are product behavior, not an
// implementation detail: changing any bound changes every user's displayed
// rank. Levels are contiguous from 1 and the brackets partition [0, +inf).
var tiers = []Tier{
	{Name: "Bronze I", MinXP: 0, MaxXP: 999, Level: 1, Family: "bronze"},
	{Name: "Bronze II", MinXP: 1000, MaxXP: 1999, Level: 2, Family: "bronze"},
	{Name: "Bronze III", MinXP: 2000, MaxXP: 2999, Level: 3, Family: "bronze"},

	{Name: "Prata I", MinXP: 3000, MaxXP: 4249, Level: 4, Family: "prata"},
	{Name: "Prata II", MinXP: 4250, MaxXP: 5499, Level: 5, Family: "prata"},
	{Name: "Prata III", MinXP: 5500, MaxXP: 6749, Level: 6, Family: "prata"},
	{Name: "Prata IV", MinXP: 6750, MaxXP: 7999, Level: 7, Family: "prata"},

	{Name: "Ouro I", MinXP: 8000, MaxXP: 9999, Level: 8, Family: "ouro"},
	{Name: "Ouro II", MinXP: 10000, MaxXP: 11999, Level: 9, Family: "ouro"},
	{Name: "Ouro III", MinXP: 12000, MaxXP: 13999, Level: 10, Family: "ouro"},
	{Name: "Ouro IV", MinXP: 14000, MaxXP: 15999, Level: 11, Family: "ouro"},

	{Name: "Platina I", MinXP: 16000, MaxXP: 19999, Level: 12, Family: "platina"},
	{Name: "Platina II", MinXP: 20000, MaxXP: 23999, Level: 13, Family: "platina"},
	{Name: "Platina III", MinXP: 24000, MaxXP: 27999, Level: 14, Family: "platina"},
	{Name: "Platina IV", MinXP: 28000, MaxXP: 31999, Level: 15, Family: "platina"},

	{Name: "Diamante I", MinXP: 32000, MaxXP: 39999, Level: 16, Family: "diamante"},
	{Name: "Diamante II", MinXP: 40000, MaxXP: 47999, Level: 17, Family: "diamante"},
	{Name: "Diamante III", MinXP: 48000, MaxXP: 55999, Level: 18, Family: "diamante"},
	{Name: "Diamante IV", MinXP: 56000, MaxXP: 63999, Level: 19, Family: "diamante"},

	{Name: "Mestre I", MinXP: 64000, MaxXP: math.MaxInt, Level: 20, Family: "mestre"},
}

func init() {
	if err := verifyLadder(tiers); err != nil {
		panic(err)
	}
}

// verifyLadder checks the partition invariant: contiguous levels from 1,
// gap-free adjacent brackets, strictly positive spans, unbounded final tier.
// A ladder violating it would make progress math divide by zero or skip XP
// values entirely, so a broken table must never be served.
func verifyLadder(ladder []Tier) error {
	if len(ladder) == 0 {
		return fmt.Errorf("rank: empty tier ladder")
	}
	if ladder[0].MinXP != 0 {
		return fmt.Errorf("rank: first tier must start at 0, got %d", ladder[0].MinXP)
	}
	if !ladder[len(ladder)-1].Terminal() {
		return fmt.Errorf("rank: final tier %q must be unbounded", ladder[len(ladder)-1].Name)
	}
	for i, t := range ladder {
		if t.Level != i+1 {
			return fmt.Errorf("rank: tier %q has level %d, want %d", t.Name, t.Level, i+1)
		}
		if t.MaxXP < t.MinXP {
			return fmt.Errorf("rank: tier %q has inverted bounds", t.Name)
		}
		if i+1 < len(ladder) && ladder[i+1].MinXP != t.MaxXP+1 {
			return fmt.Errorf("rank: gap between %q and %q", t.Name, ladder[i+1].Name)
		}
	}
	return nil
}

// Tiers returns a copy of the ladder in level order.
func Tiers() []Tier {
	out := make([]Tier, len(tiers))
	copy(out, tiers)
	return out
}

// TierForXP resolves an XP total to its tier. Total over all inputs:
// negative XP (which the data model should never produce) maps to the first
// tier, and anything at or above the final threshold maps to the terminal tier.
func TierForXP(xp int) Tier {
	if xp < 0 {
		return tiers[0]
	}
	for _, t := range tiers {
		if xp >= t.MinXP && xp <= t.MaxXP {
			return t
		}
	}
	return tiers[len(tiers)-1]
}
