package rank

import (
	"sort"
	"time"
)

// day is a calendar date used as a map key; time.Time is unsuitable because
// of wall-clock and location fields.
type day struct {
	year  int
	month time.Month
	dom   int
}

func dayOf(t time.Time, loc *time.Location) day {
	y, m, d := t.In(loc).Date()
	return day{year: y, month: m, dom: d}
}

func (d day) prev(loc *time.Location) day {
	t := time.Date(d.year, d.month, d.dom, 12, 0, 0, 0, loc).AddDate(0, 0, -1)
	return dayOf(t, loc)
}

// Streak counts consecutive calendar days ending today with at least one
// activity. An activity today is required to keep the streak alive; there is
// no grace period.
func Streak(timestamps []time.Time) int {
	return StreakOn(time.Now(), timestamps)
}

// StreakOn is Streak with an explicit reference instant, which also fixes the
// location used for day boundaries. Duplicate same-day timestamps and
// unsorted input are both fine: only the set of distinct dates matters, so
// two calls with the same multiset of dates and the same reference always
// agree.
func StreakOn(today time.Time, timestamps []time.Time) int {
	if len(timestamps) == 0 {
		return 0
	}

	loc := today.Location()
	days := make(map[day]struct{}, len(timestamps))
	for _, ts := range timestamps {
		days[dayOf(ts, loc)] = struct{}{}
	}

	streak := 0
	for cursor := dayOf(today, loc); ; cursor = cursor.prev(loc) {
		if _, ok := days[cursor]; !ok {
			break
		}
		streak++
	}
	return streak
}

// LongestStreak returns the longest run of consecutive activity days anywhere
// in the history, regardless of whether it reaches today. Weekly reports
// surface it next to the live streak.
func LongestStreak(timestamps []time.Time) int {
	return LongestStreakIn(time.Local, timestamps)
}

// LongestStreakIn is LongestStreak with an explicit day-boundary location.
func LongestStreakIn(loc *time.Location, timestamps []time.Time) int {
	if len(timestamps) == 0 {
		return 0
	}

	seen := make(map[day]struct{}, len(timestamps))
	dates := make([]time.Time, 0, len(timestamps))
	for _, ts := range timestamps {
		d := dayOf(ts, loc)
		if _, ok := seen[d]; ok {
			continue
		}
		seen[d] = struct{}{}
		dates = append(dates, time.Date(d.year, d.month, d.dom, 0, 0, 0, 0, loc))
	}
	sort.Slice(dates, func(i, j int) bool { return dates[i].Before(dates[j]) })

	best, run := 1, 1
	for i := 1; i < len(dates); i++ {
		if dates[i-1].AddDate(0, 0, 1).Equal(dates[i]) {
			run++
		} else {
			run = 1
		}
		if run > best {
			best = run
		}
	}
	return best
}
