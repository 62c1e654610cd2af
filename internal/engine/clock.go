package engine

import (
	"fmt"
	"math"
	"strconv"
	"strings"

	"github.com/talgya/farmstead/internal/config"
	"github.com/talgya/farmstead/internal/persistence"
)

// Period is the part of the day used for lighting and scheduling.
type Period int

const (
	PeriodDay Period = iota
	PeriodDusk
	PeriodNight
)

func (p Period) String() string {
	switch p {
	case PeriodDay:
		return "day"
	case PeriodDusk:
		return "dusk"
	default:
		return "night"
	}
}

// Clock is the in-game calendar. Each Step is one engine tick, which
// advances the hour by 1/SecondsPerHour.
type Clock struct {
	cfg config.Clock

	Season   string
	Day      int     // 1..DaysPerSeason
	Hour     float64 // fractional hour of day, [0, 24)
	DayCount int     // days elapsed since a new game, starting at 1
}

// NewClock returns a clock at the configured start of a new game.
func NewClock(cfg config.Clock) *Clock {
	return &Clock{
		cfg:      cfg,
		Season:   cfg.StartSeason,
		Day:      cfg.StartDay,
		Hour:     float64(cfg.DayStart),
		DayCount: 1,
	}
}

// Step advances one tick. It reports whether the whole hour changed
// and whether a new day began; a new day has already been applied.
func (c *Clock) Step() (hourChanged, newDay bool) {
	before := int(c.Hour)
	// Rounded so repeated fractional steps land exactly on the hour.
	c.Hour = math.Round((c.Hour+1/c.cfg.SecondsPerHour)*1e6) / 1e6
	if c.Hour >= 24 {
		c.NextDay()
		return true, true
	}
	return int(c.Hour) != before, false
}

// NextDay moves to the start of the following day, rolling the season over
// after DaysPerSeason days.
func (c *Clock) NextDay() {
	c.Day++
	c.DayCount++
	c.Hour = float64(c.cfg.DayStart)
	if c.Day > c.cfg.DaysPerSeason {
		c.Day = 1
		c.Season = NextSeason(c.Season)
	}
}

// Period returns the current part of the day.
func (c *Clock) Period() Period {
	switch {
	case c.Hour >= float64(c.cfg.DayStart) && c.Hour < float64(c.cfg.DuskStart):
		return PeriodDay
	case c.Hour >= float64(c.cfg.DuskStart) && c.Hour < float64(c.cfg.NightStart):
		return PeriodDusk
	default:
		return PeriodNight
	}
}

// TimeString formats the hour as "HH:MM".
func (c *Clock) TimeString() string {
	// Epsilon absorbs float error accumulated by Step.
	total := int(math.Floor(c.Hour*60 + 1e-3))
	return fmt.Sprintf("%02d:%02d", total/60, total%60)
}

func (c *Clock) String() string {
	return fmt.Sprintf("%s Day %d, %s (%s)", c.Season, c.Day, c.TimeString(), c.Period())
}

// Sync loads the calendar from a stored player. A missing or malformed
// clock_time starts the day at DayStart.
func (c *Clock) Sync(p persistence.PlayerCore) {
	if p.CurrentSeason != "" {
		c.Season = p.CurrentSeason
	}
	if p.CurrentDay >= 1 {
		c.Day = min(p.CurrentDay, c.cfg.DaysPerSeason)
	}
	c.DayCount = max(p.DayCount, 1)
	if h, ok := ParseTime(p.CurrentTime); ok {
		c.Hour = h
	} else {
		c.Hour = float64(c.cfg.DayStart)
	}
}

// Stamp copies the calendar onto p.
func (c *Clock) Stamp(p *persistence.PlayerCore) {
	p.CurrentSeason = c.Season
	p.CurrentDay = c.Day
	p.CurrentTime = c.TimeString()
	p.DayCount = c.DayCount
}

// ParseTime parses "HH:MM" into a fractional hour.
func ParseTime(s string) (float64, bool) {
	hs, ms, ok := strings.Cut(strings.TrimSpace(s), ":")
	if !ok {
		return 0, false
	}
	h, err := strconv.Atoi(hs)
	if err != nil || h < 0 || h > 23 {
		return 0, false
	}
	m, err := strconv.Atoi(ms)
	if err != nil || m < 0 || m > 59 {
		return 0, false
	}
	return float64(h) + float64(m)/60, true
}
