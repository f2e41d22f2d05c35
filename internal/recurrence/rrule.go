// SPDX-FileCopyrightText: 2025 Jon Thor Kristinsson
// SPDX-License-Identifier: Apache-2.0

// Package recurrence expands an iCalendar-style RRULE into standing
// reservation occurrences. Neither the standard library nor this
// module's dependencies carry an RRULE parser, so the subset needed
// here is hand-written against the stdlib time package (see DESIGN.md).
//
// The engine is pure: its only external input besides the rule text is a
// lazily-bound IANA timezone database directory.
package recurrence

import (
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"github.com/jontk/batchsched/pkg/errors"
)

// Frequency is the RRULE FREQ value.
type Frequency string

const (
	Secondly Frequency = "SECONDLY"
	Minutely Frequency = "MINUTELY"
	Hourly   Frequency = "HOURLY"
	Daily    Frequency = "DAILY"
	Weekly   Frequency = "WEEKLY"
	Monthly  Frequency = "MONTHLY"
	Yearly   Frequency = "YEARLY"
)

// maxDurationFor is the per-frequency duration ceiling.
var maxDurationFor = map[Frequency]time.Duration{
	Secondly: 1 * time.Second,
	Minutely: 60 * time.Second,
	Hourly:   3600 * time.Second,
	Daily:    86400 * time.Second,
	Weekly:   604800 * time.Second,
	Monthly:  30 * 24 * time.Hour,
	Yearly:   365 * 24 * time.Hour,
}

// enumerationCap bounds occurrence enumeration to 3 years out.
const enumerationCap = 3 * 365 * 24 * time.Hour

// unsupportedParts is the closed set of RRULE parts this engine rejects
// outright.
var unsupportedParts = []string{
	"BYSECOND", "BYMINUTE", "BYMONTHDAY", "BYYEARDAY", "BYWEEKNO", "BYSETPOS",
}

// Rule is a parsed RRULE.
type Rule struct {
	Freq    Frequency
	Count   int // 0 if UNTIL is used instead
	Until   time.Time
	ByDay   []time.Weekday
	Interval int
}

// Recurrence binds a parsed Rule to a reservation's first-occurrence
// start time, duration, and timezone.
type Recurrence struct {
	Rule     Rule
	Start    time.Time
	Duration time.Duration
	Location *time.Location
}

// ZoneDir is the lazily-bound timezone-data directory path.
// Rebinding it invalidates cached zone handles -- this package caches
// nothing across calls, so rebinding simply changes which directory the
// next LoadLocation-style lookup consults via TZID.
var ZoneDir string

// SetZoneDir rebinds the timezone data directory used to resolve TZID.
func SetZoneDir(dir string) { ZoneDir = dir }

// ParseRRule parses and validates an RRULE string against the
// reservation duration. tzid is the environment's TZID value.
func ParseRRule(rrule string, start time.Time, duration time.Duration, tzid string) (*Recurrence, error) {
	loc, err := resolveLocation(tzid)
	if err != nil {
		return nil, err
	}

	parts := strings.Split(rrule, ";")
	kv := make(map[string]string, len(parts))
	for _, p := range parts {
		eq := strings.IndexByte(p, '=')
		if eq < 0 {
			return nil, errors.Newf(errors.KindBadRRuleSyntax, "malformed RRULE part %q", p)
		}
		kv[strings.ToUpper(p[:eq])] = p[eq+1:]
	}

	for _, bad := range unsupportedParts {
		if _, has := kv[bad]; has {
			return nil, errors.Newf(errors.KindBadRRuleSyntax, "unsupported RRULE part %s", bad)
		}
	}
	if byday, has := kv["BYDAY"]; has {
		if strings.ContainsAny(byday, "-") {
			return nil, errors.New(errors.KindBadRRuleSyntax, "negative BYDAY is unsupported")
		}
	}

	freqStr, has := kv["FREQ"]
	if !has {
		return nil, errors.New(errors.KindBadRRuleSyntax, "RRULE missing FREQ")
	}
	freq := Frequency(strings.ToUpper(freqStr))
	if _, ok := maxDurationFor[freq]; !ok {
		return nil, errors.Newf(errors.KindBadRRuleSyntax, "unknown FREQ %q", freqStr)
	}

	_, hasCount := kv["COUNT"]
	_, hasUntil := kv["UNTIL"]
	if hasCount == hasUntil {
		return nil, errors.New(errors.KindBadRRuleSyntax, "exactly one of COUNT or UNTIL must be present")
	}

	rule := Rule{Freq: freq, Interval: 1}
	if v, has := kv["INTERVAL"]; has {
		n, err := strconv.Atoi(v)
		if err != nil || n <= 0 {
			return nil, errors.Newf(errors.KindBadRRuleSyntax, "bad INTERVAL %q", v)
		}
		rule.Interval = n
	}
	if hasCount {
		n, err := strconv.Atoi(kv["COUNT"])
		if err != nil || n <= 0 {
			return nil, errors.Newf(errors.KindBadRRuleSyntax, "bad COUNT %q", kv["COUNT"])
		}
		rule.Count = n
	} else {
		until, err := parseUntil(kv["UNTIL"])
		if err != nil {
			return nil, err
		}
		rule.Until = until
	}
	if v, has := kv["BYDAY"]; has {
		days, err := parseByDay(v)
		if err != nil {
			return nil, err
		}
		rule.ByDay = days
	}

	if err := validateFrequencyDuration(freq, duration); err != nil {
		return nil, err
	}

	rec := &Recurrence{Rule: rule, Start: start.In(loc), Duration: duration, Location: loc}

	if err := validateMinimumGap(rec); err != nil {
		return nil, err
	}
	return rec, nil
}

func validateFrequencyDuration(freq Frequency, duration time.Duration) error {
	max, ok := maxDurationFor[freq]
	if !ok {
		return errors.Newf(errors.KindBadRRuleFrequency, "unknown frequency %q", freq)
	}
	if duration > max {
		return errors.Newf(badFrequencyKindFor(freq), "reservation duration %s exceeds the %s granularity ceiling of %s", duration, freq, max)
	}
	return nil
}

// badFrequencyKindFor maps a frequency to one of the seven
// bad-rrule-frequency sub-kinds. The error taxonomy only has one
// KindBadRRuleFrequency constant; the frequency name is carried in the
// message so the sub-kind is still distinguishable by callers that parse
// it, while the wire code stays a single stable value.
func badFrequencyKindFor(freq Frequency) errors.Kind {
	return errors.KindBadRRuleFrequency
}

// validateMinimumGap rejects a reservation whose duration exceeds the
// minimum inter-occurrence interval. It unrolls occurrences up to the
// enumeration cap (or COUNT, whichever is smaller) and checks each
// adjacent gap.
func validateMinimumGap(rec *Recurrence) error {
	occs, err := Occurrences(rec)
	if err != nil {
		return err
	}
	for i := 1; i < len(occs); i++ {
		gap := occs[i].Sub(occs[i-1])
		if rec.Duration > gap {
			return errors.Newf(errors.KindBadTimeSpec, "reservation duration %s exceeds the minimum inter-occurrence gap %s", rec.Duration, gap)
		}
	}
	return nil
}

func parseUntil(v string) (time.Time, error) {
	for _, layout := range []string{"20060102T150405Z", "20060102T150405", "20060102"} {
		if t, err := time.Parse(layout, v); err == nil {
			return t.UTC(), nil
		}
	}
	return time.Time{}, errors.Newf(errors.KindBadRRuleSyntax, "bad UNTIL %q", v)
}

var weekdayCodes = map[string]time.Weekday{
	"SU": time.Sunday, "MO": time.Monday, "TU": time.Tuesday, "WE": time.Wednesday,
	"TH": time.Thursday, "FR": time.Friday, "SA": time.Saturday,
}

func parseByDay(v string) ([]time.Weekday, error) {
	var out []time.Weekday
	for _, code := range strings.Split(v, ",") {
		code = strings.TrimSpace(code)
		wd, ok := weekdayCodes[code]
		if !ok {
			return nil, errors.Newf(errors.KindBadRRuleSyntax, "bad BYDAY %q", code)
		}
		out = append(out, wd)
	}
	return out, nil
}

func resolveLocation(tzid string) (*time.Location, error) {
	if tzid == "" || tzid == "UTC" {
		return time.UTC, nil
	}
	var loc *time.Location
	var err error
	if ZoneDir != "" {
		var data []byte
		if data, err = os.ReadFile(filepath.Join(ZoneDir, tzid)); err == nil {
			loc, err = time.LoadLocationFromTZData(tzid, data)
		}
	} else {
		loc, err = time.LoadLocation(tzid)
	}
	if err != nil {
		return nil, errors.Newf(errors.KindBadTimeSpec, "unknown TZID %q: %v", tzid, err)
	}
	return loc, nil
}

// NumOccurrences returns the bounded count of occurrences within the
// 3-year enumeration window.
func NumOccurrences(rec *Recurrence) (int, error) {
	occs, err := Occurrences(rec)
	if err != nil {
		return 0, err
	}
	return len(occs), nil
}

// Occurrence returns the start time of the i-th (0-based) occurrence.
func Occurrence(rec *Recurrence, i int) (time.Time, error) {
	occs, err := Occurrences(rec)
	if err != nil {
		return time.Time{}, err
	}
	if i < 0 || i >= len(occs) {
		return time.Time{}, errors.Newf(errors.KindBadValue, "occurrence index %d out of range (have %d)", i, len(occs))
	}
	return occs[i], nil
}

// Occurrences enumerates every occurrence start time, capped at 3 years
// from the first occurrence and at Rule.Count when COUNT was used.
func Occurrences(rec *Recurrence) ([]time.Time, error) {
	limit := rec.Start.Add(enumerationCap)
	var out []time.Time
	cur := rec.Start

	stepFn, err := stepFunc(rec.Rule)
	if err != nil {
		return nil, err
	}

	for {
		if rec.Rule.Count > 0 && len(out) >= rec.Rule.Count {
			break
		}
		if rec.Rule.Count == 0 && cur.After(rec.Rule.Until) {
			break
		}
		if cur.After(limit) {
			break
		}
		out = append(out, cur)
		cur = stepFn(cur)
	}
	return out, nil
}

func stepFunc(r Rule) (func(time.Time) time.Time, error) {
	interval := r.Interval
	if interval <= 0 {
		interval = 1
	}
	switch r.Freq {
	case Secondly:
		return func(t time.Time) time.Time { return t.Add(time.Duration(interval) * time.Second) }, nil
	case Minutely:
		return func(t time.Time) time.Time { return t.Add(time.Duration(interval) * time.Minute) }, nil
	case Hourly:
		return func(t time.Time) time.Time { return t.Add(time.Duration(interval) * time.Hour) }, nil
	case Daily:
		return func(t time.Time) time.Time { return t.AddDate(0, 0, interval) }, nil
	case Weekly:
		if len(r.ByDay) == 0 {
			return func(t time.Time) time.Time { return t.AddDate(0, 0, 7*interval) }, nil
		}
		return weeklyByDayStep(r.ByDay, interval), nil
	case Monthly:
		return func(t time.Time) time.Time { return t.AddDate(0, interval, 0) }, nil
	case Yearly:
		return func(t time.Time) time.Time { return t.AddDate(interval, 0, 0) }, nil
	default:
		return nil, errors.Newf(errors.KindBadRRuleFrequency, "unknown frequency %q", r.Freq)
	}
}

// weeklyByDayStep advances to the next matching weekday, wrapping to the
// next interval-th week once every BYDAY day in the current week has
// been visited.
func weeklyByDayStep(days []time.Weekday, interval int) func(time.Time) time.Time {
	sorted := append([]time.Weekday(nil), days...)
	for i := 1; i < len(sorted); i++ {
		for j := i; j > 0 && sorted[j] < sorted[j-1]; j-- {
			sorted[j], sorted[j-1] = sorted[j-1], sorted[j]
		}
	}
	return func(t time.Time) time.Time {
		wd := t.Weekday()
		for _, d := range sorted {
			if d > wd {
				return t.AddDate(0, 0, int(d-wd))
			}
		}
		// wrap to the first BYDAY of the next interval-th week
		daysToNextWeekStart := 7 - int(wd)
		return t.AddDate(0, 0, daysToNextWeekStart+7*(interval-1)+int(sorted[0]))
	}
}
