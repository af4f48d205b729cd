package origin

import (
	"regexp"
	"strings"
	"time"
	"unicode"

	"complaint_server/core/service/pattern"
)

var (
	parenthetical = regexp.MustCompile(`\([^)]*\)`)
	connectives   = regexp.MustCompile(`(?i)\s(?:at|um|a las|à|om|alle|às|de|del|den)\s`)
	ordinalDot    = regexp.MustCompile(`(\d)\.(\s)`)
	gluedMeridiem = regexp.MustCompile(`(?i)(\d)\s*(a\.?m\.?|p\.?m\.?)(\s|$)`)
)

// dateParser applies the library's prioritized grammars.
type dateParser struct {
	lib *pattern.Library
	loc *time.Location
	ref time.Time
}

var (
	englishMonths   = make(map[string]struct{})
	englishWeekdays = make(map[string]struct{})
)

func init() {
	for m := time.January; m <= time.December; m++ {
		englishMonths[strings.ToLower(m.String())] = struct{}{}
	}
	for d := time.Sunday; d <= time.Saturday; d++ {
		englishWeekdays[strings.ToLower(d.String())] = struct{}{}
	}
}

// normalize reduces a human date phrase to the shape the layouts expect. A
// trailing zone abbreviation is removed and returned as the location.
func (p *dateParser) normalize(s string) (string, *time.Location) {
	s = strings.ReplaceAll(s, "\u00a0", " ")
	s = parenthetical.ReplaceAllString(s, " ")
	s = strings.ReplaceAll(s, ",", " ")
	s = " " + s + " "
	// Applied twice so adjacent connectives sharing a space are both removed.
	s = connectives.ReplaceAllString(s, " ")
	s = connectives.ReplaceAllString(s, " ")
	s = ordinalDot.ReplaceAllString(s, "$1$2")
	s = gluedMeridiem.ReplaceAllStringFunc(s, func(m string) string {
		sub := gluedMeridiem.FindStringSubmatch(m)
		mer := "AM"
		if strings.HasPrefix(strings.ToLower(sub[2]), "p") {
			mer = "PM"
		}
		return sub[1] + " " + mer + sub[3]
	})
	s = strings.TrimSuffix(strings.TrimSpace(s), ".")

	loc := p.loc
	words := strings.Fields(s)
	out := make([]string, 0, len(words))
	var homonyms []int
	months := 0
	for _, w := range words {
		w = trimAbbrevDot(w)
		if off, ok := p.lib.ZoneOffset(w); ok {
			loc = time.FixedZone(w, off)
			continue
		}
		if p.lib.IsDateFiller(w) {
			continue
		}
		if _, ok := p.lib.WeekdayHomonym(w); ok {
			homonyms = append(homonyms, len(out))
		}
		if en, ok := p.lib.TranslateName(w); ok {
			w = en
		}
		lw := strings.ToLower(w)
		if _, ok := englishWeekdays[lw]; ok {
			continue
		}
		if _, ok := englishMonths[lw]; ok {
			months++
		}
		out = append(out, w)
	}

	// "mar 2 ene": another month present makes "mar" the weekday.
	if len(homonyms) > 0 && months > len(homonyms) {
		for i := len(homonyms) - 1; i >= 0; i-- {
			j := homonyms[i]
			out = append(out[:j], out[j+1:]...)
		}
	}
	return strings.Join(out, " "), loc
}

// trimAbbrevDot drops the dot of abbreviations like "Jan." or "Di.".
func trimAbbrevDot(w string) string {
	base := strings.TrimSuffix(w, ".")
	if base == w || base == "" {
		return w
	}
	for _, r := range base {
		if !unicode.IsLetter(r) {
			return w
		}
	}
	return base
}

// parse matches the whole phrase against the grammars in priority order.
// dayFirst picks the reading of dates like 03/04/2024.
func (p *dateParser) parse(raw string, dayFirst bool) (time.Time, bool) {
	s, loc := p.normalize(raw)
	if s == "" {
		return time.Time{}, false
	}
	return p.parseNormalized(s, loc, dayFirst)
}

func (p *dateParser) parseNormalized(s string, loc *time.Location, dayFirst bool) (time.Time, bool) {
	// Preferred field order first, then the other one.
	for _, preferred := range []bool{true, false} {
		for _, dl := range p.lib.DateLayouts() {
			if conflicts(dl.Order, dayFirst) == preferred {
				continue
			}
			var (
				t   time.Time
				err error
			)
			if strings.Contains(dl.Layout, "-0700") || strings.Contains(dl.Layout, "Z07:00") {
				t, err = time.Parse(dl.Layout, s)
			} else {
				t, err = time.ParseInLocation(dl.Layout, s, loc)
			}
			if err != nil {
				continue
			}
			if dl.TwoDigitYear {
				t = nearestCentury(t, p.ref)
			}
			return t.UTC(), true
		}
	}
	return time.Time{}, false
}

func conflicts(order pattern.DateOrder, dayFirst bool) bool {
	return (dayFirst && order == pattern.MonthFirst) || (!dayFirst && order == pattern.DayFirst)
}

// parseLeading parses the longest leading run of words that forms a date.
// Inline attributions carry names and addresses after the date phrase.
func (p *dateParser) parseLeading(raw string, dayFirst bool) (time.Time, bool) {
	s, loc := p.normalize(raw)
	words := strings.Fields(s)
	for n := len(words); n >= 2; n-- {
		if t, ok := p.parseNormalized(strings.Join(words[:n], " "), loc, dayFirst); ok {
			return t, true
		}
	}
	return time.Time{}, false
}

// nearestCentury moves a two-digit year into the century closest to ref.
// Ties resolve to the earlier century.
func nearestCentury(t, ref time.Time) time.Time {
	yy := t.Year() % 100
	base := ref.Year() - ref.Year()%100
	best := base - 100 + yy
	for _, cand := range []int{base + yy, base + 100 + yy} {
		if abs(cand-ref.Year()) < abs(best-ref.Year()) {
			best = cand
		}
	}
	return time.Date(best, t.Month(), t.Day(), t.Hour(), t.Minute(), t.Second(), t.Nanosecond(), t.Location())
}

func abs(n int) int {
	if n < 0 {
		return -n
	}
	return n
}
