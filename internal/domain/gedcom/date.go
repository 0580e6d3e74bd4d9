package gedcom

import (
	"fmt"
	"regexp"
	"strconv"
	"strings"
)

// ─────────────────────────────────────────────────────────────────────────────
// Date model
// ─────────────────────────────────────────────────────────────────────────────

// Calendar identifies the calendar a date part is recorded in.  Dates carry
// an optional escape such as "@#DJULIAN@"; absent an escape the calendar is
// Gregorian.
type Calendar int

const (
	CalendarGregorian Calendar = iota
	CalendarJulian
)

// DateKind describes the qualifier structure of a GEDCOM date value.
type DateKind int

const (
	DateNone DateKind = iota // empty value
	DateExact
	DateAbout      // ABT
	DateCalculated // CAL
	DateEstimated  // EST
	DateBefore     // BEF
	DateAfter      // AFT
	DateBetween    // BET x AND y
	DateFrom       // FROM x
	DateTo         // TO x
	DateFromTo     // FROM x TO y
	DatePhrase     // free text; not comparable
)

// CalendarDate is a possibly partial calendar date.  Month and Day are zero
// when unknown ("JAN 1900", "1900").  Known separates "no year" from
// astronomical year 0, which is how "1 B.C." is stored.
type CalendarDate struct {
	Calendar Calendar `json:"calendar"`
	Year     int      `json:"year"`
	Month    int      `json:"month,omitempty"`
	Day      int      `json:"day,omitempty"`
	Known    bool     `json:"known,omitempty"`
}

// Date is a parsed GEDCOM date value.  From holds the single date or the
// lower endpoint; To holds the upper endpoint for BET/FROM..TO forms.  Text
// preserves the original value for phrase dates.
type Date struct {
	Kind DateKind     `json:"kind"`
	From CalendarDate `json:"from,omitempty"`
	To   CalendarDate `json:"to,omitempty"`
	Text string       `json:"text,omitempty"`
}

// IsZero reports whether the value was empty.
func (d Date) IsZero() bool {
	return d.Kind == DateNone
}

// Comparable reports whether the date maps onto the Julian-day axis.
func (d Date) Comparable() bool {
	return d.Kind != DateNone && d.Kind != DatePhrase
}

// Year returns the year of the single date or lower endpoint, 0 if unknown.
func (d Date) Year() int {
	return d.From.Year
}

// ─────────────────────────────────────────────────────────────────────────────
// Parsing
// ─────────────────────────────────────────────────────────────────────────────

var monthNumber = map[string]int{
	"JAN": 1, "FEB": 2, "MAR": 3, "APR": 4, "MAY": 5, "JUN": 6,
	"JUL": 7, "AUG": 8, "SEP": 9, "OCT": 10, "NOV": 11, "DEC": 12,
}

var monthName = [...]string{"", "JAN", "FEB", "MAR", "APR", "MAY", "JUN",
	"JUL", "AUG", "SEP", "OCT", "NOV", "DEC"}

var (
	reCalEscape = regexp.MustCompile(`^@#D([A-Z ]+)@\s*`)
	reYear      = regexp.MustCompile(`^(\d{1,4})(/\d{2})?$`)
	reYearBC    = regexp.MustCompile(`^(\d{1,4})\s*B\.?C\.?$`)
)

// ParseDate parses a GEDCOM date value.  Parsing is tolerant: values that do
// not match any structured form come back as a phrase date carrying the
// original text, so dirty real-world files never fail fact extraction.
func ParseDate(value string) Date {
	s := strings.TrimSpace(value)
	if s == "" {
		return Date{}
	}

	upper := strings.ToUpper(s)

	// Interpreted and phrase-only forms.
	if strings.HasPrefix(upper, "INT ") {
		rest := strings.TrimSpace(s[4:])
		if i := strings.Index(rest, "("); i >= 0 {
			rest = strings.TrimSpace(rest[:i])
		}
		if cd, ok := parseCalendarDate(rest); ok {
			return Date{Kind: DateExact, From: cd}
		}
		return Date{Kind: DatePhrase, Text: s}
	}
	if strings.HasPrefix(s, "(") && strings.HasSuffix(s, ")") {
		return Date{Kind: DatePhrase, Text: strings.TrimSpace(s[1 : len(s)-1])}
	}

	switch {
	case strings.HasPrefix(upper, "BET "):
		parts := strings.SplitN(upper[4:], " AND ", 2)
		if len(parts) == 2 {
			from, okF := parseCalendarDate(parts[0])
			to, okT := parseCalendarDate(parts[1])
			if okF && okT {
				return Date{Kind: DateBetween, From: from, To: to}
			}
		}
		return Date{Kind: DatePhrase, Text: s}

	case strings.HasPrefix(upper, "FROM "):
		rest := upper[5:]
		if i := strings.Index(rest, " TO "); i >= 0 {
			from, okF := parseCalendarDate(rest[:i])
			to, okT := parseCalendarDate(rest[i+4:])
			if okF && okT {
				return Date{Kind: DateFromTo, From: from, To: to}
			}
			return Date{Kind: DatePhrase, Text: s}
		}
		if from, ok := parseCalendarDate(rest); ok {
			return Date{Kind: DateFrom, From: from}
		}
		return Date{Kind: DatePhrase, Text: s}

	case strings.HasPrefix(upper, "TO "):
		if to, ok := parseCalendarDate(upper[3:]); ok {
			return Date{Kind: DateTo, From: to}
		}
		return Date{Kind: DatePhrase, Text: s}
	}

	kind := DateExact
	rest := upper
	for prefix, k := range map[string]DateKind{
		"ABT ": DateAbout,
		"CAL ": DateCalculated,
		"EST ": DateEstimated,
		"BEF ": DateBefore,
		"AFT ": DateAfter,
	} {
		if strings.HasPrefix(upper, prefix) {
			kind = k
			rest = upper[len(prefix):]
			break
		}
	}

	if cd, ok := parseCalendarDate(rest); ok {
		return Date{Kind: kind, From: cd}
	}
	return Date{Kind: DatePhrase, Text: s}
}

// parseCalendarDate parses "[escape] [day] [month] year" in any calendar the
// system converts to Julian days.
func parseCalendarDate(s string) (CalendarDate, bool) {
	s = strings.TrimSpace(s)
	cd := CalendarDate{Calendar: CalendarGregorian}

	if m := reCalEscape.FindStringSubmatch(s); m != nil {
		switch strings.TrimSpace(m[1]) {
		case "GREGORIAN":
			cd.Calendar = CalendarGregorian
		case "JULIAN":
			cd.Calendar = CalendarJulian
		default:
			// Hebrew, French Republican and friends are preserved as raw
			// GEDCOM but not mapped onto the Julian-day axis.
			return CalendarDate{}, false
		}
		s = s[len(m[0]):]
	}

	// "1728 B.C." style years;  1 BC is astronomical year 0.
	if m := reYearBC.FindStringSubmatch(s); m != nil {
		n, _ := strconv.Atoi(m[1])
		cd.Year = 1 - n
		cd.Known = true
		return cd, true
	}

	fields := strings.Fields(s)
	switch len(fields) {
	case 1:
		y, ok := parseYear(fields[0])
		if !ok {
			return CalendarDate{}, false
		}
		cd.Year = y

	case 2:
		m, ok := monthNumber[fields[0]]
		if !ok {
			return CalendarDate{}, false
		}
		y, ok := parseYear(fields[1])
		if !ok {
			return CalendarDate{}, false
		}
		cd.Month, cd.Year = m, y

	case 3:
		day, err := strconv.Atoi(fields[0])
		if err != nil || day < 1 || day > 31 {
			return CalendarDate{}, false
		}
		m, ok := monthNumber[fields[1]]
		if !ok {
			return CalendarDate{}, false
		}
		y, ok := parseYear(fields[2])
		if !ok {
			return CalendarDate{}, false
		}
		cd.Day, cd.Month, cd.Year = day, m, y

	default:
		return CalendarDate{}, false
	}
	cd.Known = true
	return cd, true
}

// parseYear accepts plain years and Old Style dual years ("1721/22"), using
// the first year of a dual form.
func parseYear(s string) (int, bool) {
	m := reYear.FindStringSubmatch(s)
	if m == nil {
		return 0, false
	}
	y, err := strconv.Atoi(m[1])
	if err != nil || y == 0 {
		return 0, false
	}
	return y, true
}

// ─────────────────────────────────────────────────────────────────────────────
// Julian-day conversion
// ─────────────────────────────────────────────────────────────────────────────

var daysInMonth = [...]int{0, 31, 28, 31, 30, 31, 30, 31, 31, 30, 31, 30, 31}

func isGregorianLeap(y int) bool {
	return y%4 == 0 && (y%100 != 0 || y%400 == 0)
}

func gregorianToJD(y, m, d int) int {
	a := (14 - m) / 12
	yy := y + 4800 - a
	mm := m + 12*a - 3
	return d + (153*mm+2)/5 + 365*yy + yy/4 - yy/100 + yy/400 - 32045
}

func julianToJD(y, m, d int) int {
	a := (14 - m) / 12
	yy := y + 4800 - a
	mm := m + 12*a - 3
	return d + (153*mm+2)/5 + 365*yy + yy/4 - 32083
}

func toJD(c Calendar, y, m, d int) int {
	if c == CalendarJulian {
		return julianToJD(y, m, d)
	}
	return gregorianToJD(y, m, d)
}

// JulianRange returns the earliest and latest Julian day the partial date
// covers.  "JAN 1900" spans the whole month, "1900" the whole year.
func (cd CalendarDate) JulianRange() (min, max int) {
	if !cd.Known {
		return 0, 0
	}
	fromM, toM := cd.Month, cd.Month
	if cd.Month == 0 {
		fromM, toM = 1, 12
	}
	fromD, toD := cd.Day, cd.Day
	if cd.Day == 0 {
		fromD = 1
		toD = daysInMonth[toM]
		if toM == 2 && cd.Calendar == CalendarGregorian && isGregorianLeap(cd.Year) {
			toD = 29
		}
		if toM == 2 && cd.Calendar == CalendarJulian && cd.Year%4 == 0 {
			toD = 29
		}
	}
	return toJD(cd.Calendar, cd.Year, fromM, fromD), toJD(cd.Calendar, cd.Year, toM, toD)
}

// JulianRange returns the Julian-day interval the date value covers.  Zero
// endpoints mean unbounded (BEF/AFT/FROM/TO) or unknown (phrase dates).
func (d Date) JulianRange() (min, max int) {
	switch d.Kind {
	case DateExact, DateAbout, DateCalculated, DateEstimated:
		return d.From.JulianRange()
	case DateBefore:
		lo, _ := d.From.JulianRange()
		return 0, lo - 1
	case DateAfter:
		_, hi := d.From.JulianRange()
		return hi + 1, 0
	case DateBetween, DateFromTo:
		lo, _ := d.From.JulianRange()
		_, hi := d.To.JulianRange()
		return lo, hi
	case DateFrom:
		lo, _ := d.From.JulianRange()
		return lo, 0
	case DateTo:
		_, hi := d.From.JulianRange()
		return 0, hi
	default:
		return 0, 0
	}
}

// SortKey projects the date onto a single sortable integer: the earliest
// covered Julian day, falling back to the latest for open-ended "before"
// dates.  Zero sorts first and means "no usable date".
func (d Date) SortKey() int {
	min, max := d.JulianRange()
	if min != 0 {
		return min
	}
	return max
}

// Compare orders two dates by SortKey; dates without a usable key sort first.
func Compare(a, b Date) int {
	ka, kb := a.SortKey(), b.SortKey()
	switch {
	case ka < kb:
		return -1
	case ka > kb:
		return 1
	default:
		return 0
	}
}

// ─────────────────────────────────────────────────────────────────────────────
// Formatting
// ─────────────────────────────────────────────────────────────────────────────

// String renders the date back to canonical GEDCOM form.  Phrase dates come
// back parenthesised; empty dates render as "".
func (d Date) String() string {
	switch d.Kind {
	case DateNone:
		return ""
	case DateExact:
		return d.From.String()
	case DateAbout:
		return "ABT " + d.From.String()
	case DateCalculated:
		return "CAL " + d.From.String()
	case DateEstimated:
		return "EST " + d.From.String()
	case DateBefore:
		return "BEF " + d.From.String()
	case DateAfter:
		return "AFT " + d.From.String()
	case DateBetween:
		return "BET " + d.From.String() + " AND " + d.To.String()
	case DateFrom:
		return "FROM " + d.From.String()
	case DateTo:
		return "TO " + d.From.String()
	case DateFromTo:
		return "FROM " + d.From.String() + " TO " + d.To.String()
	default:
		return "(" + d.Text + ")"
	}
}

// String renders the calendar date in GEDCOM form, with a calendar escape
// for non-Gregorian calendars.
func (cd CalendarDate) String() string {
	var b strings.Builder
	if cd.Calendar == CalendarJulian {
		b.WriteString("@#DJULIAN@ ")
	}
	if cd.Day != 0 {
		fmt.Fprintf(&b, "%d ", cd.Day)
	}
	if cd.Month >= 1 && cd.Month <= 12 {
		b.WriteString(monthName[cd.Month])
		b.WriteByte(' ')
	}
	if cd.Year <= 0 {
		fmt.Fprintf(&b, "%d B.C.", 1-cd.Year)
	} else {
		fmt.Fprintf(&b, "%d", cd.Year)
	}
	return b.String()
}
