// Package showdate resolves the free-text show dates written by upstream
// ticketing imports into calendar dates.
//
// Parsing is an ordered chain of strategies; the first strategy that
// recognizes the text wins. New formats are added by appending a Strategy,
// callers only ever see Parser.Parse.
package showdate

import (
	"regexp"
	"strconv"
	"strings"
	"time"
)

// Strategy recognizes one family of date texts. now supplies the run clock
// for strategies that need to infer missing parts such as the year.
type Strategy interface {
	Parse(text string, now time.Time) (time.Time, bool)
}

// StrategyFunc adapts a function to the Strategy interface.
type StrategyFunc func(text string, now time.Time) (time.Time, bool)

func (f StrategyFunc) Parse(text string, now time.Time) (time.Time, bool) { return f(text, now) }

// Parser applies its strategies in order.
type Parser struct {
	strategies []Strategy
}

// NewParser builds a parser from strategies in priority order.
func NewParser(strategies ...Strategy) *Parser {
	return &Parser{strategies: strategies}
}

// DefaultParser handles every format seen in the venue collections.
func DefaultParser() *Parser {
	return NewParser(
		Layouts(
			"2006-1-2 3:04 PM",
			"2006-1-2 15:04",
			"2006-1-2",
			"1/2/2006",
			"January 2, 2006 3:04 PM",
			"January 2, 2006",
		),
		Yearless(
			"Monday January 2 3PM 2006",
			"Monday January 2 3:04PM 2006",
			"Monday January 2 3 PM 2006",
			"Monday January 2 3:04 PM 2006",
			"Mon Jan 2 3PM 2006",
			"Mon Jan 2 3:04PM 2006",
		),
	)
}

// Parse returns the calendar date (midnight UTC) of text, or false when no
// strategy recognizes it.
func (p *Parser) Parse(text string, now time.Time) (time.Time, bool) {
	text = normalize(text)
	if text == "" {
		return time.Time{}, false
	}
	for _, s := range p.strategies {
		if t, ok := s.Parse(text, now); ok {
			return Date(t), true
		}
	}
	return time.Time{}, false
}

// Date truncates t to its calendar date at midnight UTC.
func Date(t time.Time) time.Time {
	y, m, d := t.Date()
	return time.Date(y, m, d, 0, 0, 0, 0, time.UTC)
}

// Layouts tries Go reference layouts that carry an explicit year.
func Layouts(layouts ...string) Strategy {
	return StrategyFunc(func(text string, _ time.Time) (time.Time, bool) {
		return parseAny(text, layouts)
	})
}

var ordinalSuffix = regexp.MustCompile(`(?i)(\d)(st|nd|rd|th)\b`)

// Yearless handles texts like "Tuesday June 3rd 7PM": ordinal suffixes are
// stripped and the year of now is appended before trying layouts, which
// must therefore end in " 2006".
func Yearless(layouts ...string) Strategy {
	return StrategyFunc(func(text string, now time.Time) (time.Time, bool) {
		clean := StripOrdinals(text)
		return parseAny(clean+" "+strconv.Itoa(now.Year()), layouts)
	})
}

// StripOrdinals removes st/nd/rd/th when they directly follow a digit.
func StripOrdinals(text string) string {
	return ordinalSuffix.ReplaceAllString(text, "$1")
}

func parseAny(text string, layouts []string) (time.Time, bool) {
	for _, layout := range layouts {
		if t, err := time.Parse(layout, text); err == nil {
			return t, true
		}
	}
	return time.Time{}, false
}

// normalize collapses runs of whitespace and uppercases am/pm markers,
// which time.Parse only accepts in upper case.
func normalize(text string) string {
	fields := strings.Fields(text)
	for i, f := range fields {
		fields[i] = upperMeridiem(f)
	}
	return strings.Join(fields, " ")
}

func upperMeridiem(f string) string {
	lower := strings.ToLower(f)
	if strings.HasSuffix(lower, "am") || strings.HasSuffix(lower, "pm") {
		head := f[:len(f)-2]
		if head == "" || isDigit(head[len(head)-1]) {
			return head + strings.ToUpper(f[len(f)-2:])
		}
	}
	return f
}

func isDigit(b byte) bool { return b >= '0' && b <= '9' }
