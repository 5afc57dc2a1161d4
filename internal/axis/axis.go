// Package axis implements the single-axis pattern language used by every
// temporal field of a Schedule: wildcard, literal, range, list, and step.
//
// A Pattern is a closed tagged variant: adding a new pattern family means
// touching both the parser and the matcher, so validation stays eager and
// matching stays total.
package axis

import (
	"fmt"
	"strconv"
	"strings"

	"cron-rs/internal/cronerr"
)

// Kind tags which variant a Pattern holds.
type Kind int

const (
	KindAny Kind = iota
	KindExact
	KindRange
	KindList
	KindStep
)

// Pattern is one matched axis value: Any, Exact(n), Range(lo,hi),
// List(set), or Step(period,phase). Only the fields relevant to Kind are
// populated.
type Pattern struct {
	Kind   Kind
	Exact  int
	Lo, Hi int
	Set    []int
	Period int
	Phase  int
	// StepBase is the domain minimum the Step kind's modulus is taken
	// relative to (set at parse time from Domain.Min). Classic-cron-style
	// */N stepping is conventionally relative to a field's minimum, not
	// to zero — this matters for month (1..12) and day (1..31), where a
	// raw "v % period" would misalign the step against the field's first
	// legal value.
	StepBase int
}

// Domain describes the legal value range (and, for day_of_week, the
// weekday-name vocabulary) of one temporal axis.
type Domain struct {
	Name     string
	Min, Max int
	Weekdays bool
}

var weekdayNames = [...]string{"mon", "tue", "wed", "thu", "fri", "sat", "sun"}

// Weekday axes map Mon=0..Sun=6.
var (
	DayOfWeek = Domain{Name: "day_of_week", Min: 0, Max: 6, Weekdays: true}
	Year      = Domain{Name: "year", Min: 0, Max: 9999}
	Month     = Domain{Name: "month", Min: 1, Max: 12}
	Day       = Domain{Name: "day", Min: 1, Max: 31}
	Hour      = Domain{Name: "hour", Min: 0, Max: 23}
	Minute    = Domain{Name: "minute", Min: 0, Max: 59}
	Second    = Domain{Name: "second", Min: 0, Max: 59}
)

// inRange reports whether v is within the domain's legal bounds.
func (d Domain) inRange(v int) bool {
	return v >= d.Min && v <= d.Max
}

// weekdayIndex resolves a case-insensitive three-letter weekday token to
// its 0..6 (Mon=0) index, or -1 if it is not a weekday token.
func weekdayIndex(tok string) int {
	low := strings.ToLower(tok)
	for i, name := range weekdayNames {
		if low == name {
			return i
		}
	}
	return -1
}

// parseLiteral parses a single integer-or-weekday-name token into its
// numeric value, validating it against the domain.
func parseLiteral(d Domain, tok string) (int, error) {
	if d.Weekdays {
		if idx := weekdayIndex(tok); idx >= 0 {
			return idx, nil
		}
	}
	n, err := strconv.Atoi(tok)
	if err != nil {
		if d.Weekdays {
			return 0, cronerr.New(cronerr.KindInvalidPattern,
				fmt.Sprintf("%q is not a valid %s literal (weekday name or integer expected)", tok, d.Name))
		}
		return 0, cronerr.New(cronerr.KindInvalidPattern,
			fmt.Sprintf("%q is not a valid %s literal", tok, d.Name))
	}
	if !d.inRange(n) {
		return 0, cronerr.New(cronerr.KindInvalidPattern,
			fmt.Sprintf("%d is out of range for axis %s (%d..%d)", n, d.Name, d.Min, d.Max))
	}
	return n, nil
}

// Parse parses one compact-form axis token against its domain.
//
//	*        -> Any
//	N        -> Exact(N)        (weekday name also accepted on day_of_week)
//	N..M     -> Range(N,M)      N<=M
//	[A,B,C]  -> List({A,B,C})   each element must be a literal
//	*/P      -> Step(P,0)
//	*/P+K    -> Step(P,K)       0<=K<P
func Parse(d Domain, token string) (Pattern, error) {
	token = strings.TrimSpace(token)
	if token == "" {
		return Pattern{}, cronerr.New(cronerr.KindInvalidPattern, "empty axis token for "+d.Name)
	}

	switch {
	case token == "*":
		return Pattern{Kind: KindAny}, nil

	case strings.HasPrefix(token, "*/"):
		return parseStep(d, token)

	case strings.HasPrefix(token, "[") && strings.HasSuffix(token, "]"):
		return parseList(d, token)

	case strings.Contains(token, ".."):
		return parseRange(d, token)

	default:
		n, err := parseLiteral(d, token)
		if err != nil {
			return Pattern{}, err
		}
		return Pattern{Kind: KindExact, Exact: n}, nil
	}
}

func parseStep(d Domain, token string) (Pattern, error) {
	body := token[2:] // strip "*/"
	periodStr, phaseStr, hasPhase := strings.Cut(body, "+")

	period, err := strconv.Atoi(periodStr)
	if err != nil || period < 1 {
		return Pattern{}, cronerr.New(cronerr.KindInvalidPattern,
			fmt.Sprintf("invalid step period %q for axis %s", periodStr, d.Name))
	}

	phase := 0
	if hasPhase {
		phase, err = strconv.Atoi(phaseStr)
		if err != nil || phase < 0 || phase >= period {
			return Pattern{}, cronerr.New(cronerr.KindInvalidPattern,
				fmt.Sprintf("invalid step phase %q for axis %s (0<=K<%d required)", phaseStr, d.Name, period))
		}
	}

	return Pattern{Kind: KindStep, Period: period, Phase: phase, StepBase: d.Min}, nil
}

func parseList(d Domain, token string) (Pattern, error) {
	inner := token[1 : len(token)-1]
	parts := strings.Split(inner, ",")
	set := make([]int, 0, len(parts))
	for _, p := range parts {
		n, err := parseLiteral(d, strings.TrimSpace(p))
		if err != nil {
			return Pattern{}, err
		}
		set = append(set, n)
	}
	if len(set) == 0 {
		return Pattern{}, cronerr.New(cronerr.KindInvalidPattern, "empty list for axis "+d.Name)
	}
	return Pattern{Kind: KindList, Set: set}, nil
}

func parseRange(d Domain, token string) (Pattern, error) {
	loStr, hiStr, ok := strings.Cut(token, "..")
	if !ok {
		return Pattern{}, cronerr.New(cronerr.KindInvalidPattern, "malformed range "+token)
	}
	lo, err := parseLiteral(d, loStr)
	if err != nil {
		return Pattern{}, err
	}
	hi, err := parseLiteral(d, hiStr)
	if err != nil {
		return Pattern{}, err
	}
	if lo > hi {
		return Pattern{}, cronerr.New(cronerr.KindInvalidPattern,
			fmt.Sprintf("range lo>hi in %s (%d > %d)", d.Name, lo, hi))
	}
	return Pattern{Kind: KindRange, Lo: lo, Hi: hi}, nil
}

// NewList builds a validated List pattern directly from already-resolved
// values — used by the detailed-form weekday-list shorthand in
// internal/schedule, which accepts a raw []string of weekday names instead
// of the bracketed compact-form token.
func NewList(d Domain, literals []string) (Pattern, error) {
	set := make([]int, 0, len(literals))
	for _, lit := range literals {
		n, err := parseLiteral(d, lit)
		if err != nil {
			return Pattern{}, err
		}
		set = append(set, n)
	}
	if len(set) == 0 {
		return Pattern{}, cronerr.New(cronerr.KindInvalidPattern, "empty list for axis "+d.Name)
	}
	return Pattern{Kind: KindList, Set: set}, nil
}

// Match evaluates the pattern against a concrete value. Every Kind has a
// total, unambiguous result — exactly one of the five branches fires.
func (p Pattern) Match(v int) bool {
	switch p.Kind {
	case KindAny:
		return true
	case KindExact:
		return v == p.Exact
	case KindRange:
		return v >= p.Lo && v <= p.Hi
	case KindList:
		for _, n := range p.Set {
			if n == v {
				return true
			}
		}
		return false
	case KindStep:
		rel := v - p.StepBase
		return ((rel%p.Period)+p.Period)%p.Period == p.Phase
	default:
		return false
	}
}

// Render renders p back to compact-form syntax, using weekday names for
// Exact/List patterns on a Weekdays domain (Mon, Tue, ...) instead of raw
// integers.
func (d Domain) Render(p Pattern) string {
	if !d.Weekdays {
		return p.String()
	}
	name := func(n int) string {
		if n < 0 || n >= len(weekdayNames) {
			return strconv.Itoa(n)
		}
		s := weekdayNames[n]
		return strings.ToUpper(s[:1]) + s[1:]
	}
	switch p.Kind {
	case KindExact:
		return name(p.Exact)
	case KindList:
		parts := make([]string, len(p.Set))
		for i, n := range p.Set {
			parts[i] = name(n)
		}
		return "[" + strings.Join(parts, ",") + "]"
	default:
		return p.String()
	}
}

// String renders the pattern back to compact-form token syntax. Round-trip
// is semantic, not byte-identical (e.g. List element order is preserved
// but not canonicalized).
func (p Pattern) String() string {
	switch p.Kind {
	case KindAny:
		return "*"
	case KindExact:
		return strconv.Itoa(p.Exact)
	case KindRange:
		return fmt.Sprintf("%d..%d", p.Lo, p.Hi)
	case KindList:
		parts := make([]string, len(p.Set))
		for i, n := range p.Set {
			parts[i] = strconv.Itoa(n)
		}
		return "[" + strings.Join(parts, ",") + "]"
	case KindStep:
		if p.Phase == 0 {
			return fmt.Sprintf("*/%d", p.Period)
		}
		return fmt.Sprintf("*/%d+%d", p.Period, p.Phase)
	default:
		return "*"
	}
}
