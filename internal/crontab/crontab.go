// Package crontab converts classic 5-field crontab lines into the
// detailed Schedule form the rest of the program understands. It is a
// one-shot migration helper for the generate-from-crontab CLI command,
// not a scheduling engine: the converted tasks still run through the
// bespoke axis matcher, not through robfig/cron.
package crontab

import (
	"bufio"
	"fmt"
	"strconv"
	"strings"

	lru "github.com/hashicorp/golang-lru/v2"
	"github.com/robfig/cron/v3"

	"cron-rs/internal/cronerr"
	"cron-rs/internal/schedule"
)

// cacheSize bounds the conversion cache: large crontabs often repeat the
// same five-field expression across many lines (e.g. a fleet of jobs all
// firing hourly), so caching the Detailed conversion avoids re-deriving
// it every time.
const cacheSize = 256

// standardParser is used purely as a second opinion: if a line doesn't
// parse as a valid standard crontab expression, something is malformed
// beyond what our own field-by-field conversion would catch on its own.
var standardParser = cron.NewParser(cron.Minute | cron.Hour | cron.Dom | cron.Month | cron.Dow)

// Entry is one converted crontab line.
type Entry struct {
	Command string
	When    schedule.Detailed
}

// Converter parses crontab lines into Entry values, caching the
// five-field-expression-to-Detailed conversion.
type Converter struct {
	cache *lru.Cache[string, schedule.Detailed]
}

// NewConverter builds a Converter with a bounded conversion cache.
func NewConverter() (*Converter, error) {
	cache, err := lru.New[string, schedule.Detailed](cacheSize)
	if err != nil {
		return nil, fmt.Errorf("create conversion cache: %w", err)
	}
	return &Converter{cache: cache}, nil
}

// ParseFile reads crontab-style lines from src (blank lines, lines
// starting with '#', and VAR=value environment assignments are skipped)
// and converts each into an Entry.
func (c *Converter) ParseFile(src *bufio.Scanner) ([]Entry, error) {
	var entries []Entry
	lineNo := 0
	for src.Scan() {
		lineNo++
		line := strings.TrimSpace(src.Text())
		if line == "" || strings.HasPrefix(line, "#") {
			continue
		}
		if name, _, ok := strings.Cut(line, "="); ok && !strings.ContainsAny(strings.TrimSpace(name), " \t") {
			continue
		}
		entry, err := c.ParseLine(line)
		if err != nil {
			return nil, fmt.Errorf("line %d: %w", lineNo, err)
		}
		entries = append(entries, entry)
	}
	if err := src.Err(); err != nil {
		return nil, fmt.Errorf("read crontab: %w", err)
	}
	return entries, nil
}

// ParseLine converts a single "min hour dom month dow command..." line.
func (c *Converter) ParseLine(line string) (Entry, error) {
	fields := collapseLeadingWhitespaceFields(line)
	if len(fields) < 6 {
		return Entry{}, cronerr.New(cronerr.KindInvalidPattern,
			fmt.Sprintf("expected 5 schedule fields and a command, got %q", line))
	}

	exprFields := fields[:5]
	expr := strings.Join(exprFields, " ")
	command := fields[5]

	// robfig/cron's standard parser only accepts 0..6 on day-of-week, while
	// classic cron also accepts 7 for Sunday, so that alias is validated as
	// 0 (or as 6 at the top of a range); convertLiteral remaps it itself.
	dowParts := strings.Split(exprFields[4], ",")
	for i, p := range dowParts {
		if p == "7" {
			dowParts[i] = "0"
		} else if strings.HasSuffix(p, "-7") {
			dowParts[i] = strings.TrimSuffix(p, "-7") + "-6"
		}
	}
	validateExpr := strings.Join(append(append([]string{}, exprFields[:4]...), strings.Join(dowParts, ",")), " ")
	if _, err := standardParser.Parse(validateExpr); err != nil {
		return Entry{}, cronerr.Wrap(cronerr.KindInvalidPattern, "invalid crontab expression "+expr, err)
	}

	if cached, ok := c.cache.Get(expr); ok {
		return Entry{Command: command, When: cached}, nil
	}

	detailed, err := convertFields(exprFields)
	if err != nil {
		return Entry{}, err
	}
	c.cache.Add(expr, detailed)
	return Entry{Command: command, When: detailed}, nil
}

// collapseLeadingWhitespaceFields splits on runs of whitespace instead of
// single spaces, then rejoins everything past the fifth field as the raw
// command string (commands may themselves contain multiple spaces).
func collapseLeadingWhitespaceFields(line string) []string {
	parts := strings.Fields(line)
	if len(parts) < 6 {
		return parts
	}
	head := parts[:5]
	tail := strings.Join(parts[5:], " ")
	return append(append([]string{}, head...), tail)
}

func convertFields(fields []string) (schedule.Detailed, error) {
	minute, err := convertField(fields[0], false)
	if err != nil {
		return schedule.Detailed{}, err
	}
	hour, err := convertField(fields[1], false)
	if err != nil {
		return schedule.Detailed{}, err
	}
	day, err := convertField(fields[2], false)
	if err != nil {
		return schedule.Detailed{}, err
	}
	month, err := convertField(fields[3], false)
	if err != nil {
		return schedule.Detailed{}, err
	}
	dow, err := convertField(fields[4], true)
	if err != nil {
		return schedule.Detailed{}, err
	}

	return schedule.Detailed{
		DayOfWeek: dow,
		Month:     month,
		Day:       day,
		Hour:      hour,
		Minute:    minute,
		Second:    "0", // classic crontab has no seconds resolution
	}, nil
}

// convertField translates one classic cron field into our axis-token
// syntax. Classic cron and our compact grammar agree on "*" and "*/N";
// they diverge on ranges ("a-b" vs "a..b"), lists ("a,b" vs "[a,b]"), and
// — for day-of-week — on the numbering (cron: Sun=0..Sat=6, with 7 also
// meaning Sunday; ours: Mon=0..Sun=6).
//
// Mixed fields combining a list with ranges inside it (e.g. "1-5,10") are
// not supported: our axis List only holds literals. This is a deliberate
// scope limitation of the migration helper, not of the scheduler itself.
func convertField(field string, isDow bool) (string, error) {
	if field == "*" {
		return "*", nil
	}

	if strings.HasPrefix(field, "*/") {
		return field, nil
	}

	if strings.Contains(field, ",") {
		parts := strings.Split(field, ",")
		for _, p := range parts {
			if strings.Contains(p, "-") {
				return "", cronerr.New(cronerr.KindInvalidPattern,
					fmt.Sprintf("unsupported mixed list+range cron field %q", field))
			}
		}
		converted := make([]string, len(parts))
		for i, p := range parts {
			v, err := convertLiteral(p, isDow)
			if err != nil {
				return "", err
			}
			converted[i] = v
		}
		return "[" + strings.Join(converted, ",") + "]", nil
	}

	if strings.Contains(field, "-") {
		lo, hi, _ := strings.Cut(field, "-")
		loV, err := convertLiteral(lo, isDow)
		if err != nil {
			return "", err
		}
		hiV, err := convertLiteral(hi, isDow)
		if err != nil {
			return "", err
		}
		return loV + ".." + hiV, nil
	}

	return convertLiteral(field, isDow)
}

// convertLiteral converts one literal token, remapping cron's Sun=0..
// Sat=6 (0 or 7 both meaning Sunday) day-of-week numbering onto our
// Mon=0..Sun=6 numbering. Non-dow fields pass through unchanged.
func convertLiteral(tok string, isDow bool) (string, error) {
	if !isDow {
		return tok, nil
	}
	n, err := strconv.Atoi(tok)
	if err != nil {
		return "", cronerr.New(cronerr.KindInvalidPattern, "non-numeric day-of-week literal "+tok)
	}
	if n == 7 {
		n = 0
	}
	if n < 0 || n > 6 {
		return "", cronerr.New(cronerr.KindInvalidPattern, fmt.Sprintf("day-of-week %d out of range", n))
	}
	// cron Sun=0..Sat=6 -> ours Mon=0..Sun=6
	remapped := (n + 6) % 7
	return strconv.Itoa(remapped), nil
}
