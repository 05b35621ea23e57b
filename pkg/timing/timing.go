package timing

import (
	"bytes"
	"errors"
	"fmt"
	"strconv"
	"strings"
	"time"
)

// Format is the GNU time format string producing the report Parse accepts:
// elapsed wall clock time followed by peak resident set size in kilobytes.
const Format = "%E %M"

// maxFractionDigits is the precision fractional seconds are kept at.
const maxFractionDigits = 6

// ErrMalformedOutput is returned when the timing report does not match any
// accepted shape.
var ErrMalformedOutput = errors.New("malformed timing output")

// Usage is the resource usage reported for one process.
type Usage struct {
	Seconds          float64
	MaxResidentBytes int64
}

// Elapsed returns the wall clock time as a duration.
func (u Usage) Elapsed() time.Duration {
	return time.Duration(u.Seconds * float64(time.Second))
}

// Parse parses a timing report of the form "<elapsed> <max-resident-kb>".
// Accepted elapsed shapes are "H:MM:SS[.f]" and "MM:SS[.f]".
func Parse(text string) (Usage, error) {
	fields := strings.Fields(text)
	if len(fields) != 2 {
		return Usage{}, fmt.Errorf("%w: expected 2 fields, got %d in %q",
			ErrMalformedOutput, len(fields), text)
	}

	elapsed, err := parseElapsed(fields[0])
	if err != nil {
		return Usage{}, err
	}

	kb, err := strconv.ParseUint(fields[1], 10, 63)
	if err != nil {
		return Usage{}, fmt.Errorf("%w: invalid memory %q", ErrMalformedOutput, fields[1])
	}

	return Usage{
		Seconds:          elapsed.Seconds(),
		MaxResidentBytes: int64(kb) * 1024,
	}, nil
}

// LastLine returns the last non-empty line of a process's standard error.
// The timing wrapper writes its report after anything the measured process
// printed.
func LastLine(stderr []byte) string {
	lines := bytes.Split(bytes.TrimRight(stderr, "\r\n\t "), []byte("\n"))

	return strings.TrimSpace(string(lines[len(lines)-1]))
}

func parseElapsed(field string) (time.Duration, error) {
	parts := strings.Split(field, ":")

	var hoursPart, minutesPart, secondsPart string

	switch len(parts) {
	case 3:
		hoursPart, minutesPart, secondsPart = parts[0], parts[1], parts[2]
	case 2:
		minutesPart, secondsPart = parts[0], parts[1]
	default:
		return 0, fmt.Errorf("%w: invalid elapsed time %q", ErrMalformedOutput, field)
	}

	var hours uint64

	if len(parts) == 3 {
		h, err := parseNumber(hoursPart)
		if err != nil {
			return 0, fmt.Errorf("%w: invalid hours in %q", ErrMalformedOutput, field)
		}

		hours = h
	}

	minutes, err := parseNumber(minutesPart)
	if err != nil {
		return 0, fmt.Errorf("%w: invalid minutes in %q", ErrMalformedOutput, field)
	}

	wholePart, fractionPart, hasFraction := strings.Cut(secondsPart, ".")

	seconds, err := parseNumber(wholePart)
	if err != nil {
		return 0, fmt.Errorf("%w: invalid seconds in %q", ErrMalformedOutput, field)
	}

	var micros uint64

	if hasFraction {
		if len(fractionPart) > maxFractionDigits {
			fractionPart = fractionPart[:maxFractionDigits]
		}

		f, err := parseNumber(fractionPart)
		if err != nil {
			return 0, fmt.Errorf("%w: invalid fraction in %q", ErrMalformedOutput, field)
		}

		for i := len(fractionPart); i < maxFractionDigits; i++ {
			f *= 10
		}

		micros = f
	}

	return time.Duration(hours)*time.Hour +
		time.Duration(minutes)*time.Minute +
		time.Duration(seconds)*time.Second +
		time.Duration(micros)*time.Microsecond, nil
}

// parseNumber accepts only unsigned decimal digits.
func parseNumber(s string) (uint64, error) {
	if s == "" {
		return 0, fmt.Errorf("empty number")
	}

	for _, c := range s {
		if c < '0' || c > '9' {
			return 0, fmt.Errorf("invalid digit %q", c)
		}
	}

	return strconv.ParseUint(s, 10, 63)
}
