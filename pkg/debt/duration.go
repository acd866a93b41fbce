package debt

import (
	"fmt"
	"strconv"
	"strings"
	"unicode"
)

// DefaultHoursInDay is the length of a work day.
const DefaultHoursInDay = 8

const minutesInHour = 60

// Durations encodes and decodes work durations such as "1d 2h 30min".
type Durations struct {
	HoursInDay int
}

// Decode parses a work duration into minutes.
func (d Durations) Decode(s string) (int64, error) {
	s = strings.TrimSpace(s)
	if s == "" {
		return 0, fmt.Errorf("%w: empty duration", ErrInvalidDuration)
	}

	hoursInDay := d.hoursInDay()

	var (
		total int64
		rest  = strings.ReplaceAll(s, " ", "")
	)

	for rest != "" {
		end := strings.IndexFunc(rest, func(r rune) bool { return !unicode.IsDigit(r) })
		if end <= 0 {
			return 0, fmt.Errorf("%w: %q", ErrInvalidDuration, s)
		}

		value, err := strconv.ParseInt(rest[:end], 10, 64)
		if err != nil {
			return 0, fmt.Errorf("%w: %q: %w", ErrInvalidDuration, s, err)
		}

		rest = rest[end:]

		unitEnd := strings.IndexFunc(rest, unicode.IsDigit)
		if unitEnd < 0 {
			unitEnd = len(rest)
		}

		switch rest[:unitEnd] {
		case "d":
			total += value * int64(hoursInDay) * minutesInHour
		case "h":
			total += value * minutesInHour
		case "min":
			total += value
		default:
			return 0, fmt.Errorf("%w: unknown unit in %q", ErrInvalidDuration, s)
		}

		rest = rest[unitEnd:]
	}

	return total, nil
}

// Encode renders minutes as a work duration, largest unit first.
func (d Durations) Encode(minutes int64) string {
	if minutes == 0 {
		return "0min"
	}

	perDay := int64(d.hoursInDay()) * minutesInHour
	parts := make([]string, 0, 3)

	if days := minutes / perDay; days > 0 {
		parts = append(parts, strconv.FormatInt(days, 10)+"d")
		minutes -= days * perDay
	}

	if hours := minutes / minutesInHour; hours > 0 {
		parts = append(parts, strconv.FormatInt(hours, 10)+"h")
		minutes -= hours * minutesInHour
	}

	if minutes > 0 {
		parts = append(parts, strconv.FormatInt(minutes, 10)+"min")
	}

	return strings.Join(parts, " ")
}

func (d Durations) hoursInDay() int {
	if d.HoursInDay <= 0 {
		return DefaultHoursInDay
	}

	return d.HoursInDay
}
