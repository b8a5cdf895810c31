package model

import (
	"errors"
	"fmt"
	"math"
	"regexp"
	"strconv"
	"strings"
	"time"

	"github.com/robfig/cron/v3"
)

var cronParser = cron.NewParser(cron.Minute | cron.Hour | cron.Dom | cron.Month | cron.Dow | cron.Descriptor)

// ParseCron parses a five field cron expression or a descriptor such as
// @hourly and returns the shortest gap between consecutive activations.
func ParseCron(expr string) (time.Duration, error) {
	e := strings.TrimSpace(expr)
	if e == "" {
		return 0, errors.New("empty cron expression")
	}
	schedule, err := cronParser.Parse(e)
	if err != nil {
		return 0, fmt.Errorf("parsing cron %q: %w", e, err)
	}

	var interval time.Duration
	next := schedule.Next(time.Now())
	for range 4 {
		after := schedule.Next(next)
		if gap := after.Sub(next); interval == 0 || gap < interval {
			interval = gap
		}
		next = after
	}
	return interval, nil
}

var isoDurationRx = regexp.MustCompile(`^P(?:(?P<day>\d+)D)?(?:T(?:(?P<hour>\d+)H)?(?:(?P<minute>\d+)M)?(?:(?P<second>\d+(?:[.,]\d+)?)S)?)?$`)

var ErrISOFormat = errors.New("invalid ISO8601 duration")

// ParseISODuration parses the day and time part of an ISO 8601 duration,
// for example P1DT12H or PT0.5S. Years, months and weeks are not supported.
func ParseISODuration(dur string) (time.Duration, error) {
	match := isoDurationRx.FindStringSubmatch(dur)
	if match == nil || strings.HasSuffix(dur, "T") || dur == "P" {
		return 0, ErrISOFormat
	}

	units := map[string]time.Duration{
		"day":    24 * time.Hour,
		"hour":   time.Hour,
		"minute": time.Minute,
		"second": time.Second,
	}

	var ret time.Duration
	for i, name := range isoDurationRx.SubexpNames() {
		if name == "" || match[i] == "" {
			continue
		}
		num, frac, err := parseDecimal(match[i])
		if err != nil {
			return 0, err
		}
		unit := units[name]
		if num > int64(math.MaxInt64/unit) {
			return 0, fmt.Errorf("%w: %s overflows", ErrISOFormat, match[i])
		}
		ret += time.Duration(num)*unit + time.Duration(frac*float64(unit))
	}
	return ret, nil
}

func parseDecimal(s string) (num int64, frac float64, err error) {
	whole, fraction, ok := strings.Cut(strings.Replace(s, ",", ".", 1), ".")
	if ok {
		if len(fraction) > 9 {
			return 0, 0, ErrISOFormat
		}
		f, err := strconv.Atoi(fraction)
		if err != nil {
			return 0, 0, fmt.Errorf("parsing fraction: %w", err)
		}
		frac = float64(f) / math.Pow10(len(fraction))
	}
	num, err = strconv.ParseInt(whole, 10, 64)
	if err != nil {
		return 0, 0, fmt.Errorf("parsing number: %w", err)
	}
	return num, frac, nil
}
