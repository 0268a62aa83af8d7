package util

import (
	"errors"
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/robfig/cron/v3"
)

// CronFieldCount is the number of fields in a recurrence expression:
// minute, hour, day-of-month, month, day-of-week.
const CronFieldCount = 5

// ErrInvalidSchedule is returned for recurrence expressions that cannot be scheduled.
var ErrInvalidSchedule = errors.New("invalid schedule expression")

var cronParser = cron.NewParser(cron.Minute | cron.Hour | cron.Dom | cron.Month | cron.Dow)

// CronParser returns the shared 5-field parser so cron.Cron instances parse
// exactly what ValidateCronExpr accepts.
func CronParser() cron.Parser {
	return cronParser
}

// CountCronFields returns the number of whitespace-separated fields in expr.
func CountCronFields(expr string) int {
	return len(strings.Fields(expr))
}

// NextCronTime calculates the next run time for a cron expression from a given start time.
// Returns the next occurrence after 'from' in UTC.
func NextCronTime(cronExpr string, from time.Time) (time.Time, error) {
	schedule, err := cronParser.Parse(cronExpr)
	if err != nil {
		return time.Time{}, fmt.Errorf("%w: %v", ErrInvalidSchedule, err)
	}
	return schedule.Next(from.UTC()), nil
}

// ValidateCronExpr checks that expr has exactly five fields and parses.
func ValidateCronExpr(cronExpr string) error {
	if n := CountCronFields(cronExpr); n != CronFieldCount {
		return fmt.Errorf("%w: expected %d fields, got %d", ErrInvalidSchedule, CronFieldCount, n)
	}
	if _, err := cronParser.Parse(cronExpr); err != nil {
		return fmt.Errorf("%w: %v", ErrInvalidSchedule, err)
	}
	return nil
}

// OffsetCronExpr returns parent shifted later by offsetMinutes.
//
// Only the minute and hour fields move. A minute overflow carries a single hour and
// an hour overflow wraps to 0 without touching the day-of-month, month or
// day-of-week fields, so "58 23 * * 1-5" becomes "3 0 * * 1-5". Both minute and
// hour must be plain integers.
func OffsetCronExpr(parent string, offsetMinutes int) (string, error) {
	fields := strings.Fields(parent)
	if len(fields) != CronFieldCount {
		return "", fmt.Errorf("%w: expected %d fields, got %d", ErrInvalidSchedule, CronFieldCount, len(fields))
	}

	minute, err := strconv.Atoi(fields[0])
	if err != nil {
		return "", fmt.Errorf("%w: minute field %q is not a number", ErrInvalidSchedule, fields[0])
	}
	hour, err := strconv.Atoi(fields[1])
	if err != nil {
		return "", fmt.Errorf("%w: hour field %q is not a number", ErrInvalidSchedule, fields[1])
	}

	minute += offsetMinutes
	if minute >= 60 {
		minute -= 60
		hour++
		if hour >= 24 {
			hour = 0
		}
	}

	return fmt.Sprintf("%d %d %s %s %s", minute, hour, fields[2], fields[3], fields[4]), nil
}
