package swift

import (
	"fmt"
	"strconv"
	"time"

	"fjacquet/ebics-mt940/internal/parsererror"
)

func isDigit(b byte) bool { return b >= '0' && b <= '9' }

func allDigits(s string) bool {
	if s == "" {
		return false
	}
	for i := 0; i < len(s); i++ {
		if !isDigit(s[i]) {
			return false
		}
	}
	return true
}

func daysIn(year int, month time.Month) int {
	return time.Date(year, month+1, 0, 0, 0, 0, 0, time.UTC).Day()
}

// parseYYMMDD reads a six digit date in the 2000s. When clampDay is set an
// impossible day (30 Feb) becomes the last day of that month.
func parseYYMMDD(tag, s string, clampDay bool) (time.Time, error) {
	if len(s) != 6 || !allDigits(s) {
		return time.Time{}, &parsererror.MalformedFieldError{Tag: tag, Value: s, Reason: "date must be YYMMDD"}
	}
	yy, _ := strconv.Atoi(s[0:2])
	mm, _ := strconv.Atoi(s[2:4])
	dd, _ := strconv.Atoi(s[4:6])

	year := 2000 + yy
	if mm < 1 || mm > 12 || dd < 1 {
		return time.Time{}, &parsererror.MalformedFieldError{Tag: tag, Value: s, Reason: "date out of range"}
	}
	if last := daysIn(year, time.Month(mm)); dd > last {
		if !clampDay {
			return time.Time{}, &parsererror.MalformedFieldError{
				Tag: tag, Value: s, Reason: fmt.Sprintf("day %d past end of month", dd),
			}
		}
		dd = last
	}
	return time.Date(year, time.Month(mm), dd, 0, 0, 0, 0, time.UTC), nil
}

// entryDate resolves an MMDD booking date against the value date, moving it
// into the neighbouring year when the two straddle a year end.
func entryDate(tag, mmdd string, value time.Time) (time.Time, error) {
	if len(mmdd) != 4 || !allDigits(mmdd) {
		return time.Time{}, &parsererror.MalformedFieldError{Tag: tag, Value: mmdd, Reason: "entry date must be MMDD"}
	}
	mm, _ := strconv.Atoi(mmdd[0:2])
	dd, _ := strconv.Atoi(mmdd[2:4])
	if mm < 1 || mm > 12 || dd < 1 {
		return time.Time{}, &parsererror.MalformedFieldError{Tag: tag, Value: mmdd, Reason: "entry date out of range"}
	}

	month := time.Month(mm)
	year := value.Year()
	firstOfMonth := time.Date(value.Year(), value.Month(), 1, 0, 0, 0, 0, time.UTC)
	switch {
	case month > value.Month() && month == firstOfMonth.AddDate(0, -1, 0).Month():
		year--
	case month < value.Month() && month == firstOfMonth.AddDate(0, 1, 0).Month():
		year++
	}

	if dd > daysIn(year, month) {
		return time.Time{}, &parsererror.MalformedFieldError{Tag: tag, Value: mmdd, Reason: "entry date past end of month"}
	}
	return time.Date(year, month, dd, 0, 0, 0, 0, time.UTC), nil
}
