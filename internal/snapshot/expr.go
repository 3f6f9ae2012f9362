package snapshot

import (
	"math"
	"regexp"
	"strconv"
	"time"

	"github.com/pkg/errors"
)

// ErrInvalidExpression is returned for age expressions outside the
// minutes(n) | hours(n) | days(n) grammar.
var ErrInvalidExpression = errors.New("invalid age expression")

var agePattern = regexp.MustCompile(`^\s*(minutes|hours|days)\s*\(\s*(\d+)\s*\)\s*$`)

var ageUnits = map[string]time.Duration{
	"minutes": time.Minute,
	"hours":   time.Hour,
	"days":    24 * time.Hour,
}

// ParseAge evaluates an age expression such as "days(3)".
func ParseAge(expr string) (time.Duration, error) {
	m := agePattern.FindStringSubmatch(expr)
	if m == nil {
		return 0, errors.Wrapf(ErrInvalidExpression, "%q", expr)
	}
	n, err := strconv.ParseInt(m[2], 10, 64)
	if err != nil {
		return 0, errors.Wrapf(ErrInvalidExpression, "%q: %v", expr, err)
	}
	unit := ageUnits[m[1]]
	if n > math.MaxInt64/int64(unit) {
		return 0, errors.Wrapf(ErrInvalidExpression, "%q: out of range", expr)
	}
	return time.Duration(n) * unit, nil
}

// AgeMillis is ParseAge expressed in milliseconds.
func AgeMillis(expr string) (int64, error) {
	d, err := ParseAge(expr)
	if err != nil {
		return 0, err
	}
	return d.Milliseconds(), nil
}
