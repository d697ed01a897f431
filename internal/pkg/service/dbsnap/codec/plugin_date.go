package codec

import (
	"fmt"
	"regexp"
	"strconv"
	"strings"
	"time"

	"github.com/keboola/dbsnap/internal/pkg/utils/errors"
)

// dateLayout is RFC 3339 without the year, see expandedYear.
const dateLayout = "-01-02T15:04:05.999999999Z07:00"

// DatePlugin encodes time.Time as an RFC 3339 string in UTC, with nanoseconds.
// Years outside 0000-9999 use the ISO 8601 expanded form with a sign and six digits, for example "+020000-01-01T00:00:00Z".
type DatePlugin struct{}

func (DatePlugin) Name() string {
	return "Date"
}

func (DatePlugin) Test(value any) bool {
	_, ok := value.(time.Time)
	return ok
}

func (DatePlugin) Encode(value any, _ Deferrer) (any, error) {
	t := value.(time.Time).UTC()
	if y := t.Year(); y >= 0 && y <= 9999 {
		return t.Format(time.RFC3339Nano), nil
	}
	return expandedYear(t.Year()) + t.Format(dateLayout), nil
}

func (DatePlugin) Decode(form any) (any, error) {
	str, ok := form.(string)
	if !ok {
		return nil, errors.Errorf(`expected a string, found "%T"`, form)
	}
	t, err := parseDate(str)
	if err != nil {
		return nil, errors.Errorf(`invalid date "%s"`, str)
	}
	return t.UTC(), nil
}

func expandedYear(year int) string {
	if year < 0 {
		return fmt.Sprintf("-%06d", -year)
	}
	return fmt.Sprintf("+%06d", year)
}

func parseDate(str string) (time.Time, error) {
	if !strings.HasPrefix(str, "+") && !strings.HasPrefix(str, "-") {
		return time.Parse(time.RFC3339Nano, str)
	}

	// Expanded year: sign, six digits, then the RFC 3339 rest
	if len(str) < 7 {
		return time.Time{}, errors.New("expanded year is too short")
	}
	year, err := strconv.Atoi(str[1:7])
	if err != nil {
		return time.Time{}, err
	}
	if str[0] == '-' {
		year = -year
	}

	// The rest is parsed within a leap year, so February 29 is accepted, and then validated below
	rest, err := time.Parse("2006"+dateLayout, "2000"+str[7:])
	if err != nil {
		return time.Time{}, err
	}
	t := time.Date(year, rest.Month(), rest.Day(), rest.Hour(), rest.Minute(), rest.Second(), rest.Nanosecond(), rest.Location())
	if t.Day() != rest.Day() {
		return time.Time{}, errors.Errorf("day %d is out of range", rest.Day())
	}
	return t, nil
}

// RegExpPlugin encodes a compiled regular expression by its source.
type RegExpPlugin struct{}

func (RegExpPlugin) Name() string {
	return "RegExp"
}

func (RegExpPlugin) Test(value any) bool {
	r, ok := value.(*regexp.Regexp)
	return ok && r != nil
}

func (RegExpPlugin) Encode(value any, _ Deferrer) (any, error) {
	return value.(*regexp.Regexp).String(), nil
}

func (RegExpPlugin) Decode(form any) (any, error) {
	str, ok := form.(string)
	if !ok {
		return nil, errors.Errorf(`expected a string, found "%T"`, form)
	}
	r, err := regexp.Compile(str)
	if err != nil {
		return nil, errors.Errorf(`invalid regular expression "%s"`, str)
	}
	return r, nil
}
