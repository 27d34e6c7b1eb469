package fetch

import (
	"math"
	"regexp"
	"strconv"
)

var durationPattern = regexp.MustCompile(`^P(?:(\d+)D)?(?:T(?:(\d+)H)?(?:(\d+)M)?(?:(\d+)S)?)?$`)

// ParseDuration converts an ISO-8601 duration such as PT1H2M30S to minutes,
// rounded to two decimals. Anything it cannot read counts as 0.
func ParseDuration(duration string) float64 {
	m := durationPattern.FindStringSubmatch(duration)
	if m == nil {
		return 0
	}

	part := func(s string) float64 {
		if s == "" {
			return 0
		}
		n, err := strconv.Atoi(s)
		if err != nil {
			return 0
		}
		return float64(n)
	}
	minutes := part(m[1])*24*60 + part(m[2])*60 + part(m[3]) + part(m[4])/60

	return math.Round(minutes*100) / 100
}
