package catalogdb

import (
	"testing"

	"github.com/filmindex/filmindex/internal/stream"
)

func TestJulianDayKnownValues(t *testing.T) {
	cases := []struct {
		date stream.Date
		want int64
	}{
		{stream.Date{Year: 2000, Month: 1, Day: 1}, 2451545},
		{stream.Date{Year: 1970, Month: 1, Day: 1}, 2440588},
		{stream.Date{Year: 1, Month: 1, Day: 1}, 1721426},
	}
	for _, c := range cases {
		if got := JulianDay(c.date); got != c.want {
			t.Fatalf("JulianDay(%+v) = %d, want %d", c.date, got, c.want)
		}
	}
}

func TestJulianDayRoundTrip(t *testing.T) {
	dates := []stream.Date{
		{Year: 2024, Month: 2, Day: 1},
		{Year: 1, Month: 1, Day: 1},
		{Year: 1999, Month: 12, Day: 31},
		{Year: 2100, Month: 3, Day: 15},
	}
	for _, d := range dates {
		jd := JulianDay(d)
		back := JulianDayToDate(jd)
		if back != d {
			t.Fatalf("round trip of %+v via jd=%d gave %+v", d, jd, back)
		}
	}
}
