package catalogdb

import "github.com/filmindex/filmindex/internal/stream"

// julianEpoch is the proleptic Gregorian date used as day zero: astronomical
// year -4713, November 24th. JulianDay and JulianDayToDate are inverses of
// this epoch, matching the day numbers stored in shows.date.
var julianEpoch = gregorianToDays(-4713, 11, 24)

// JulianDay converts a stream.Date to the integer number of days since the
// proleptic Gregorian epoch used by the catalog (astronomical year -4713,
// November 24th, i.e. 4714 BC), which yields standard Julian day numbers.
func JulianDay(d stream.Date) int64 {
	return gregorianToDays(d.Year, d.Month, d.Day) - julianEpoch
}

// JulianDayToDate is JulianDay's inverse.
func JulianDayToDate(jd int64) stream.Date {
	y, m, d := daysToGregorian(jd + julianEpoch)
	return stream.Date{Year: y, Month: m, Day: d}
}

// gregorianToDays converts a proleptic Gregorian calendar date to a day
// count using the standard algorithm (Fliegel & Van Flandern), valid for
// both positive and negative (BC) years.
func gregorianToDays(year, month, day int) int64 {
	a := int64((14 - month) / 12)
	y := int64(year) + 4800 - a
	m := int64(month) + 12*a - 3
	return int64(day) + (153*m+2)/5 + 365*y + y/4 - y/100 + y/400 - 32045
}

// daysToGregorian is gregorianToDays's inverse.
func daysToGregorian(jdn int64) (year, month, day int) {
	a := jdn + 32044
	b := (4*a + 3) / 146097
	c := a - (146097*b)/4
	d := (4*c + 3) / 1461
	e := c - (1461*d)/4
	m := (5*e + 2) / 153

	day = int(e - (153*m+2)/5 + 1)
	month = int(m + 3 - 12*(m/10))
	year = int(100*b + d - 4800 + m/10)
	return year, month, day
}
