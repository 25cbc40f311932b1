package models

import (
	"fmt"
	"time"
)

// ParseDateString parses a wall-clock date string from the feed into UTC,
// interpreting it in the property's timezone.
func ParseDateString(dateString string, timezone string) (time.Time, error) {

	// Parse the date string into a time.Time object
	localTime, err := time.Parse("2006-01-02T15:04:05", dateString)
	if err != nil {
		// Feeds also send bare dates.
		localTime, err = time.Parse("2006-01-02", dateString)
		if err != nil {
			fmt.Println("Error parsing date:", err)
			return time.Time{}, err
		}
	}

	if timezone == "" {
		timezone = "UTC"
	}

	// Load the location for the given timezone
	location, err := time.LoadLocation(timezone)
	if err != nil {
		fmt.Println("Error loading location:", err)
		return time.Time{}, err
	}

	// Convert the local time to the specified timezone
	localTimeInZone := time.Date(
		localTime.Year(), localTime.Month(), localTime.Day(),
		localTime.Hour(), localTime.Minute(), localTime.Second(), localTime.Nanosecond(),
		location,
	)

	// Convert the time to UTC
	return localTimeInZone.UTC(), nil
}

// SameDate compares two optional timestamps by calendar day in UTC.
func SameDate(a, b *time.Time) bool {
	if a == nil || b == nil {
		return a == b
	}
	au, bu := a.UTC(), b.UTC()
	return au.Year() == bu.Year() && au.YearDay() == bu.YearDay()
}
