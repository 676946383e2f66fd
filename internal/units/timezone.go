package units

import (
	"fmt"
	"strconv"
	"strings"
	"time"
)

// DeviceTimezone selects the fixed offset recorded in info.txt.
const DeviceTimezone = "device"

// IsTimezoneValid checks if the given timezone is valid by attempting to load it from the tz database
// This validates against the actual system tz database rather than a hardcoded list
func IsTimezoneValid(tz string) bool {
	if tz == "" {
		return false
	}
	_, err := time.LoadLocation(tz)
	return err == nil
}

// ConvertTime converts a UTC time to the specified timezone
func ConvertTime(utcTime time.Time, targetTimezone string) (time.Time, error) {
	if targetTimezone == "UTC" {
		return utcTime, nil
	}

	loc, err := time.LoadLocation(targetTimezone)
	if err != nil {
		return utcTime, fmt.Errorf("failed to load timezone %s: %w", targetTimezone, err)
	}
	return utcTime.In(loc), nil
}

// ParseUTCOffset parses a device offset such as "-05:00:00", "+01:00" or
// "05:30" into a fixed zone.
func ParseUTCOffset(s string) (*time.Location, error) {
	s = strings.TrimSpace(s)
	if s == "" {
		return nil, fmt.Errorf("empty utc offset")
	}
	sign := 1
	switch s[0] {
	case '-':
		sign = -1
		s = s[1:]
	case '+':
		s = s[1:]
	}
	parts := strings.Split(s, ":")
	if len(parts) < 2 || len(parts) > 3 {
		return nil, fmt.Errorf("invalid utc offset %q", s)
	}
	var secs int
	for i, p := range parts {
		v, err := strconv.Atoi(p)
		if err != nil || v < 0 || (i > 0 && v >= 60) {
			return nil, fmt.Errorf("invalid utc offset %q", s)
		}
		secs = secs*60 + v
	}
	if len(parts) == 2 {
		secs *= 60
	}
	if secs > 14*3600 {
		return nil, fmt.Errorf("utc offset %q out of range", s)
	}
	secs *= sign

	name := fmt.Sprintf("UTC%+03d:%02d", secs/3600, abs(secs%3600)/60)
	if secs < 0 && secs > -3600 {
		name = fmt.Sprintf("UTC-00:%02d", abs(secs)/60)
	}
	return time.FixedZone(name, secs), nil
}

func abs(v int) int {
	if v < 0 {
		return -v
	}
	return v
}
