package gt3x

import "time"

// Windows ticks are 100ns intervals since 0001-01-01T00:00:00Z.
const (
	ticksPerSecond = 10_000_000
	unixEpochTicks = 621_355_968_000_000_000

	// TicksThreshold separates the two timestamp eras. Epoch seconds for any
	// plausible recording are below 10^10 and tick counts for any date after
	// year 4 are above 10^15, so magnitude alone decides the interpretation.
	// The container carries no explicit flag for this.
	TicksThreshold int64 = 1_000_000_000_000_000
)

// IsTicks reports whether raw should be read as Windows ticks.
func IsTicks(raw int64) bool {
	return raw >= TicksThreshold
}

// TicksToTime converts Windows ticks to UTC.
func TicksToTime(ticks int64) time.Time {
	d := ticks - unixEpochTicks
	return time.Unix(d/ticksPerSecond, (d%ticksPerSecond)*100).UTC()
}

// TimeToTicks is the inverse of TicksToTime.
func TimeToTicks(t time.Time) int64 {
	return t.Unix()*ticksPerSecond + int64(t.Nanosecond())/100 + unixEpochTicks
}

// TimestampToTime interprets a raw device timestamp using the magnitude
// heuristic: Windows ticks above TicksThreshold, Unix epoch seconds otherwise.
func TimestampToTime(raw int64) time.Time {
	if IsTicks(raw) {
		return TicksToTime(raw)
	}
	return time.Unix(raw, 0).UTC()
}
