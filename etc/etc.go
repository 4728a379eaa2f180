package etc

import (
	"fmt"
	"time"

	"github.com/nrednav/cuid2"
)

func NewFreshID() string {
	return cuid2.Generate()
}

// TimezoneInfo describes the local clock in a form suitable for
// inclusion in a conversational system prompt.
type TimezoneInfo struct {
	Timezone        string
	CurrentDateTime string
	CurrentDate     string
	CurrentTime     string
}

func GetTimezoneInfo() TimezoneInfo {
	return timezoneInfoAt(time.Now())
}

func timezoneInfoAt(now time.Time) TimezoneInfo {
	zone, _ := now.Zone()
	return TimezoneInfo{
		Timezone: zone,
		CurrentDateTime: fmt.Sprintf(
			"%s, %s %d, %d at %02d:%02d:%02d",
			now.Weekday(),
			now.Month(),
			now.Day(),
			now.Year(),
			now.Hour(),
			now.Minute(),
			now.Second(),
		),
		CurrentDate: fmt.Sprintf(
			"%s, %s %d, %d",
			now.Weekday(),
			now.Month(),
			now.Day(),
			now.Year(),
		),
		CurrentTime: fmt.Sprintf(
			"%02d:%02d:%02d",
			now.Hour(),
			now.Minute(),
			now.Second(),
		),
	}
}
