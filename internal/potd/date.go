package potd

import (
	"fmt"
	"time"
)

// Clock abstracts time.Now so cycles can be driven by tests.
type Clock interface {
	Now() time.Time
}

// UTCClock implements Clock using the system clock in UTC.
type UTCClock struct{}

func (UTCClock) Now() time.Time { return time.Now().UTC() }

// DateStamp formats the calendar date of t as YYYY-M-D, without zero padding.
func DateStamp(t time.Time) string {
	return fmt.Sprintf("%d-%d-%d", t.Year(), int(t.Month()), t.Day())
}

// FileName builds the name of a picture downloaded on t.
func FileName(t time.Time, ext string) string {
	return DateStamp(t) + "." + ext
}
