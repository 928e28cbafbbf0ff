package analysis

import (
	"fmt"
	"math"
	"unicode"
	"unicode/utf8"
)

// DayLabels are indexed by time.Weekday.
var DayLabels = [7]string{"Sunday", "Monday", "Tuesday", "Wednesday", "Thursday", "Friday", "Saturday"}

// LengthBucket is an inclusive caption length range. Max is math.MaxInt for the last bucket.
type LengthBucket struct {
	Label string
	Min   int
	Max   int
}

// Contains reports whether length falls in the bucket.
func (b LengthBucket) Contains(length int) bool {
	return length >= b.Min && length <= b.Max
}

// Unbounded reports whether the bucket has no upper limit.
func (b LengthBucket) Unbounded() bool {
	return b.Max == math.MaxInt
}

// LengthBuckets are the caption length ranges used by the length analysis.
var LengthBuckets = []LengthBucket{
	{Label: "Short (0–100)", Min: 0, Max: 100},
	{Label: "Medium (101–250)", Min: 101, Max: 250},
	{Label: "Long (251–500)", Min: 251, Max: 500},
	{Label: "Very Long (500+)", Min: 501, Max: math.MaxInt},
}

// recommendedOpenMax stands in for the missing upper bound of the last bucket in
// schedule recommendations.
const recommendedOpenMax = 1000

// FormatHour renders an hour of day as "12 AM", "9 AM", "12 PM", "3 PM".
func FormatHour(hour int) string {
	switch {
	case hour == 0:
		return "12 AM"
	case hour == 12:
		return "12 PM"
	case hour < 12:
		return fmt.Sprintf("%d AM", hour)
	default:
		return fmt.Sprintf("%d PM", hour-12)
	}
}

// platformLabel upper-cases the first letter of a platform id.
func platformLabel(platform string) string {
	r, size := utf8.DecodeRuneInString(platform)
	if r == utf8.RuneError {
		return platform
	}
	return string(unicode.ToUpper(r)) + platform[size:]
}
