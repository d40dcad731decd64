package timeframe

import (
	"fmt"
	"time"
)

// DateLayout is the calendar date format used for archive buckets and day trend keys.
const DateLayout = "2006-01-02"

// maxBuckets caps series generation.
const maxBuckets = 10000

// TimeFrameBucketSize is the granularity of a time series.
type TimeFrameBucketSize string

const (
	TimeFrameBucketSizeDay    TimeFrameBucketSize = "day"
	TimeFrameBucketSizeHour   TimeFrameBucketSize = "hour"
	TimeFrameBucketSizeMinute TimeFrameBucketSize = "minute"
)

type TimeProvider interface {
	Now(loc *time.Location) time.Time
}

// DefaultTimeProvider uses the system clock.
type DefaultTimeProvider struct{}

func (p *DefaultTimeProvider) Now(loc *time.Location) time.Time {
	return time.Now().In(loc)
}

// TimeFrame represents a period between two points in time. From and To are
// inclusive and stored in UTC.
type TimeFrame struct {
	From       time.Time
	To         time.Time
	BucketSize TimeFrameBucketSize
	// Units is the number of days, hours or minutes the caller asked for.
	// Averages are computed over it.
	Units int
}

func NewTimeFrame(from, to time.Time, bucketSize TimeFrameBucketSize, units int) (*TimeFrame, error) {
	if from.After(to) {
		return nil, fmt.Errorf("fromTime must be before toTime")
	}
	return &TimeFrame{
		From:       from.UTC(),
		To:         to.UTC(),
		BucketSize: bucketSize,
		Units:      units,
	}, nil
}

// Contains reports whether t falls inside the frame.
func (tf *TimeFrame) Contains(t time.Time) bool {
	return !t.Before(tf.From) && !t.After(tf.To)
}

// Buckets returns the start of every bucket between From and To, in UTC.
func (tf *TimeFrame) Buckets() []time.Time {
	current := TruncateToBucketInTimezone(tf.From, tf.BucketSize, time.UTC)
	end := TruncateToBucketInTimezone(tf.To, tf.BucketSize, time.UTC)

	var points []time.Time
	for !current.After(end) && len(points) < maxBuckets {
		points = append(points, current)
		current = Next(current, tf.BucketSize)
	}
	return points
}

// BucketKey returns the series key of the bucket containing t.
func (tf *TimeFrame) BucketKey(t time.Time) string {
	return BucketKey(t, tf.BucketSize)
}

// FromDate returns the UTC calendar date of From.
func (tf *TimeFrame) FromDate() string {
	return tf.From.Format(DateLayout)
}

// ToDate returns the UTC calendar date of To.
func (tf *TimeFrame) ToDate() string {
	return tf.To.Format(DateLayout)
}

// BucketKey formats the bucket containing t. Day buckets use the calendar date,
// finer buckets use RFC 3339.
func BucketKey(t time.Time, bucketSize TimeFrameBucketSize) string {
	start := TruncateToBucketInTimezone(t, bucketSize, time.UTC)
	if bucketSize == TimeFrameBucketSizeDay {
		return start.Format(DateLayout)
	}
	return start.Format(time.RFC3339)
}

// Next returns the start of the bucket following t.
func Next(t time.Time, bucketSize TimeFrameBucketSize) time.Time {
	switch bucketSize {
	case TimeFrameBucketSizeDay:
		return t.AddDate(0, 0, 1)
	case TimeFrameBucketSizeHour:
		return t.Add(time.Hour)
	default:
		return t.Add(time.Minute)
	}
}

// TruncateToBucketInTimezone truncates a time to the appropriate bucket boundary in the given timezone
func TruncateToBucketInTimezone(t time.Time, bucketSize TimeFrameBucketSize, loc *time.Location) time.Time {
	localTime := t.In(loc)
	year, month, day := localTime.Date()

	switch bucketSize {
	case TimeFrameBucketSizeDay:
		return time.Date(year, month, day, 0, 0, 0, 0, loc)
	case TimeFrameBucketSizeHour:
		return time.Date(year, month, day, localTime.Hour(), 0, 0, 0, loc)
	case TimeFrameBucketSizeMinute:
		return time.Date(year, month, day, localTime.Hour(), localTime.Minute(), 0, 0, loc)
	default:
		return localTime
	}
}

// StartOfDay returns local midnight of the calendar day containing t.
func StartOfDay(t time.Time, loc *time.Location) time.Time {
	return TruncateToBucketInTimezone(t, TimeFrameBucketSizeDay, loc)
}

// DaysBefore returns local midnight n calendar days before the day containing t.
// Calendar arithmetic keeps the result on midnight across DST changes.
func DaysBefore(t time.Time, n int, loc *time.Location) time.Time {
	local := t.In(loc)
	return time.Date(local.Year(), local.Month(), local.Day()-n, 0, 0, 0, 0, loc)
}

// DateIn returns the calendar date of t in loc.
func DateIn(t time.Time, loc *time.Location) string {
	return t.In(loc).Format(DateLayout)
}
