package timeframe

import (
	"time"

	"pulse/internal/apperrors"
)

const (
	DefaultDays    = 30
	MaxDays        = 3660
	MaxHours       = 24 * 31
	DefaultMinutes = 30
	MaxMinutes     = 24 * 60
)

// WindowParams selects exactly one window mode. All zero means the trailing
// DefaultDays days.
type WindowParams struct {
	Days      int
	Hours     int
	StartDate string
	EndDate   string
}

type TimeFrameParser struct {
	timeProvider TimeProvider
}

func NewTimeFrameParser(timeProvider ...TimeProvider) *TimeFrameParser {
	var provider TimeProvider = &DefaultTimeProvider{}
	if len(timeProvider) > 0 && timeProvider[0] != nil {
		provider = timeProvider[0]
	}

	return &TimeFrameParser{
		timeProvider: provider,
	}
}

// ParseWindow resolves the stats window. Hours give a sliding hourly window,
// start/end give inclusive UTC dates, days give trailing whole UTC days ending today.
func (p *TimeFrameParser) ParseWindow(params WindowParams) (*TimeFrame, error) {
	modes := 0
	if params.Days != 0 {
		modes++
	}
	if params.Hours != 0 {
		modes++
	}
	if params.StartDate != "" || params.EndDate != "" {
		modes++
	}
	if modes > 1 {
		return nil, apperrors.NewValidationError("window", "use only one of days, hours or startDate/endDate")
	}

	now := p.timeProvider.Now(time.UTC)

	switch {
	case params.Hours != 0:
		if params.Hours < 0 || params.Hours > MaxHours {
			return nil, apperrors.NewValidationError("hours", "must be between 1 and %d", MaxHours)
		}
		return NewTimeFrame(now.Add(-time.Duration(params.Hours)*time.Hour), now, TimeFrameBucketSizeHour, params.Hours)

	case params.StartDate != "" || params.EndDate != "":
		return p.parseDateRange(params.StartDate, params.EndDate)

	default:
		days := params.Days
		if days == 0 {
			days = DefaultDays
		}
		if days < 0 || days > MaxDays {
			return nil, apperrors.NewValidationError("days", "must be between 1 and %d", MaxDays)
		}
		from := DaysBefore(now, days-1, time.UTC)
		return NewTimeFrame(from, now, TimeFrameBucketSizeDay, days)
	}
}

func (p *TimeFrameParser) parseDateRange(startDate, endDate string) (*TimeFrame, error) {
	if startDate == "" || endDate == "" {
		return nil, apperrors.NewValidationError("startDate", "startDate and endDate must be provided together")
	}

	start, err := time.ParseInLocation(DateLayout, startDate, time.UTC)
	if err != nil {
		return nil, apperrors.NewValidationError("startDate", "expected YYYY-MM-DD, got %q", startDate)
	}
	end, err := time.ParseInLocation(DateLayout, endDate, time.UTC)
	if err != nil {
		return nil, apperrors.NewValidationError("endDate", "expected YYYY-MM-DD, got %q", endDate)
	}
	if start.After(end) {
		return nil, apperrors.NewValidationError("startDate", "must not be after endDate")
	}

	days := int(end.Sub(start).Hours()/24) + 1
	if days > MaxDays {
		return nil, apperrors.NewValidationError("endDate", "range cannot exceed %d days", MaxDays)
	}

	endOfDay := end.AddDate(0, 0, 1).Add(-time.Nanosecond)
	return NewTimeFrame(start, endOfDay, TimeFrameBucketSizeDay, days)
}

// ParseMinutes resolves the real-time window ending now.
func (p *TimeFrameParser) ParseMinutes(minutes int) (*TimeFrame, error) {
	if minutes == 0 {
		minutes = DefaultMinutes
	}
	if minutes < 0 || minutes > MaxMinutes {
		return nil, apperrors.NewValidationError("minutes", "must be between 1 and %d", MaxMinutes)
	}

	now := p.timeProvider.Now(time.UTC)
	return NewTimeFrame(now.Add(-time.Duration(minutes)*time.Minute), now, TimeFrameBucketSizeMinute, minutes)
}

// Now exposes the parser clock so callers share one notion of "now".
func (p *TimeFrameParser) Now(loc *time.Location) time.Time {
	return p.timeProvider.Now(loc)
}
