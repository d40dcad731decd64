package analytics

import (
	"sort"
	"time"

	"github.com/DataDog/sketches-go/ddsketch"

	"pulse/internal/events"
)

// SessionTimeout is the inactivity gap that ends a session.
const SessionTimeout = 30 * time.Minute

// Session is a run of page views from one visitor with no gap longer than
// SessionTimeout.
type Session struct {
	VisitorID string
	Start     time.Time
	End       time.Time
	Views     int
}

// Bounce reports whether the session has a single page view.
func (s Session) Bounce() bool {
	return s.Views == 1
}

func (s Session) Duration() time.Duration {
	return s.End.Sub(s.Start)
}

// BuildSessions reconstructs sessions from raw page views. Views need not be
// sorted. Sessions are ordered by visitor, then start time.
func BuildSessions(views []events.PageView, timeout time.Duration) []Session {
	byVisitor := make(map[string][]time.Time)
	for i := range views {
		byVisitor[views[i].VisitorID] = append(byVisitor[views[i].VisitorID], views[i].Timestamp)
	}

	visitorIDs := make([]string, 0, len(byVisitor))
	for id := range byVisitor {
		visitorIDs = append(visitorIDs, id)
	}
	sort.Strings(visitorIDs)

	var sessions []Session
	for _, id := range visitorIDs {
		times := byVisitor[id]
		sort.Slice(times, func(i, j int) bool { return times[i].Before(times[j]) })

		current := Session{VisitorID: id, Start: times[0], End: times[0], Views: 1}
		for _, t := range times[1:] {
			if t.Sub(current.End) > timeout {
				sessions = append(sessions, current)
				current = Session{VisitorID: id, Start: t, End: t, Views: 1}
				continue
			}
			current.End = t
			current.Views++
		}
		sessions = append(sessions, current)
	}
	return sessions
}

type SessionSummary struct {
	TotalSessions int64
	Bounces       int64
	// BounceRate is a percentage.
	BounceRate float64
	// Durations are in seconds and only cover sessions with more than one view.
	AverageDuration     float64
	MedianDuration      float64
	P90Duration         float64
	PageViewsPerSession float64
}

// SummarizeSessions derives the session metrics. Every ratio is 0 when there
// are no sessions.
func SummarizeSessions(sessions []Session, totalViews int64) SessionSummary {
	summary := SessionSummary{TotalSessions: int64(len(sessions))}
	if len(sessions) == 0 {
		return summary
	}

	sketch, err := ddsketch.NewDefaultDDSketch(0.01)
	if err != nil {
		sketch = nil
	}

	var totalDuration float64
	var engaged int
	for _, s := range sessions {
		if s.Bounce() {
			summary.Bounces++
			continue
		}
		seconds := s.Duration().Seconds()
		totalDuration += seconds
		engaged++
		if sketch != nil {
			sketch.Add(seconds)
		}
	}

	summary.BounceRate = 100 * float64(summary.Bounces) / float64(summary.TotalSessions)
	summary.PageViewsPerSession = float64(totalViews) / float64(summary.TotalSessions)

	if engaged > 0 {
		summary.AverageDuration = totalDuration / float64(engaged)
		if sketch != nil {
			summary.MedianDuration, _ = sketch.GetValueAtQuantile(0.5)
			summary.P90Duration, _ = sketch.GetValueAtQuantile(0.9)
		}
	}

	return summary
}
