package analytics_test

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"pulse/internal/analytics"
	"pulse/internal/events"
	"pulse/internal/testsupport"
)

func TestBuildSessionsSplitsOnInactivity(t *testing.T) {
	start := time.Date(2024, 3, 15, 9, 0, 0, 0, time.UTC)
	views := []events.PageView{
		testsupport.NewPageView("/c", "V", start.Add(40*time.Minute)),
		testsupport.NewPageView("/a", "V", start),
		testsupport.NewPageView("/b", "V", start.Add(5*time.Minute)),
	}

	sessions := analytics.BuildSessions(views, analytics.SessionTimeout)

	require.Len(t, sessions, 2)
	assert.Equal(t, start, sessions[0].Start)
	assert.Equal(t, 2, sessions[0].Views)
	assert.False(t, sessions[0].Bounce())
	assert.Equal(t, 5*time.Minute, sessions[0].Duration())

	assert.Equal(t, start.Add(40*time.Minute), sessions[1].Start)
	assert.True(t, sessions[1].Bounce())

	summary := analytics.SummarizeSessions(sessions, 3)
	assert.Equal(t, int64(2), summary.TotalSessions)
	assert.Equal(t, int64(1), summary.Bounces)
	assert.Equal(t, 50.0, summary.BounceRate)
	assert.Equal(t, 300.0, summary.AverageDuration)
	assert.Equal(t, 1.5, summary.PageViewsPerSession)
	assert.InDelta(t, 300.0, summary.MedianDuration, 6)
}

func TestBuildSessionsGapOfExactlyTimeoutContinues(t *testing.T) {
	start := time.Date(2024, 3, 15, 9, 0, 0, 0, time.UTC)
	views := []events.PageView{
		testsupport.NewPageView("/a", "V", start),
		testsupport.NewPageView("/b", "V", start.Add(analytics.SessionTimeout)),
		testsupport.NewPageView("/a", "W", start),
	}

	sessions := analytics.BuildSessions(views, analytics.SessionTimeout)

	require.Len(t, sessions, 2)
	assert.Equal(t, "V", sessions[0].VisitorID)
	assert.Equal(t, 2, sessions[0].Views)
	assert.Equal(t, "W", sessions[1].VisitorID)
}

func TestSummarizeSessionsWithoutSessions(t *testing.T) {
	summary := analytics.SummarizeSessions(nil, 0)

	assert.Zero(t, summary.TotalSessions)
	assert.Zero(t, summary.BounceRate)
	assert.Zero(t, summary.PageViewsPerSession)
	assert.Zero(t, summary.AverageDuration)
	assert.Zero(t, summary.MedianDuration)
}

func TestSummarizeSessionsOnlyBounces(t *testing.T) {
	at := time.Date(2024, 3, 15, 9, 0, 0, 0, time.UTC)
	sessions := analytics.BuildSessions([]events.PageView{
		testsupport.NewPageView("/", "a", at),
		testsupport.NewPageView("/", "b", at),
	}, analytics.SessionTimeout)

	summary := analytics.SummarizeSessions(sessions, 2)
	assert.Equal(t, 100.0, summary.BounceRate)
	assert.Zero(t, summary.AverageDuration)
	assert.Zero(t, summary.P90Duration)
}
