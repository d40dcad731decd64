package events

import (
	"strconv"
	"time"

	"github.com/cespare/xxhash/v2"
)

// UnknownValue buckets empty dimension values.
const UnknownValue = "unknown"

// PageView is a single raw page view kept at full fidelity until it is archived.
type PageView struct {
	ID             uint      `gorm:"primaryKey;autoIncrement" json:"id"`
	EventHash      string    `gorm:"uniqueIndex;size:16;not null" json:"eventHash"`
	Path           string    `gorm:"index;not null" json:"path"`
	Timestamp      time.Time `gorm:"index;not null" json:"timestamp"`
	VisitorID      string    `gorm:"index;not null" json:"visitorId"`
	IPAddress      string    `json:"ipAddress"`
	UserAgent      string    `json:"userAgent"`
	Referer        *string   `json:"referer"`
	Country        string    `json:"country"`
	Region         string    `json:"region"`
	City           string    `json:"city"`
	Browser        string    `json:"browser"`
	BrowserVersion string    `json:"browserVersion"`
	OS             string    `gorm:"column:os" json:"os"`
	OSVersion      string    `gorm:"column:os_version" json:"osVersion"`
	DeviceType     string    `json:"deviceType"`
	ScreenSize     string    `json:"screenSize"`
	Language       string    `json:"language"`
	Timezone       string    `json:"timezone"`
	CreatedAt      time.Time `json:"createdAt"`
}

// ComputeHash fills EventHash from the fields that identify one page view.
// Re-processing the same queue entry yields the same hash.
func (pv *PageView) ComputeHash() {
	d := xxhash.New()
	d.WriteString(pv.VisitorID)
	d.WriteString("\x00")
	d.WriteString(pv.Path)
	d.WriteString("\x00")
	d.WriteString(strconv.FormatInt(pv.Timestamp.UTC().UnixNano(), 10))
	d.WriteString("\x00")
	d.WriteString(pv.IPAddress)
	d.WriteString("\x00")
	d.WriteString(pv.UserAgent)
	pv.EventHash = strconv.FormatUint(d.Sum64(), 16)
}

// RefererValue returns the referer or an empty string.
func (pv *PageView) RefererValue() string {
	if pv.Referer == nil {
		return ""
	}
	return *pv.Referer
}

// ViewCount is the cached running view counter of a path.
type ViewCount struct {
	ID        uint    `gorm:"primaryKey;autoIncrement"`
	Path      string  `gorm:"uniqueIndex;not null"`
	PostSlug  *string `gorm:"index"`
	Count     int64   `gorm:"not null;default:0"`
	CreatedAt time.Time
	UpdatedAt time.Time
}

// Counts is a value -> occurrences frequency map.
type Counts map[string]int64
