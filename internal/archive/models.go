// Package archive rolls raw page views older than the precision window into
// per-(path, date) buckets and expires buckets older than the retention window.
package archive

import (
	"time"

	"gorm.io/datatypes"

	"pulse/internal/events"
)

// Bucket aggregates every archived page view of one path on one calendar date
// in the configured timezone.
type Bucket struct {
	ID             uint   `gorm:"primaryKey;autoIncrement" json:"-"`
	Path           string `gorm:"uniqueIndex:idx_archive_buckets_path_date;not null" json:"path"`
	Date           string `gorm:"uniqueIndex:idx_archive_buckets_path_date;index;size:10;not null" json:"date"`
	TotalViews     int64  `gorm:"not null;default:0" json:"totalViews"`
	UniqueVisitors int64  `gorm:"not null;default:0" json:"uniqueVisitors"`

	Referers  datatypes.JSONType[events.Counts] `json:"referers"`
	Countries datatypes.JSONType[events.Counts] `json:"countries"`
	Regions   datatypes.JSONType[events.Counts] `json:"regions"`
	Cities    datatypes.JSONType[events.Counts] `json:"cities"`
	Devices   datatypes.JSONType[events.Counts] `json:"devices"`
	Browsers  datatypes.JSONType[events.Counts] `json:"browsers"`
	OSes      datatypes.JSONType[events.Counts] `gorm:"column:oses" json:"oses"`
	Screens   datatypes.JSONType[events.Counts] `json:"screens"`
	Languages datatypes.JSONType[events.Counts] `json:"languages"`
	Timezones datatypes.JSONType[events.Counts] `json:"timezones"`

	CreatedAt time.Time `json:"-"`
	UpdatedAt time.Time `json:"-"`
}

func (Bucket) TableName() string {
	return "archive_buckets"
}

// countColumns are the bucket columns overwritten on upsert.
var countColumns = []string{
	"total_views", "unique_visitors",
	"referers", "countries", "regions", "cities", "devices",
	"browsers", "oses", "screens", "languages", "timezones",
	"updated_at",
}

func (b *Bucket) field(d events.Dimension) *datatypes.JSONType[events.Counts] {
	switch d {
	case events.DimensionReferer:
		return &b.Referers
	case events.DimensionCountry:
		return &b.Countries
	case events.DimensionRegion:
		return &b.Regions
	case events.DimensionCity:
		return &b.Cities
	case events.DimensionDevice:
		return &b.Devices
	case events.DimensionBrowser:
		return &b.Browsers
	case events.DimensionOS:
		return &b.OSes
	case events.DimensionScreen:
		return &b.Screens
	case events.DimensionLanguage:
		return &b.Languages
	case events.DimensionTimezone:
		return &b.Timezones
	default:
		return nil
	}
}

// Counts returns the frequency map stored for d. The map is never nil.
func (b *Bucket) Counts(d events.Dimension) events.Counts {
	f := b.field(d)
	if f == nil || f.Data() == nil {
		return events.Counts{}
	}
	return f.Data()
}

// SetCounts replaces the frequency map stored for d.
func (b *Bucket) SetCounts(d events.Dimension, counts events.Counts) {
	if f := b.field(d); f != nil {
		if counts == nil {
			counts = events.Counts{}
		}
		*f = datatypes.NewJSONType(counts)
	}
}
