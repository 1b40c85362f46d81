package history

import (
	"time"

	"golang.org/x/text/language"
)

// Projection is the dashboard view of a history row.
type Projection struct {
	ID       string `json:"id"`
	DeviceID string `json:"device_id"`

	// Status and Mode are display labels in the formatter's locale.
	Status string `json:"status"`
	Mode   string `json:"mode"`

	// Threshold is null for manual-mode rows.
	Threshold *float64 `json:"threshold"`

	Temperature float64 `json:"temperature"`
	Humidity    float64 `json:"humidity"`
	Topic       string  `json:"topic"`

	// Timestamp is CreatedAt rendered in the formatter's zone and layout.
	Timestamp string `json:"timestamp"`
}

// labels holds the display strings for one locale.
type labels struct {
	auto, manual string
	on, off      string
	layout       string
}

// supportedLocales is ordered by preference; the first entry is the
// fallback for unknown locales.
var supportedLocales = []language.Tag{
	language.Vietnamese,
	language.English,
}

var localeLabels = []labels{
	{auto: "Tự động", manual: "Thủ công", on: "Bật", off: "Tắt", layout: "15:04:05 02/01/2006"},
	{auto: "Automatic", manual: "Manual", on: "On", off: "Off", layout: "02/01/2006, 15:04:05"},
}

var localeMatcher = language.NewMatcher(supportedLocales)

// Formatter renders history rows for display. It is safe for concurrent use.
type Formatter struct {
	labels labels
	loc    *time.Location
}

// NewFormatter creates a formatter for a BCP 47 locale ("vi", "en-GB", ...)
// rendering times in loc. Unknown locales fall back to Vietnamese and a nil
// loc to UTC.
func NewFormatter(locale string, loc *time.Location) *Formatter {
	if loc == nil {
		loc = time.UTC
	}

	idx := 0
	if tag, err := language.Parse(locale); err == nil {
		_, idx, _ = localeMatcher.Match(tag)
	}

	return &Formatter{
		labels: localeLabels[idx],
		loc:    loc,
	}
}

// Format projects rows in input order. Rows are not modified.
func (f *Formatter) Format(records []Record) []Projection {
	out := make([]Projection, 0, len(records))
	for _, rec := range records {
		out = append(out, f.project(rec))
	}
	return out
}

func (f *Formatter) project(rec Record) Projection {
	p := Projection{
		ID:          rec.ID,
		DeviceID:    rec.DeviceID,
		Status:      f.labels.off,
		Mode:        f.labels.manual,
		Temperature: rec.Temperature,
		Humidity:    rec.Humidity,
		Topic:       rec.Topic,
		Timestamp:   rec.CreatedAt.In(f.loc).Format(f.labels.layout),
	}

	if rec.Status == "on" {
		p.Status = f.labels.on
	}
	if rec.Mode == "auto" {
		p.Mode = f.labels.auto
	}
	if rec.Mode != "manual" {
		threshold := rec.Threshold
		p.Threshold = &threshold
	}

	return p
}
