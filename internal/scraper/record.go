package scraper

import (
	"fmt"
	"strconv"
	"strings"
	"time"
)

// CSV column positions in the FIRMS active fire feed.
const (
	colLatitude   = 0
	colLongitude  = 1
	colBrightness = 2
	colAcqDate    = 5
	colAcqTime    = 6
	colConfidence = 8
	minColumns    = colConfidence + 1
)

const dateLayout = "2006-01-02 15:04:05"

// Record is one fire row ready for insertion.
type Record struct {
	Latitude     float64
	Longitude    float64
	Temperature  string
	Confidence   int
	DateAcquired time.Time
}

// confidenceScore maps the VIIRS confidence class to a percentage.
func confidenceScore(class string) int {
	switch strings.ToLower(strings.TrimSpace(class)) {
	case "high", "h":
		return 90
	case "nominal", "n":
		return 60
	case "low", "l":
		return 30
	default:
		return 50
	}
}

// parseRecord converts a CSV row. Acquisition times are UTC in the feed and
// stored in loc. A malformed date falls back to now.
func parseRecord(fields []string, loc *time.Location, now time.Time) (Record, error) {
	if len(fields) < minColumns {
		return Record{}, fmt.Errorf("expected at least %d columns, got %d", minColumns, len(fields))
	}
	lat, err := strconv.ParseFloat(strings.TrimSpace(fields[colLatitude]), 64)
	if err != nil {
		return Record{}, fmt.Errorf("latitude %q: %w", fields[colLatitude], err)
	}
	lon, err := strconv.ParseFloat(strings.TrimSpace(fields[colLongitude]), 64)
	if err != nil {
		return Record{}, fmt.Errorf("longitude %q: %w", fields[colLongitude], err)
	}

	return Record{
		Latitude:     lat,
		Longitude:    lon,
		Temperature:  strings.TrimSpace(fields[colBrightness]),
		Confidence:   confidenceScore(fields[colConfidence]),
		DateAcquired: acquiredAt(fields[colAcqDate], fields[colAcqTime], loc, now),
	}, nil
}

func acquiredAt(date, hhmm string, loc *time.Location, now time.Time) time.Time {
	date = strings.TrimSpace(date)
	if len(date) != len("2006-01-02") {
		return now.In(loc)
	}
	minutes, err := strconv.Atoi(strings.TrimSpace(hhmm))
	if err != nil || minutes < 0 {
		minutes = 0
	}
	clock := fmt.Sprintf("%04d", minutes)
	t, err := time.ParseInLocation("2006-01-02 1504", date+" "+clock, time.UTC)
	if err != nil {
		return now.In(loc)
	}
	return t.In(loc)
}
