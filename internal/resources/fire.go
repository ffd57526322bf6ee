package resources

import (
	"context"
	"strconv"
	"strings"

	"firewatch/internal/querybuilder"
	"firewatch/internal/resource"
)

// DefaultProximityKM applies when a proximity search gives no radius.
const DefaultProximityKM = 50

const distanceColumn = "6371 * acos( cos( radians(:latDec) ) * cos( radians( fire.latitude ) ) * " +
	"cos( radians( fire.longitude ) - radians(:lonDec) ) + sin( radians(:latDec) ) * " +
	"sin(radians(fire.latitude)) )  AS distance"

// Fire is a reported or scraped fire.
type Fire struct{}

// NewFire returns the fire resource.
func NewFire() *Fire { return &Fire{} }

func (f *Fire) Definition() resource.Definition {
	return resource.Definition{
		Table: "fire",
		RecognisedFields: map[string]int{
			"latitude":       10,
			"longitude":      10,
			"confidence":     3,
			"temperature":    6,
			"user_submitted": 1,
		},
		MandatoryFields: []string{"latitude", "longitude"},
		SearchKeys:      []string{"user_latitude", "user_longitude", "user_proximity"},
	}
}

func (f *Fire) Validate(_ context.Context, in resource.ValidationInput, errs resource.ValidationErrors) error {
	for _, field := range []string{"latitude", "longitude", "confidence", "temperature"} {
		if v, ok := in.Params[field]; ok && !isNumeric(v) {
			errs.Add(field, resource.Ucfirst(field)+" must be numeric.")
		}
	}
	if v, ok := in.Params["user_submitted"]; ok {
		if s := strings.TrimSpace(v); s != "0" && s != "1" {
			errs.Add("user_submitted", "User_submitted must be a binary digit.")
		}
	}
	return nil
}

// SearchTriggers adds a great-circle distance column and keeps fires within
// user_proximity km of (user_latitude, user_longitude).
func (f *Fire) SearchTriggers(_ context.Context, params map[string]string, b *querybuilder.Builder) error {
	lat, latErr := strconv.ParseFloat(strings.TrimSpace(params["user_latitude"]), 64)
	lon, lonErr := strconv.ParseFloat(strings.TrimSpace(params["user_longitude"]), 64)
	if latErr != nil || lonErr != nil {
		return nil
	}
	proximity := float64(DefaultProximityKM)
	if p, err := strconv.ParseFloat(strings.TrimSpace(params["user_proximity"]), 64); err == nil {
		proximity = p
	}

	b.SelectCustom([]string{"fire"}, distanceColumn)
	b.Bind("latDec", lat)
	b.Bind("lonDec", lon)
	b.Bind("proximity", proximity)
	b.Inject(querybuilder.ClauseHaving, "distance < :proximity")
	return nil
}
