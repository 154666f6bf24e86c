package weather

import (
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"github.com/i474232898/weather-shell/internal/common"
)

// Condition represents a normalized high-level weather condition.
type Condition string

const (
	ConditionUnknown Condition = "unknown"
	ConditionClear   Condition = "clear"
	ConditionCloudy  Condition = "cloudy"
	ConditionRain    Condition = "rain"
	ConditionSnow    Condition = "snow"
	ConditionStorm   Condition = "storm"
	ConditionMist    Condition = "mist"
)

// Conditions is the read-only view of a current.json payload.
type Conditions struct {
	Name       string    `json:"name"`
	Region     string    `json:"region"`
	Country    string    `json:"country"`
	Lat        float64   `json:"lat"`
	Lon        float64   `json:"lon"`
	ObservedAt time.Time `json:"observedAt"` // always UTC
	TempC      float64   `json:"temperatureC"`
	FeelsLikeC float64   `json:"feelsLikeC"`
	WindKph    float64   `json:"windKph"`
	Humidity   float64   `json:"humidityPercent"`
	PrecipMm   float64   `json:"precipMm"`
	UV         float64   `json:"uv"`
	Text       string    `json:"text"`
	Condition  Condition `json:"condition"`
}

// ParseCurrent extracts Conditions from a current.json or forecast.json payload.
func ParseCurrent(raw []byte) (Conditions, error) {
	var payload struct {
		Location struct {
			Name           string  `json:"name"`
			Region         string  `json:"region"`
			Country        string  `json:"country"`
			Lat            float64 `json:"lat"`
			Lon            float64 `json:"lon"`
			LocaltimeEpoch int64   `json:"localtime_epoch"`
		} `json:"location"`
		Current struct {
			LastUpdatedEpoch int64   `json:"last_updated_epoch"`
			TempC            float64 `json:"temp_c"`
			FeelslikeC       float64 `json:"feelslike_c"`
			WindKph          float64 `json:"wind_kph"`
			Humidity         float64 `json:"humidity"`
			PrecipMm         float64 `json:"precip_mm"`
			UV               float64 `json:"uv"`
			Condition        struct {
				Text string `json:"text"`
			} `json:"condition"`
		} `json:"current"`
	}
	if err := json.Unmarshal(raw, &payload); err != nil {
		return Conditions{}, fmt.Errorf("decode weather payload: %w", err)
	}

	ts := payload.Current.LastUpdatedEpoch
	if ts == 0 {
		ts = payload.Location.LocaltimeEpoch
	}
	observed := time.Now().UTC()
	if ts > 0 {
		observed = time.Unix(ts, 0).UTC()
	}

	return Conditions{
		Name:       payload.Location.Name,
		Region:     payload.Location.Region,
		Country:    payload.Location.Country,
		Lat:        payload.Location.Lat,
		Lon:        payload.Location.Lon,
		ObservedAt: observed,
		TempC:      payload.Current.TempC,
		FeelsLikeC: payload.Current.FeelslikeC,
		WindKph:    payload.Current.WindKph,
		Humidity:   payload.Current.Humidity,
		PrecipMm:   payload.Current.PrecipMm,
		UV:         payload.Current.UV,
		Text:       payload.Current.Condition.Text,
		Condition:  MapCondition(payload.Current.Condition.Text),
	}, nil
}

// MapCondition normalizes WeatherAPI.com condition text.
func MapCondition(text string) Condition {
	t := strings.ToLower(text)
	switch {
	case t == "":
		return ConditionUnknown
	case common.HasAny(t, "thunder", "storm"):
		return ConditionStorm
	case common.HasAny(t, "snow", "sleet", "blizzard", "ice pellets"):
		return ConditionSnow
	case common.HasAny(t, "rain", "shower", "drizzle"):
		return ConditionRain
	case common.HasAny(t, "mist", "fog"):
		return ConditionMist
	case common.HasAny(t, "cloud", "overcast"):
		return ConditionCloudy
	case common.HasAny(t, "sunny", "clear"):
		return ConditionClear
	default:
		return ConditionUnknown
	}
}
