package weather

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"math"
	"net/http"
	"net/url"
	"strconv"
	"time"

	"github.com/mohammad-safakhou/choir/config"
	"github.com/mohammad-safakhou/choir/internal/capability"
)

// Name is the registry name of the weather function.
const Name = "get_weather"

const (
	DefaultGeocodeURL  = "https://geocoding-api.open-meteo.com/v1/search"
	DefaultForecastURL = "https://api.open-meteo.com/v1/forecast"
)

var validUnits = []string{"celsius", "fahrenheit", "kelvin"}

// ErrLocationNotFound is returned when geocoding yields nothing.
var ErrLocationNotFound = errors.New("location not found")

// Tool looks up current conditions through Open-Meteo.
type Tool struct {
	GeocodeURL  string
	ForecastURL string
	Client      *http.Client
	Now         func() time.Time
}

// NewTool builds the tool from config.
func NewTool(cfg config.WeatherConfig) *Tool {
	t := &Tool{
		GeocodeURL:  cfg.GeocodeURL,
		ForecastURL: cfg.ForecastURL,
		Client:      &http.Client{Timeout: cfg.Timeout},
	}
	if t.GeocodeURL == "" {
		t.GeocodeURL = DefaultGeocodeURL
	}
	if t.ForecastURL == "" {
		t.ForecastURL = DefaultForecastURL
	}
	return t
}

func (t *Tool) Name() string { return Name }

func (t *Tool) Description() string {
	return "Get the current weather for a location."
}

func (t *Tool) Parameters() map[string]capability.Parameter {
	return map[string]capability.Parameter{
		"location": {Type: "string", Description: "City or place name, e.g. Paris", Required: true},
		"units":    {Type: "string", Description: "Temperature units (default celsius)", Enum: validUnits},
	}
}

// Execute returns {location, units, weather_data, timestamp}.
func (t *Tool) Execute(ctx context.Context, args map[string]any) (any, error) {
	location, err := capability.RequiredString(args, "location")
	if err != nil {
		return nil, err
	}
	units, err := capability.OptionalString(args, "units", "celsius")
	if err != nil {
		return nil, err
	}
	if !validUnit(units) {
		return nil, &capability.ParameterError{Name: "units", Reason: fmt.Sprintf("must be one of %v", validUnits)}
	}

	place, err := t.geocode(ctx, location)
	if err != nil {
		return nil, err
	}
	current, err := t.current(ctx, place, units)
	if err != nil {
		return nil, err
	}

	now := time.Now
	if t.Now != nil {
		now = t.Now
	}
	return map[string]any{
		"location": location,
		"units":    units,
		"weather_data": map[string]any{
			"place":       place.label(),
			"latitude":    place.Latitude,
			"longitude":   place.Longitude,
			"temperature": current.Temperature,
			"humidity":    current.Humidity,
			"wind_speed":  current.WindSpeed,
			"conditions":  describe(current.WeatherCode),
			"observed_at": current.Time,
		},
		"timestamp": now().UTC().Format(time.RFC3339),
	}, nil
}

func validUnit(u string) bool {
	for _, v := range validUnits {
		if u == v {
			return true
		}
	}
	return false
}

type place struct {
	Name      string  `json:"name"`
	Country   string  `json:"country"`
	Latitude  float64 `json:"latitude"`
	Longitude float64 `json:"longitude"`
}

func (p place) label() string {
	if p.Country == "" {
		return p.Name
	}
	return p.Name + ", " + p.Country
}

type conditions struct {
	Time        string  `json:"time"`
	Temperature float64 `json:"temperature_2m"`
	Humidity    float64 `json:"relative_humidity_2m"`
	WindSpeed   float64 `json:"wind_speed_10m"`
	WeatherCode int     `json:"weather_code"`
}

func (t *Tool) geocode(ctx context.Context, location string) (place, error) {
	q := url.Values{}
	q.Set("name", location)
	q.Set("count", "1")
	var raw struct {
		Results []place `json:"results"`
	}
	if err := t.getJSON(ctx, t.GeocodeURL+"?"+q.Encode(), &raw); err != nil {
		return place{}, fmt.Errorf("geocode %q: %w", location, err)
	}
	if len(raw.Results) == 0 {
		return place{}, fmt.Errorf("%w: %s", ErrLocationNotFound, location)
	}
	return raw.Results[0], nil
}

func (t *Tool) current(ctx context.Context, p place, units string) (conditions, error) {
	q := url.Values{}
	q.Set("latitude", strconv.FormatFloat(p.Latitude, 'f', 4, 64))
	q.Set("longitude", strconv.FormatFloat(p.Longitude, 'f', 4, 64))
	q.Set("current", "temperature_2m,relative_humidity_2m,wind_speed_10m,weather_code")
	if units == "fahrenheit" {
		q.Set("temperature_unit", "fahrenheit")
	} else {
		q.Set("temperature_unit", "celsius")
	}
	var raw struct {
		Current conditions `json:"current"`
	}
	if err := t.getJSON(ctx, t.ForecastURL+"?"+q.Encode(), &raw); err != nil {
		return conditions{}, fmt.Errorf("forecast: %w", err)
	}
	if units == "kelvin" {
		raw.Current.Temperature = math.Round((raw.Current.Temperature+273.15)*100) / 100
	}
	return raw.Current, nil
}

func (t *Tool) getJSON(ctx context.Context, u string, out any) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, u, nil)
	if err != nil {
		return err
	}
	req.Header.Set("Accept", "application/json")
	client := t.Client
	if client == nil {
		client = http.DefaultClient
	}
	resp, err := client.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()
	if resp.StatusCode >= 400 {
		return fmt.Errorf("unexpected status %d", resp.StatusCode)
	}
	return json.NewDecoder(resp.Body).Decode(out)
}

// describe maps WMO weather interpretation codes to text.
func describe(code int) string {
	switch {
	case code == 0:
		return "clear sky"
	case code <= 3:
		return "partly cloudy"
	case code == 45 || code == 48:
		return "fog"
	case code >= 51 && code <= 57:
		return "drizzle"
	case code >= 61 && code <= 67:
		return "rain"
	case code >= 71 && code <= 77:
		return "snow"
	case code >= 80 && code <= 82:
		return "rain showers"
	case code == 85 || code == 86:
		return "snow showers"
	case code >= 95:
		return "thunderstorm"
	default:
		return "unknown"
	}
}
