package tools

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/url"
	"sort"
	"strings"

	"github.com/llmbot-io/llmbot/internal/httpkit"
)

// metarBaseURL is the aviationweather.gov METAR data API.
const metarBaseURL = "https://aviationweather.gov/api/data/metar"

// faaCodeLength is the length of a US domestic code missing its ICAO
// "K" prefix.
const faaCodeLength = 3

// metarExcludeFields are response attributes left out of the
// formatted table.
var metarExcludeFields = map[string]bool{
	"name":       true,
	"rawOb":      true,
	"metar_id":   true,
	"obsTime":    true,
	"prior":      true,
	"mostRecent": true,
}

func (r *Registry) handleMetar(ctx context.Context, args map[string]any) (string, error) {
	icao, err := stringArg(args, "icao_code")
	if err != nil {
		return "", err
	}
	code := strings.ToUpper(strings.TrimSpace(icao))

	data, err := r.fetchMetar(ctx, code)
	if err == nil && data == nil && len(code) == faaCodeLength {
		// US stations are often given without the ICAO "K" prefix.
		code = "K" + code
		data, err = r.fetchMetar(ctx, code)
	}
	if err != nil {
		return fmt.Sprintf("Error fetching METAR data: %v", err), nil
	}
	if data == nil {
		return fmt.Sprintf("No METAR data found for airport code: %s", icao), nil
	}

	name, _ := data["name"].(string)
	if name == "" {
		name = "Unknown Airport"
	}
	raw, _ := data["rawOb"].(string)
	if raw == "" {
		raw = "No raw observation available"
	}

	var sb strings.Builder
	fmt.Fprintf(&sb, "Airport: %s\n", name)
	fmt.Fprintf(&sb, "Raw METAR: %s\n\n", raw)
	sb.WriteString("Weather Data:\n")

	keys := make([]string, 0, len(data))
	for k := range data {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	for _, k := range keys {
		v := data[k]
		if metarExcludeFields[k] || v == nil || v == "" {
			continue
		}
		fmt.Fprintf(&sb, "  %s: %v\n", k, v)
	}
	return sb.String(), nil
}

// fetchMetar returns the most recent observation for a station, or
// nil when the station is unknown.
func (r *Registry) fetchMetar(ctx context.Context, code string) (map[string]any, error) {
	u := fmt.Sprintf("%s?ids=%s&format=json", r.metarURL, url.QueryEscape(code))
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, u, nil)
	if err != nil {
		return nil, err
	}

	resp, err := r.httpClient.Do(req)
	if err != nil {
		return nil, err
	}
	defer httpkit.DrainAndClose(resp.Body, 4096)

	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("metar API status %d", resp.StatusCode)
	}

	var observations []map[string]any
	if err := json.NewDecoder(resp.Body).Decode(&observations); err != nil {
		return nil, fmt.Errorf("decode metar response: %w", err)
	}
	if len(observations) == 0 {
		return nil, nil
	}
	return observations[0], nil
}
