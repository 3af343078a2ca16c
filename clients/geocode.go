package clients

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/url"
	"strconv"
	"strings"

	"github.com/citizenvoice/citizenvoice-api/config"
)

// Place is a reverse geocoding result
type Place struct {
	Address  string
	State    string
	District string
}

// GeocodeClient calls a nominatim compatible /reverse endpoint
type GeocodeClient struct {
	baseURL string
	http    *http.Client
}

// NewGeocodeClient builds a client bounded by cfg.Timeout
func NewGeocodeClient(cfg config.GeocodingConfig) *GeocodeClient {
	return &GeocodeClient{
		baseURL: strings.TrimRight(cfg.URL, "/"),
		http:    &http.Client{Timeout: cfg.Timeout},
	}
}

type nominatimReverse struct {
	DisplayName string `json:"display_name"`
	Address     struct {
		State         string `json:"state"`
		StateDistrict string `json:"state_district"`
		County        string `json:"county"`
		City          string `json:"city"`
	} `json:"address"`
	Error string `json:"error"`
}

// Reverse looks up the address of a coordinate
func (c *GeocodeClient) Reverse(ctx context.Context, lat, lng float64) (*Place, error) {
	q := url.Values{}
	q.Set("format", "json")
	q.Set("lat", strconv.FormatFloat(lat, 'f', 6, 64))
	q.Set("lon", strconv.FormatFloat(lng, 'f', 6, 64))

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.baseURL+"/reverse?"+q.Encode(), nil)
	if err != nil {
		return nil, err
	}
	req.Header.Set("User-Agent", "citizenvoice-api")

	resp, err := c.http.Do(req)
	if err != nil {
		return nil, unavailable("geocoding", err)
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		return nil, unavailable("geocoding", fmt.Errorf("status %d", resp.StatusCode))
	}

	var r nominatimReverse
	if err := json.NewDecoder(resp.Body).Decode(&r); err != nil {
		return nil, unavailable("geocoding", err)
	}
	if r.Error != "" || r.DisplayName == "" {
		return nil, unavailable("geocoding", fmt.Errorf("no result: %s", r.Error))
	}

	district := r.Address.StateDistrict
	for _, alt := range []string{r.Address.County, r.Address.City} {
		if district == "" {
			district = alt
		}
	}
	return &Place{Address: r.DisplayName, State: r.Address.State, District: district}, nil
}
