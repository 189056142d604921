// Package geocode turns a postal address into coordinates.
package geocode

import (
	"context"
	"encoding/json"
	"fmt"
	"log"
	"math"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/Shivanand-hulikatti/cofeast/internal/model"
)

// ArcGIS resolves addresses with the ArcGIS World findAddressCandidates
// endpoint and keeps the best candidate only.
type ArcGIS struct {
	endpoint string
	client   *http.Client
}

// NewArcGIS returns a client for endpoint. A nil client gets a 5s timeout.
func NewArcGIS(endpoint string, client *http.Client) *ArcGIS {
	if client == nil {
		client = &http.Client{Timeout: 5 * time.Second}
	}
	return &ArcGIS{endpoint: endpoint, client: client}
}

// minScore is the lowest ArcGIS match score accepted. Weaker candidates
// usually match only the city or street.
const minScore = 80

type candidatesResponse struct {
	Candidates []struct {
		Location struct {
			X float64 `json:"x"`
			Y float64 `json:"y"`
		} `json:"location"`
		Score float64 `json:"score"`
	} `json:"candidates"`
}

// Resolve returns the coordinates of address. Any failure, including no
// match, yields false and is logged; callers store the event without a
// location.
func (a *ArcGIS) Resolve(ctx context.Context, address string) (model.Coordinates, bool) {
	address = strings.TrimSpace(address)
	if address == "" {
		return model.Coordinates{}, false
	}

	c, err := a.lookup(ctx, address)
	if err != nil {
		log.Printf("WARN: geocode %q: %v", address, err)
		return model.Coordinates{}, false
	}
	return c, true
}

func (a *ArcGIS) lookup(ctx context.Context, address string) (model.Coordinates, error) {
	q := url.Values{}
	q.Set("SingleLine", address)
	q.Set("f", "json")
	q.Set("outSR", `{"wkid":4326}`)
	q.Set("maxLocations", "1")

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, a.endpoint+"?"+q.Encode(), nil)
	if err != nil {
		return model.Coordinates{}, fmt.Errorf("build request: %w", err)
	}
	resp, err := a.client.Do(req)
	if err != nil {
		return model.Coordinates{}, fmt.Errorf("request: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return model.Coordinates{}, fmt.Errorf("status %d", resp.StatusCode)
	}

	var body candidatesResponse
	if err := json.NewDecoder(resp.Body).Decode(&body); err != nil {
		return model.Coordinates{}, fmt.Errorf("decode: %w", err)
	}
	if len(body.Candidates) == 0 {
		return model.Coordinates{}, fmt.Errorf("no candidates")
	}

	best := body.Candidates[0]
	if best.Score < minScore {
		return model.Coordinates{}, fmt.Errorf("best candidate score %.0f below %d", best.Score, minScore)
	}
	loc := best.Location
	return model.Coordinates{Latitude: round6(loc.Y), Longitude: round6(loc.X)}, nil
}

func round6(v float64) float64 {
	return math.Round(v*1e6) / 1e6
}

// None never resolves anything.
type None struct{}

func (None) Resolve(context.Context, string) (model.Coordinates, bool) {
	return model.Coordinates{}, false
}
