package geo

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"net/netip"
	"strings"
	"time"

	"github.com/DioGolang/GoTracker/internal/domain/entity"
	"github.com/sony/gobreaker"
)

const (
	DefaultIPAPIURL = "http://ip-api.com"
	ipAPIFields     = "status,message,country,city,lat,lon,query"
)

type ipAPIResponse struct {
	Status  string  `json:"status"`
	Message string  `json:"message"`
	Country string  `json:"country"`
	City    string  `json:"city"`
	Lat     float64 `json:"lat"`
	Lon     float64 `json:"lon"`
	Query   string  `json:"query"`
}

// IPAPILocator queries the ip-api.com JSON endpoint.
type IPAPILocator struct {
	baseURL string
	client  *http.Client
	cb      *gobreaker.CircuitBreaker
}

func NewIPAPILocator(baseURL string, client *http.Client) *IPAPILocator {
	if baseURL == "" {
		baseURL = DefaultIPAPIURL
	}
	if client == nil {
		client = &http.Client{Timeout: 5 * time.Second}
	}
	return &IPAPILocator{
		baseURL: strings.TrimRight(baseURL, "/"),
		client:  client,
		cb: gobreaker.NewCircuitBreaker(gobreaker.Settings{
			Name:        "ip-api",
			MaxRequests: 1,
			Timeout:     30 * time.Second,
			ReadyToTrip: func(counts gobreaker.Counts) bool {
				return counts.ConsecutiveFailures >= 5
			},
			// A bad address is the caller's fault, not the provider's.
			IsSuccessful: func(err error) bool {
				return err == nil || errors.Is(err, entity.ErrResolutionInvalid)
			},
		}),
	}
}

func (l *IPAPILocator) Locate(ctx context.Context, ip netip.Addr) (entity.GeoRecord, error) {
	res, err := l.cb.Execute(func() (interface{}, error) {
		return l.lookup(ctx, ip)
	})
	if err != nil {
		if errors.Is(err, gobreaker.ErrOpenState) || errors.Is(err, gobreaker.ErrTooManyRequests) {
			return entity.GeoRecord{}, fmt.Errorf("%w: ip-api breaker: %w", entity.ErrResolutionUnavailable, err)
		}
		return entity.GeoRecord{}, err
	}

	body := res.(ipAPIResponse)
	rec, err := entity.NewGeoRecord(body.Lat, body.Lon, entity.GeoSourceIP,
		entity.WithSourceIP(ip.String()),
		entity.WithPlace(body.Country, body.City),
	)
	if err != nil {
		return entity.GeoRecord{}, fmt.Errorf("%w: ip-api returned %f,%f: %w", entity.ErrResolutionUnavailable, body.Lat, body.Lon, err)
	}
	return rec, nil
}

func (l *IPAPILocator) lookup(ctx context.Context, ip netip.Addr) (ipAPIResponse, error) {
	url := fmt.Sprintf("%s/json/%s?fields=%s", l.baseURL, ip.String(), ipAPIFields)
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return ipAPIResponse{}, err
	}

	resp, err := l.client.Do(req)
	if err != nil {
		return ipAPIResponse{}, fmt.Errorf("%w: %w", entity.ErrResolutionUnavailable, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return ipAPIResponse{}, fmt.Errorf("%w: ip-api status %d", entity.ErrResolutionUnavailable, resp.StatusCode)
	}

	var body ipAPIResponse
	if err := json.NewDecoder(resp.Body).Decode(&body); err != nil {
		return ipAPIResponse{}, fmt.Errorf("%w: decode ip-api response: %w", entity.ErrResolutionUnavailable, err)
	}
	if body.Status != "success" {
		if body.Message == "invalid query" {
			return ipAPIResponse{}, fmt.Errorf("%w: ip-api: %s", entity.ErrResolutionInvalid, body.Message)
		}
		return ipAPIResponse{}, fmt.Errorf("%w: ip-api: %s", entity.ErrResolutionUnavailable, body.Message)
	}
	return body, nil
}
