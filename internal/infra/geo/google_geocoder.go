package geo

import (
	"context"
	"fmt"
	"slices"

	"googlemaps.github.io/maps"
)

// GoogleReverseGeocoder names places through the Google Geocoding API.
type GoogleReverseGeocoder struct {
	client *maps.Client
}

func NewGoogleReverseGeocoder(apiKey string, opts ...maps.ClientOption) (*GoogleReverseGeocoder, error) {
	client, err := maps.NewClient(append([]maps.ClientOption{maps.WithAPIKey(apiKey)}, opts...)...)
	if err != nil {
		return nil, fmt.Errorf("failed to create maps client: %w", err)
	}
	return &GoogleReverseGeocoder{client: client}, nil
}

func (g *GoogleReverseGeocoder) Place(ctx context.Context, lat, lon float64) (string, string, error) {
	results, err := g.client.ReverseGeocode(ctx, &maps.GeocodingRequest{
		LatLng:     &maps.LatLng{Lat: lat, Lng: lon},
		ResultType: []string{"locality", "country"},
	})
	if err != nil {
		return "", "", fmt.Errorf("geocoding api error: %w", err)
	}

	var country, city string
	for _, res := range results {
		for _, comp := range res.AddressComponents {
			switch {
			case country == "" && slices.Contains(comp.Types, "country"):
				country = comp.LongName
			case city == "" && (slices.Contains(comp.Types, "locality") || slices.Contains(comp.Types, "postal_town")):
				city = comp.LongName
			}
		}
		if country != "" && city != "" {
			break
		}
	}
	return country, city, nil
}
