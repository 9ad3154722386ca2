package service

import (
	"encoding/json"
	"errors"
	"fmt"
	"math"

	"github.com/DioGolang/GoTracker/internal/application/usecase/location"
	"google.golang.org/protobuf/types/known/structpb"
)

var errMissingOrigin = errors.New("latitude and longitude are required")

func decodeNearestInput(req *structpb.Struct) (location.NearestInput, error) {
	f := req.GetFields()
	lat, okLat := numberField(f, "latitude")
	lng, okLng := numberField(f, "longitude")
	if !okLat || !okLng {
		return location.NearestInput{}, errMissingOrigin
	}
	in := location.NearestInput{Latitude: lat, Longitude: lng}
	if k, ok := numberField(f, "k"); ok {
		if k != math.Trunc(k) {
			return location.NearestInput{}, fmt.Errorf("k must be an integer, got %v", k)
		}
		if k < 0 || k > math.MaxInt32 {
			return location.NearestInput{}, fmt.Errorf("k out of range, got %v", k)
		}
		in.K = int(k)
	}
	if r, ok := numberField(f, "max_radius_km"); ok {
		in.MaxRadiusKm = r
	}
	return in, nil
}

func numberField(f map[string]*structpb.Value, key string) (float64, bool) {
	v, ok := f[key]
	if !ok {
		return 0, false
	}
	n, ok := v.GetKind().(*structpb.Value_NumberValue)
	if !ok {
		return 0, false
	}
	return n.NumberValue, true
}

func encodeNearestOutput(out location.NearestOutput) (*structpb.Struct, error) {
	if out.Drivers == nil {
		out.Drivers = []location.NearestDriver{}
	}
	return toStruct(out)
}

func encodeDriverOutput(out location.DriverOutput) (*structpb.Struct, error) {
	return toStruct(out)
}

func decodeNearestOutput(s *structpb.Struct) (location.NearestOutput, error) {
	var out location.NearestOutput
	return out, fromStruct(s, &out)
}

func decodeDriverOutput(s *structpb.Struct) (location.DriverOutput, error) {
	var out location.DriverOutput
	return out, fromStruct(s, &out)
}

// toStruct goes through the JSON form of v so the wire fields follow the
// json tags of the use case DTOs.
func toStruct(v any) (*structpb.Struct, error) {
	raw, err := json.Marshal(v)
	if err != nil {
		return nil, fmt.Errorf("encode response: %w", err)
	}
	var m map[string]any
	if err := json.Unmarshal(raw, &m); err != nil {
		return nil, fmt.Errorf("encode response: %w", err)
	}
	return structpb.NewStruct(m)
}

func fromStruct(s *structpb.Struct, v any) error {
	raw, err := json.Marshal(s.AsMap())
	if err != nil {
		return fmt.Errorf("decode response: %w", err)
	}
	if err := json.Unmarshal(raw, v); err != nil {
		return fmt.Errorf("decode response: %w", err)
	}
	return nil
}
