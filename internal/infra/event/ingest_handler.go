package event

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/DioGolang/GoTracker/internal/application/usecase/location"
	"github.com/DioGolang/GoTracker/pkg/logger"
)

// NewIngestHandler decodes a JSON location report and feeds it to the ingest
// use case.
func NewIngestHandler(uc location.IngestUseCase, log logger.Logger) MessageHandler {
	return func(ctx context.Context, msg []byte, _ map[string]interface{}) error {
		var input location.IngestInput
		if err := json.Unmarshal(msg, &input); err != nil {
			return fmt.Errorf("%w: %w", ErrMalformedMessage, err)
		}
		out, err := uc.Execute(ctx, input)
		if err != nil {
			return err
		}
		log.Debug(ctx, "location report processed",
			logger.String("driver_id", out.DriverID),
			logger.String("status", out.Status),
		)
		return nil
	}
}
