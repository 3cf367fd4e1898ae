package website

import (
	"context"
	"net/http"

	"github.com/rs/zerolog/log"
	httpmiddleware "github.com/wolfeidau/vitameals/internal/http"
	"github.com/wolfeidau/vitameals/internal/models"
	"github.com/wolfeidau/vitameals/internal/store"
	"github.com/wolfeidau/vitameals/internal/telemetry"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"
)

// meteredActivity counts recorded activities and recording failures.
type meteredActivity struct {
	store.ActivityStore
}

func (m meteredActivity) Record(ctx context.Context, activity *models.Activity) error {
	metrics := telemetry.GetMetrics()
	attrs := metric.WithAttributes(attribute.String("kind", activity.Kind))

	if err := m.ActivityStore.Record(ctx, activity); err != nil {
		metrics.ActivityRecordErrorsTotal.Add(ctx, 1, attrs)
		return err
	}

	metrics.ActivityRecordedTotal.Add(ctx, 1, attrs)
	return nil
}

// recordActivity records an auth event. Failures are logged and never fail
// the request.
func (s *Site) recordActivity(r *http.Request, email, kind string) {
	if s.cfg.Activity == nil {
		return
	}

	err := s.cfg.Activity.Record(r.Context(), &models.Activity{
		Email:     email,
		Kind:      kind,
		Path:      r.URL.Path,
		IPAddress: httpmiddleware.ClientIPFromContext(r.Context()),
		UserAgent: r.UserAgent(),
	})
	if err != nil {
		log.Ctx(r.Context()).Warn().Err(err).Str("kind", kind).Msg("failed to record activity")
	}
}
