package imaging

import (
	"context"
	"log/slog"
	"strings"

	"loom/internal/config"
	"loom/internal/logging"
	"loom/internal/queue"
	"loom/internal/results"
	"loom/internal/services/imagery"
	"loom/internal/stage"
)

const maxImages = 5

// SearchClient describes the image sourcing surface the stage needs.
type SearchClient interface {
	Search(ctx context.Context, query string, limit int) ([]imagery.Image, error)
	Configured() bool
}

// Imager sources product image candidates. The stage is optional: it skips
// itself when the imagery service is not configured.
type Imager struct {
	cfg    *config.Config
	logger *slog.Logger
	client SearchClient
}

// NewImager constructs the imaging stage handler using default dependencies.
func NewImager(cfg *config.Config, logger *slog.Logger) *Imager {
	return NewImagerWithClient(cfg, logger, imagery.NewClient(cfg))
}

// NewImagerWithClient allows injecting the service client (used in tests).
func NewImagerWithClient(cfg *config.Config, logger *slog.Logger, client SearchClient) *Imager {
	return &Imager{
		cfg:    cfg,
		logger: logging.NewComponentLogger(logger, "imaging"),
		client: client,
	}
}

// ShouldRun reports whether the stage can do useful work for this item.
func (i *Imager) ShouldRun(ctx context.Context, item *queue.Item) (bool, error) {
	return i.client.Configured(), nil
}

func (i *Imager) Prepare(ctx context.Context, item *queue.Item) error {
	item.ProgressMessage = "Sourcing product images"
	return nil
}

func (i *Imager) Execute(ctx context.Context, exchange *stage.Exchange) (results.Payload, error) {
	query := stage.OptionalString(exchange.Output("draft"), "title")
	if query == "" {
		query = strings.TrimSpace(exchange.Item.Title)
	}
	if query == "" {
		// Nothing to search with; an empty image set is a valid outcome for
		// an optional stage.
		return results.Payload{"images": []any{}}, nil
	}

	found, err := i.client.Search(ctx, query, maxImages)
	if err != nil {
		return nil, err
	}
	exchange.Report(100, "Images sourced")
	logging.WithContext(ctx, i.logger).Info("images sourced",
		logging.Int("count", len(found)),
	)

	urls := make([]any, 0, len(found))
	for _, image := range found {
		urls = append(urls, image.URL)
	}
	return results.Payload{"images": urls}, nil
}

func (i *Imager) HealthCheck(ctx context.Context) stage.Health {
	if !i.client.Configured() {
		return stage.Unhealthy("images", "imagery.url is not configured; stage will be skipped")
	}
	return stage.Healthy("images")
}
