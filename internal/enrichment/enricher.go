package enrichment

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"

	"loom/internal/config"
	"loom/internal/logging"
	"loom/internal/queue"
	"loom/internal/results"
	"loom/internal/services/enricher"
	"loom/internal/stage"
)

// ModelClient describes the enrichment model surface the stage needs.
type ModelClient interface {
	Enrich(ctx context.Context, draftJSON string) (*enricher.Enrichment, error)
	Configured() bool
}

// Enricher polishes drafted copy with the configured model: expanded
// description, search keywords, and a merchandising category.
type Enricher struct {
	cfg    *config.Config
	logger *slog.Logger
	client ModelClient
}

// NewEnricher constructs the enrichment stage handler using default
// dependencies.
func NewEnricher(cfg *config.Config, logger *slog.Logger) *Enricher {
	return NewEnricherWithClient(cfg, logger, enricher.NewClient(cfg))
}

// NewEnricherWithClient allows injecting the model client (used in tests).
func NewEnricherWithClient(cfg *config.Config, logger *slog.Logger, client ModelClient) *Enricher {
	return &Enricher{
		cfg:    cfg,
		logger: logging.NewComponentLogger(logger, "enrichment"),
		client: client,
	}
}

func (e *Enricher) Prepare(ctx context.Context, item *queue.Item) error {
	item.ProgressMessage = "Enriching catalog copy"
	return nil
}

func (e *Enricher) Execute(ctx context.Context, exchange *stage.Exchange) (results.Payload, error) {
	draft := exchange.Output("draft")
	if _, err := stage.StringField(draft, "enrich", "title"); err != nil {
		return nil, err
	}

	draftJSON, err := json.Marshal(draft)
	if err != nil {
		return nil, fmt.Errorf("encode draft payload: %w", err)
	}

	exchange.Report(25, "Waiting for enrichment model")
	enrichment, err := e.client.Enrich(ctx, string(draftJSON))
	if err != nil {
		return nil, err
	}
	exchange.Report(100, "Copy enriched")

	logging.WithContext(ctx, e.logger).Info("copy enriched",
		logging.String("category", enrichment.Category),
		logging.Int("keywords", len(enrichment.Keywords)),
	)

	keywords := make([]any, 0, len(enrichment.Keywords))
	for _, keyword := range enrichment.Keywords {
		keywords = append(keywords, keyword)
	}
	return results.Payload{
		"description": enrichment.Description,
		"keywords":    keywords,
		"category":    enrichment.Category,
	}, nil
}

func (e *Enricher) HealthCheck(ctx context.Context) stage.Health {
	if !e.client.Configured() {
		return stage.Unhealthy("enrich", "enricher.api_key is not configured")
	}
	return stage.Healthy("enrich")
}
