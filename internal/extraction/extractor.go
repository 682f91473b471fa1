package extraction

import (
	"context"
	"log/slog"
	"strings"

	"loom/internal/config"
	"loom/internal/logging"
	"loom/internal/queue"
	"loom/internal/results"
	"loom/internal/services"
	"loom/internal/services/extractor"
	"loom/internal/stage"
)

// DocumentClient describes the extraction service surface the stage needs.
type DocumentClient interface {
	Extract(ctx context.Context, sourceRef, payload string) (*extractor.Document, error)
	Configured() bool
}

// Extractor parses source product sheets into structured fields. It is the
// first pipeline stage; everything downstream builds on its output.
type Extractor struct {
	cfg    *config.Config
	logger *slog.Logger
	client DocumentClient
}

// NewExtractor constructs the extraction stage handler using default
// dependencies.
func NewExtractor(cfg *config.Config, logger *slog.Logger) *Extractor {
	return NewExtractorWithClient(cfg, logger, extractor.NewClient(cfg))
}

// NewExtractorWithClient allows injecting the service client (used in tests).
func NewExtractorWithClient(cfg *config.Config, logger *slog.Logger, client DocumentClient) *Extractor {
	return &Extractor{
		cfg:    cfg,
		logger: logging.NewComponentLogger(logger, "extraction"),
		client: client,
	}
}

func (e *Extractor) Prepare(ctx context.Context, item *queue.Item) error {
	item.ProgressMessage = "Extracting source document"
	return nil
}

func (e *Extractor) Execute(ctx context.Context, exchange *stage.Exchange) (results.Payload, error) {
	item := exchange.Item
	logger := logging.WithContext(ctx, e.logger)

	doc, err := e.client.Extract(ctx, item.SourceRef, item.PayloadJSON)
	if err != nil {
		return nil, err
	}
	if doc.SKU != item.EntityID {
		return nil, services.Wrap(services.ErrValidation, "extract", "verify document",
			"extracted sku "+doc.SKU+" does not match submitted entity "+item.EntityID, nil)
	}

	if strings.TrimSpace(item.Title) == "" {
		item.Title = doc.Title
	}
	exchange.Report(100, "Source document extracted")
	logger.Info("document extracted",
		logging.String("sku", doc.SKU),
		logging.Int("attributes", len(doc.Attributes)),
	)

	attributes := make(map[string]any, len(doc.Attributes))
	for key, value := range doc.Attributes {
		attributes[key] = value
	}
	return results.Payload{
		"sku":         doc.SKU,
		"title":       doc.Title,
		"description": doc.Description,
		"brand":       doc.Brand,
		"attributes":  attributes,
	}, nil
}

func (e *Extractor) HealthCheck(ctx context.Context) stage.Health {
	if !e.client.Configured() {
		return stage.Unhealthy("extract", "extractor.url is not configured")
	}
	return stage.Healthy("extract")
}
