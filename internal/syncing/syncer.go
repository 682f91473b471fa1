package syncing

import (
	"context"
	"log/slog"
	"strings"

	"loom/internal/config"
	"loom/internal/conflicts"
	"loom/internal/logging"
	"loom/internal/queue"
	"loom/internal/results"
	"loom/internal/services/platform"
	"loom/internal/stage"
)

// CatalogClient describes the platform surface the stage needs.
type CatalogClient interface {
	CreateRecord(ctx context.Context, record *platform.Record) (string, error)
	UpdateRecord(ctx context.Context, record *platform.Record) error
	FindBySKU(ctx context.Context, sku string) (*platform.Record, error)
	Ping(ctx context.Context) error
	Configured() bool
}

// Syncer publishes the accumulated workflow output to the commerce platform
// as a catalog record. It is the final stage and the only one that mutates
// shared external state, so all natural-key conflict handling lives here.
type Syncer struct {
	cfg       *config.Config
	logger    *slog.Logger
	client    CatalogClient
	persister *conflicts.Persister
}

// NewSyncer constructs the sync stage handler using default dependencies.
func NewSyncer(cfg *config.Config, logger *slog.Logger) *Syncer {
	return NewSyncerWithClient(cfg, logger, platform.NewClient(cfg))
}

// NewSyncerWithClient allows injecting the platform client (used in tests).
func NewSyncerWithClient(cfg *config.Config, logger *slog.Logger, client CatalogClient) *Syncer {
	return &Syncer{
		cfg:       cfg,
		logger:    logging.NewComponentLogger(logger, "syncing"),
		client:    client,
		persister: conflicts.NewPersister(&recordStore{client: client}, cfg),
	}
}

func (s *Syncer) Prepare(ctx context.Context, item *queue.Item) error {
	item.ProgressMessage = "Publishing catalog record"
	return nil
}

func (s *Syncer) Execute(ctx context.Context, exchange *stage.Exchange) (results.Payload, error) {
	item := exchange.Item
	logger := logging.WithContext(ctx, s.logger)

	draft := exchange.Output("draft")
	title, err := stage.StringField(draft, "sync", "title")
	if err != nil {
		return nil, err
	}

	record := &conflicts.Record{
		NaturalKey: conflicts.Normalize(title),
		Title:      title,
		Fields:     buildFields(item, exchange),
	}

	// A record already published for this SKU makes the sync an update; its
	// current slug is the key that must survive any collision.
	existing, err := s.client.FindBySKU(ctx, item.EntityID)
	if err != nil {
		return nil, err
	}
	if existing != nil {
		record.ExternalID = existing.ID
		record.CurrentKey = existing.Slug
	}

	exchange.Report(40, "Persisting catalog record")
	persisted, err := s.persister.Persist(ctx, item.ID, record)
	if err != nil {
		return nil, err
	}

	item.NaturalKey = persisted.NaturalKey
	exchange.Report(100, "Catalog record published")
	logger.Info("catalog record published",
		logging.String("external_id", persisted.ExternalID),
		logging.String("slug", persisted.NaturalKey),
		logging.Bool("updated", existing != nil),
	)

	return results.Payload{
		"externalId": persisted.ExternalID,
		"slug":       persisted.NaturalKey,
	}, nil
}

func (s *Syncer) HealthCheck(ctx context.Context) stage.Health {
	if !s.client.Configured() {
		return stage.Unhealthy("sync", "platform.url is not configured")
	}
	if err := s.client.Ping(ctx); err != nil {
		return stage.Unhealthy("sync", err.Error())
	}
	return stage.Healthy("sync")
}

// buildFields flattens the accumulated stage outputs into the record fields
// the platform accepts. Enrichment output wins over the draft where both
// produced a value.
func buildFields(item *queue.Item, exchange *stage.Exchange) map[string]any {
	draft := exchange.Output("draft")
	enriched := exchange.Output("enrich")
	images := exchange.Output("images")

	description := stage.OptionalString(enriched, "description")
	if description == "" {
		description = stage.OptionalString(draft, "description")
	}

	fields := map[string]any{
		"sku":         item.EntityID,
		"description": description,
		"category":    stage.OptionalString(enriched, "category"),
	}
	if keywords, ok := enriched["keywords"].([]any); ok {
		fields["keywords"] = keywords
	}
	if urls, ok := images["images"].([]any); ok {
		fields["images"] = urls
	}
	return fields
}

// recordStore adapts the platform client to the conflict persister.
type recordStore struct {
	client CatalogClient
}

func (r *recordStore) Create(ctx context.Context, record *conflicts.Record) (string, error) {
	return r.client.CreateRecord(ctx, toPlatformRecord(record))
}

func (r *recordStore) Update(ctx context.Context, record *conflicts.Record) error {
	return r.client.UpdateRecord(ctx, toPlatformRecord(record))
}

func toPlatformRecord(record *conflicts.Record) *platform.Record {
	out := &platform.Record{
		ID:    record.ExternalID,
		Slug:  record.NaturalKey,
		Title: record.Title,
	}
	if sku, ok := record.Fields["sku"].(string); ok {
		out.SKU = sku
	}
	if description, ok := record.Fields["description"].(string); ok {
		out.Description = description
	}
	if category, ok := record.Fields["category"].(string); ok {
		out.Category = category
	}
	if keywords, ok := record.Fields["keywords"].([]any); ok {
		for _, keyword := range keywords {
			if text, ok := keyword.(string); ok && strings.TrimSpace(text) != "" {
				out.Keywords = append(out.Keywords, text)
			}
		}
	}
	if images, ok := record.Fields["images"].([]any); ok {
		for _, image := range images {
			if url, ok := image.(string); ok && url != "" {
				out.Images = append(out.Images, url)
			}
		}
	}
	return out
}
