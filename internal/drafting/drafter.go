package drafting

import (
	"context"
	"fmt"
	"log/slog"
	"sort"
	"strings"

	"golang.org/x/text/cases"
	"golang.org/x/text/language"

	"loom/internal/config"
	"loom/internal/logging"
	"loom/internal/queue"
	"loom/internal/results"
	"loom/internal/stage"
)

var titleCaser = cases.Title(language.English)

// Drafter composes the initial catalog copy from the extracted document.
// It runs entirely in-process; the enrichment stage polishes its output.
type Drafter struct {
	cfg    *config.Config
	logger *slog.Logger
}

// NewDrafter constructs the drafting stage handler.
func NewDrafter(cfg *config.Config, logger *slog.Logger) *Drafter {
	return &Drafter{cfg: cfg, logger: logging.NewComponentLogger(logger, "drafting")}
}

func (d *Drafter) Prepare(ctx context.Context, item *queue.Item) error {
	item.ProgressMessage = "Drafting catalog copy"
	return nil
}

func (d *Drafter) Execute(ctx context.Context, exchange *stage.Exchange) (results.Payload, error) {
	extracted := exchange.Output("extract")
	title, err := stage.StringField(extracted, "draft", "title")
	if err != nil {
		return nil, err
	}

	description := stage.OptionalString(extracted, "description")
	brand := stage.OptionalString(extracted, "brand")
	bullets := attributeBullets(extracted)

	displayTitle := title
	if brand != "" && !strings.Contains(strings.ToLower(title), strings.ToLower(brand)) {
		displayTitle = brand + " " + title
	}
	if description == "" {
		description = fmt.Sprintf("%s. See specifications below.", displayTitle)
	}

	exchange.Report(100, "Draft composed")
	logging.WithContext(ctx, d.logger).Info("draft composed",
		logging.Int("bullets", len(bullets)),
	)

	return results.Payload{
		"title":       displayTitle,
		"description": description,
		"bullets":     bullets,
	}, nil
}

func (d *Drafter) HealthCheck(ctx context.Context) stage.Health {
	return stage.Healthy("draft")
}

// attributeBullets renders extracted attributes as stable, human-readable
// bullet lines. Sorted so repeated runs draft identical copy.
func attributeBullets(extracted results.Payload) []string {
	attributes, ok := extracted["attributes"].(map[string]any)
	if !ok || len(attributes) == 0 {
		return nil
	}
	keys := make([]string, 0, len(attributes))
	for key := range attributes {
		keys = append(keys, key)
	}
	sort.Strings(keys)

	bullets := make([]string, 0, len(keys))
	for _, key := range keys {
		value, ok := attributes[key].(string)
		if !ok || strings.TrimSpace(value) == "" {
			continue
		}
		label := strings.ReplaceAll(key, "_", " ")
		bullets = append(bullets, fmt.Sprintf("%s: %s", titleCaser.String(label), value))
	}
	return bullets
}
