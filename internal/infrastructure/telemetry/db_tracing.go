package telemetry

import (
	"fmt"

	"github.com/uptrace/opentelemetry-go-extra/otelgorm"
	"gorm.io/gorm"
)

// EnableQueryTracing registers the otelgorm plugin so every query becomes a
// child span of the request trace. Query variables are excluded from spans;
// invoice rows carry customer data that must not end up in the trace store.
func EnableQueryTracing(db *gorm.DB, dbName string) error {
	plugin := otelgorm.NewPlugin(
		otelgorm.WithDBName(dbName),
		otelgorm.WithoutQueryVariables(),
	)
	if err := db.Use(plugin); err != nil {
		return fmt.Errorf("failed to register query tracing: %w", err)
	}
	return nil
}
