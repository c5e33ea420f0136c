package persistence

import (
	"fmt"

	"github.com/erp/crm/internal/domain/partner"
	"gorm.io/gorm"
)

// Models returns every model owned by this service
func Models() []any {
	return []any{
		&partner.Client{},
		&partner.Contact{},
		&partner.Link{},
		&partner.Tag{},
		&partner.EconomicGroup{},
	}
}

// AutoMigrate creates or updates the schema. Production deployments use the
// SQL migrations; this serves tests and sqlite installs. Case-insensitive
// group uniqueness comes from the unique name_key index declared on the
// model.
func AutoMigrate(db *gorm.DB) error {
	if err := db.AutoMigrate(Models()...); err != nil {
		return fmt.Errorf("failed to auto-migrate: %w", err)
	}
	return nil
}
