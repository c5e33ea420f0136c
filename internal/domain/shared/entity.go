package shared

import (
	"time"

	"github.com/google/uuid"
)

// BaseEntity is the identity and timestamps every stored row carries.
// Values built from it are views of a row as read by one call; nothing
// keeps them in sync with the store afterwards, so callers re-read
// instead of holding on to them across operations.
type BaseEntity struct {
	ID        uuid.UUID `gorm:"type:uuid;primaryKey" json:"id"`
	CreatedAt time.Time `gorm:"not null;index" json:"created_at"`
	UpdatedAt time.Time `gorm:"not null" json:"updated_at"`
}

// NewBaseEntity stamps a row that has not been inserted yet. CreatedAt
// doubles as the default listing order.
func NewBaseEntity() BaseEntity {
	now := time.Now()
	return BaseEntity{
		ID:        uuid.New(),
		CreatedAt: now,
		UpdatedAt: now,
	}
}

// Touch records a local edit on the view. The store sets its own
// updated_at on Update, so this only matters before Insert.
func (e *BaseEntity) Touch() {
	e.UpdatedAt = time.Now()
}
