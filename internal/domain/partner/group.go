package partner

import (
	"strings"

	"github.com/erp/crm/internal/domain/shared"
)

// EconomicGroup clusters clients that belong to the same economic unit.
// Name is unique under case-insensitive comparison. The store enforces it
// with a unique index on NameKey, the Unicode-folded name.
type EconomicGroup struct {
	shared.BaseEntity
	Name        string `gorm:"type:varchar(200);not null" json:"name"`
	NameKey     string `gorm:"column:name_key;type:text;not null;uniqueIndex:idx_economic_groups_name_key" json:"-"`
	Description string `gorm:"type:text" json:"description,omitempty"`
}

// TableName returns the table name for GORM
func (EconomicGroup) TableName() string {
	return "economic_groups"
}

// NewEconomicGroup creates a group
func NewEconomicGroup(name string) (*EconomicGroup, error) {
	name, err := ValidateGroupName(name)
	if err != nil {
		return nil, err
	}
	return &EconomicGroup{
		BaseEntity: shared.NewBaseEntity(),
		Name:       name,
		NameKey:    shared.FoldKey(name),
	}, nil
}

// ValidateGroupName trims and checks a group name
func ValidateGroupName(name string) (string, error) {
	name = strings.TrimSpace(name)
	if name == "" {
		return "", shared.NewValidationError("INVALID_GROUP_NAME", "Group name cannot be empty")
	}
	if len(name) > 200 {
		return "", shared.NewValidationError("INVALID_GROUP_NAME", "Group name cannot exceed 200 characters")
	}
	return name, nil
}
