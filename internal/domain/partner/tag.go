package partner

import (
	"strings"

	"github.com/erp/crm/internal/domain/shared"
	"gorm.io/datatypes"
)

// Tag is a registry entry. Its name is duplicated onto every client that
// carries it, so renames and deletes must cascade over clients.
// NameKey is the folded name the registry checks case variants against.
type Tag struct {
	shared.BaseEntity
	Name    string `gorm:"type:varchar(100);not null;uniqueIndex" json:"name"`
	NameKey string `gorm:"column:name_key;type:text;not null;index:idx_tags_name_key" json:"-"`
}

// TableName returns the table name for GORM
func (Tag) TableName() string {
	return "tags"
}

// TagUsage is a registry entry with the number of clients referencing it
type TagUsage struct {
	Name  string `json:"name"`
	Count int    `json:"count"`
}

// NewTag creates a registry entry
func NewTag(name string) (*Tag, error) {
	name, err := ValidateTagName(name)
	if err != nil {
		return nil, err
	}
	return &Tag{
		BaseEntity: shared.NewBaseEntity(),
		Name:       name,
		NameKey:    shared.FoldKey(name),
	}, nil
}

// ValidateTagName trims and checks a tag name
func ValidateTagName(name string) (string, error) {
	name = strings.TrimSpace(name)
	if name == "" {
		return "", shared.NewValidationError("INVALID_TAG_NAME", "Tag name cannot be empty")
	}
	if len(name) > 100 {
		return "", shared.NewValidationError("INVALID_TAG_NAME", "Tag name cannot exceed 100 characters")
	}
	return name, nil
}

// NormalizeTags trims names, drops empty ones and removes duplicates.
// Order is preserved.
func NormalizeTags(tags []string) []string {
	seen := make(map[string]struct{}, len(tags))
	result := make([]string, 0, len(tags))
	for _, t := range tags {
		trimmed := strings.TrimSpace(t)
		if trimmed == "" {
			continue
		}
		if _, ok := seen[trimmed]; ok {
			continue
		}
		seen[trimmed] = struct{}{}
		result = append(result, trimmed)
	}
	return result
}

// ReplaceTag returns tags with oldName swapped for newName, keeping the set
// free of duplicates when newName is already present.
func ReplaceTag(tags []string, oldName, newName string) []string {
	replaced := make([]string, 0, len(tags))
	for _, t := range tags {
		if t == oldName {
			t = newName
		}
		replaced = append(replaced, t)
	}
	return NormalizeTags(replaced)
}

// RemoveTag returns tags without name
func RemoveTag(tags []string, name string) []string {
	result := make([]string, 0, len(tags))
	for _, t := range tags {
		if t != name {
			result = append(result, t)
		}
	}
	return result
}

// TagSet converts tag names to the value stored in the clients.tags column
func TagSet(tags []string) datatypes.JSONSlice[string] {
	return datatypes.JSONSlice[string](NormalizeTags(tags))
}

// SameName compares two names under Unicode case folding
func SameName(a, b string) bool {
	return shared.FoldKey(a) == shared.FoldKey(b)
}
