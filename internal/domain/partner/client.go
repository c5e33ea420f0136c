package partner

import (
	"regexp"
	"strings"

	"github.com/erp/crm/internal/domain/shared"
	"github.com/google/uuid"
	"gorm.io/datatypes"
)

// Classification tells individuals and organizations apart
type Classification string

const (
	ClassificationIndividual   Classification = "individual"   // 11-digit document
	ClassificationOrganization Classification = "organization" // 14-digit document
)

// Client is a business record. Tags is a denormalized copy of tag names held
// in the tag registry; it is rewritten by tag rename/delete cascades.
type Client struct {
	shared.BaseEntity
	Name           string                      `gorm:"type:varchar(200);not null" json:"name"`
	Classification Classification              `gorm:"type:varchar(20);not null" json:"classification"`
	Document       string                      `gorm:"type:varchar(14);not null;index" json:"document"`
	Email          string                      `gorm:"type:varchar(200)" json:"email,omitempty"`
	Phone          string                      `gorm:"type:varchar(50)" json:"phone,omitempty"`
	Attributes     datatypes.JSONMap           `json:"attributes,omitempty"`
	Tags           datatypes.JSONSlice[string] `gorm:"not null" json:"tags"`
	GroupID        *uuid.UUID                  `gorm:"type:uuid;index" json:"group_id,omitempty"`
}

// TableName returns the table name for GORM
func (Client) TableName() string {
	return "clients"
}

// NewClient creates a client after validating name and document
func NewClient(name string, classification Classification, document string) (*Client, error) {
	name = strings.TrimSpace(name)
	if err := validateClientName(name); err != nil {
		return nil, err
	}
	normalized, err := ValidateDocument(classification, document)
	if err != nil {
		return nil, err
	}

	return &Client{
		BaseEntity:     shared.NewBaseEntity(),
		Name:           name,
		Classification: classification,
		Document:       normalized,
		Attributes:     datatypes.JSONMap{},
		Tags:           datatypes.JSONSlice[string]{},
	}, nil
}

// Rename changes the display name
func (c *Client) Rename(name string) error {
	name = strings.TrimSpace(name)
	if err := validateClientName(name); err != nil {
		return err
	}
	c.Name = name
	c.Touch()
	return nil
}

// SetDocument re-validates the document against a (possibly new) classification
func (c *Client) SetDocument(classification Classification, document string) error {
	normalized, err := ValidateDocument(classification, document)
	if err != nil {
		return err
	}
	c.Classification = classification
	c.Document = normalized
	c.Touch()
	return nil
}

// SetContact sets email and phone, either may be empty
func (c *Client) SetContact(email, phone string) error {
	if email != "" {
		if err := validateEmail(email); err != nil {
			return err
		}
	}
	if phone != "" {
		if err := validatePhone(phone); err != nil {
			return err
		}
	}
	c.Email = strings.ToLower(email)
	c.Phone = phone
	c.Touch()
	return nil
}

// SetAttributes replaces the free-form attributes
func (c *Client) SetAttributes(attrs map[string]any) {
	if attrs == nil {
		attrs = map[string]any{}
	}
	c.Attributes = datatypes.JSONMap(attrs)
	c.Touch()
}

// SetTags replaces the tag set. Names are trimmed and de-duplicated.
func (c *Client) SetTags(tags []string) {
	c.Tags = TagSet(tags)
	c.Touch()
}

// AssignGroup sets or clears the economic group reference
func (c *Client) AssignGroup(groupID *uuid.UUID) {
	c.GroupID = groupID
	c.Touch()
}

// HasTag reports whether the exact tag name is on the client
func (c *Client) HasTag(name string) bool {
	for _, t := range c.Tags {
		if t == name {
			return true
		}
	}
	return false
}

// TagNames returns a copy of the tag set
func (c *Client) TagNames() []string {
	return append([]string{}, c.Tags...)
}

// IsIndividual returns true if the client is a person
func (c *Client) IsIndividual() bool {
	return c.Classification == ClassificationIndividual
}

// IsOrganization returns true if the client is a company
func (c *Client) IsOrganization() bool {
	return c.Classification == ClassificationOrganization
}

func validateClientName(name string) error {
	if name == "" {
		return shared.NewValidationError("INVALID_NAME", "Client name cannot be empty")
	}
	if len(name) > 200 {
		return shared.NewValidationError("INVALID_NAME", "Client name cannot exceed 200 characters")
	}
	return nil
}

var (
	validPhone = regexp.MustCompile(`^[\d\s\-\(\)\+]+$`)
	validEmail = regexp.MustCompile(`^[a-zA-Z0-9._%+\-]+@[a-zA-Z0-9.\-]+\.[a-zA-Z]{2,}$`)
)

func validatePhone(phone string) error {
	if len(phone) > 50 {
		return shared.NewValidationError("INVALID_PHONE", "Phone number cannot exceed 50 characters")
	}
	if !validPhone.MatchString(phone) {
		return shared.NewValidationError("INVALID_PHONE", "Invalid phone number format")
	}
	return nil
}

func validateEmail(email string) error {
	if len(email) > 200 {
		return shared.NewValidationError("INVALID_EMAIL", "Email cannot exceed 200 characters")
	}
	if !validEmail.MatchString(email) {
		return shared.NewValidationError("INVALID_EMAIL", "Invalid email format")
	}
	return nil
}
