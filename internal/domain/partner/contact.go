package partner

import (
	"strings"

	"github.com/erp/crm/internal/domain/shared"
	"gorm.io/datatypes"
)

// Channel is a preferred way of reaching a contact
type Channel string

const (
	ChannelEmail    Channel = "email"
	ChannelPhone    Channel = "phone"
	ChannelWhatsApp Channel = "whatsapp"
	ChannelGroup    Channel = "group"
)

// IsValid checks if the channel is known
func (c Channel) IsValid() bool {
	switch c {
	case ChannelEmail, ChannelPhone, ChannelWhatsApp, ChannelGroup:
		return true
	}
	return false
}

// Contact is a person reachable on behalf of one or more clients.
// It has its own lifecycle and may exist without links.
type Contact struct {
	shared.BaseEntity
	Name     string                      `gorm:"type:varchar(200);not null" json:"name"`
	Email    string                      `gorm:"type:varchar(200)" json:"email,omitempty"`
	Phone    string                      `gorm:"type:varchar(50)" json:"phone,omitempty"`
	Channels datatypes.JSONSlice[string] `gorm:"not null" json:"channels"`
	Notes    string                      `gorm:"type:text" json:"notes,omitempty"`
}

// TableName returns the table name for GORM
func (Contact) TableName() string {
	return "contacts"
}

// NewContact creates a contact
func NewContact(name string) (*Contact, error) {
	name = strings.TrimSpace(name)
	if name == "" {
		return nil, shared.NewValidationError("INVALID_NAME", "Contact name cannot be empty")
	}
	if len(name) > 200 {
		return nil, shared.NewValidationError("INVALID_NAME", "Contact name cannot exceed 200 characters")
	}
	return &Contact{
		BaseEntity: shared.NewBaseEntity(),
		Name:       name,
		Channels:   datatypes.JSONSlice[string]{},
	}, nil
}

// SetContact sets email and phone
func (c *Contact) SetContact(email, phone string) error {
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

// SetChannels replaces the channel preferences
func (c *Contact) SetChannels(channels []string) error {
	normalized := make([]string, 0, len(channels))
	seen := make(map[string]struct{}, len(channels))
	for _, ch := range channels {
		ch = strings.ToLower(strings.TrimSpace(ch))
		if !Channel(ch).IsValid() {
			return shared.NewValidationError("INVALID_CHANNEL", "Unknown communication channel: "+ch)
		}
		if _, ok := seen[ch]; ok {
			continue
		}
		seen[ch] = struct{}{}
		normalized = append(normalized, ch)
	}
	c.Channels = datatypes.JSONSlice[string](normalized)
	c.Touch()
	return nil
}

// SetNotes sets free-text notes
func (c *Contact) SetNotes(notes string) {
	c.Notes = notes
	c.Touch()
}
