package partner

import (
	"github.com/erp/crm/internal/domain/shared"
	"github.com/google/uuid"
)

// Link associates a contact with a client. At most one link per client may
// have IsPrincipal set.
type Link struct {
	shared.BaseEntity
	ClientID    uuid.UUID `gorm:"type:uuid;not null;uniqueIndex:idx_client_contacts_pair,priority:1" json:"client_id"`
	ContactID   uuid.UUID `gorm:"type:uuid;not null;uniqueIndex:idx_client_contacts_pair,priority:2;index" json:"contact_id"`
	Role        string    `gorm:"type:varchar(100)" json:"role,omitempty"`
	Notes       string    `gorm:"type:text" json:"notes,omitempty"`
	NotifyEmail bool      `gorm:"not null;default:false" json:"notify_email"`
	NotifyPhone bool      `gorm:"not null;default:false" json:"notify_phone"`
	NotifyGroup bool      `gorm:"not null;default:false" json:"notify_group"`
	IsPrincipal bool      `gorm:"not null;default:false;index" json:"is_principal"`
}

// TableName returns the table name for GORM
func (Link) TableName() string {
	return "client_contacts"
}

// LinkAttributes are the mutable attributes of a link
type LinkAttributes struct {
	Role        string `json:"role"`
	Notes       string `json:"notes"`
	NotifyEmail bool   `json:"notify_email"`
	NotifyPhone bool   `json:"notify_phone"`
	NotifyGroup bool   `json:"notify_group"`
	IsPrincipal bool   `json:"is_principal"`
}

// NewLink creates a link. The principal flag is applied by the caller after
// existing principals of the client have been cleared.
func NewLink(clientID, contactID uuid.UUID, attrs LinkAttributes) (*Link, error) {
	if clientID == uuid.Nil {
		return nil, shared.NewValidationError("INVALID_CLIENT", "Client ID cannot be empty")
	}
	if contactID == uuid.Nil {
		return nil, shared.NewValidationError("INVALID_CONTACT", "Contact ID cannot be empty")
	}
	return &Link{
		BaseEntity:  shared.NewBaseEntity(),
		ClientID:    clientID,
		ContactID:   contactID,
		Role:        attrs.Role,
		Notes:       attrs.Notes,
		NotifyEmail: attrs.NotifyEmail,
		NotifyPhone: attrs.NotifyPhone,
		NotifyGroup: attrs.NotifyGroup,
		IsPrincipal: attrs.IsPrincipal,
	}, nil
}

// Attributes returns the link's mutable attributes
func (l *Link) Attributes() LinkAttributes {
	return LinkAttributes{
		Role:        l.Role,
		Notes:       l.Notes,
		NotifyEmail: l.NotifyEmail,
		NotifyPhone: l.NotifyPhone,
		NotifyGroup: l.NotifyGroup,
		IsPrincipal: l.IsPrincipal,
	}
}

// Fields returns the non-principal attributes as store columns.
// The principal flag is never written through here.
func (a LinkAttributes) Fields() shared.Fields {
	return shared.Fields{
		ColRole:        a.Role,
		ColNotes:       a.Notes,
		ColNotifyEmail: a.NotifyEmail,
		ColNotifyPhone: a.NotifyPhone,
		ColNotifyGroup: a.NotifyGroup,
	}
}

// SameDetails reports whether two attribute sets differ only in the principal flag
func (a LinkAttributes) SameDetails(b LinkAttributes) bool {
	a.IsPrincipal, b.IsPrincipal = false, false
	return a == b
}

// PairKey identifies a link by its endpoints
type PairKey struct {
	ClientID  uuid.UUID
	ContactID uuid.UUID
}

// Key returns the link's pair key
func (l *Link) Key() PairKey {
	return PairKey{ClientID: l.ClientID, ContactID: l.ContactID}
}

// String formats the pair for cascade reports
func (k PairKey) String() string {
	return k.ClientID.String() + "/" + k.ContactID.String()
}
