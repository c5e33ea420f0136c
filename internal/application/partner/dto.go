package partner

import (
	"time"

	"github.com/erp/crm/internal/domain/partner"
	"github.com/google/uuid"
)

// =============================================================================
// Client DTOs
// =============================================================================

// ListClientsQuery filters and orders a client listing. Unknown sort columns
// fall back to creation order.
type ListClientsQuery struct {
	Tag       string `form:"tag"`
	SortBy    string `form:"sort_by"`
	SortOrder string `form:"sort_order" binding:"omitempty,oneof=asc desc ASC DESC"`
}

// CreateClientRequest represents a request to create a client
type CreateClientRequest struct {
	Name           string         `json:"name" binding:"required,min=1,max=200"`
	Classification string         `json:"classification" binding:"required,oneof=individual organization"`
	Document       string         `json:"document" binding:"required,max=32"`
	Email          string         `json:"email" binding:"omitempty,email,max=200"`
	Phone          string         `json:"phone" binding:"max=50"`
	Attributes     map[string]any `json:"attributes"`
	Tags           []string       `json:"tags" binding:"omitempty,dive,max=100"`
	GroupName      string         `json:"group_name" binding:"max=200"`
}

// UpdateClientRequest represents a request to update a client.
// Nil fields are left unchanged; an empty GroupName clears the group.
type UpdateClientRequest struct {
	Name           *string         `json:"name" binding:"omitempty,min=1,max=200"`
	Classification *string         `json:"classification" binding:"omitempty,oneof=individual organization"`
	Document       *string         `json:"document" binding:"omitempty,max=32"`
	Email          *string         `json:"email" binding:"omitempty,max=200"`
	Phone          *string         `json:"phone" binding:"omitempty,max=50"`
	Attributes     *map[string]any `json:"attributes"`
	Tags           *[]string       `json:"tags"`
	GroupName      *string         `json:"group_name" binding:"omitempty,max=200"`
}

// ClientResponse represents a client in API responses
type ClientResponse struct {
	ID             uuid.UUID      `json:"id"`
	Name           string         `json:"name"`
	Classification string         `json:"classification"`
	Document       string         `json:"document"`
	Email          string         `json:"email,omitempty"`
	Phone          string         `json:"phone,omitempty"`
	Attributes     map[string]any `json:"attributes,omitempty"`
	Tags           []string       `json:"tags"`
	GroupID        *uuid.UUID     `json:"group_id,omitempty"`
	CreatedAt      time.Time      `json:"created_at"`
	UpdatedAt      time.Time      `json:"updated_at"`
}

// ClientDetailResponse is a client with its group and links.
// Group is nil when the client has none or references a deleted group.
type ClientDetailResponse struct {
	ClientResponse
	Group *GroupResponse `json:"group"`
	Links []LinkResponse `json:"links"`
}

// ToClientResponse converts a domain Client to ClientResponse
func ToClientResponse(c *partner.Client) ClientResponse {
	return ClientResponse{
		ID:             c.ID,
		Name:           c.Name,
		Classification: string(c.Classification),
		Document:       c.Document,
		Email:          c.Email,
		Phone:          c.Phone,
		Attributes:     c.Attributes,
		Tags:           c.TagNames(),
		GroupID:        c.GroupID,
		CreatedAt:      c.CreatedAt,
		UpdatedAt:      c.UpdatedAt,
	}
}

// ToClientResponses converts a slice of domain Clients to ClientResponses
func ToClientResponses(clients []partner.Client) []ClientResponse {
	responses := make([]ClientResponse, len(clients))
	for i := range clients {
		responses[i] = ToClientResponse(&clients[i])
	}
	return responses
}

// =============================================================================
// Contact and Link DTOs
// =============================================================================

// LinkRequest carries the attributes of a client-contact link
type LinkRequest struct {
	Role        string `json:"role" binding:"max=100"`
	Notes       string `json:"notes" binding:"max=2000"`
	NotifyEmail bool   `json:"notify_email"`
	NotifyPhone bool   `json:"notify_phone"`
	NotifyGroup bool   `json:"notify_group"`
	IsPrincipal bool   `json:"is_principal"`
}

// Attributes converts the request to domain link attributes
func (r LinkRequest) Attributes() partner.LinkAttributes {
	return partner.LinkAttributes{
		Role:        r.Role,
		Notes:       r.Notes,
		NotifyEmail: r.NotifyEmail,
		NotifyPhone: r.NotifyPhone,
		NotifyGroup: r.NotifyGroup,
		IsPrincipal: r.IsPrincipal,
	}
}

// CreateLinkRequest links an existing contact to an existing client
type CreateLinkRequest struct {
	ClientID  uuid.UUID `json:"client_id" binding:"required"`
	ContactID uuid.UUID `json:"contact_id" binding:"required"`
	LinkRequest
}

// ContactLinkRequest is one desired link of a contact
type ContactLinkRequest struct {
	ClientID uuid.UUID `json:"client_id" binding:"required"`
	LinkRequest
}

// CreateContactRequest creates a contact together with its links
type CreateContactRequest struct {
	Name     string               `json:"name" binding:"required,min=1,max=200"`
	Email    string               `json:"email" binding:"omitempty,email,max=200"`
	Phone    string               `json:"phone" binding:"max=50"`
	Channels []string             `json:"channels" binding:"omitempty,dive,oneof=email phone whatsapp group"`
	Notes    string               `json:"notes" binding:"max=2000"`
	Links    []ContactLinkRequest `json:"links" binding:"omitempty,dive"`
}

// UpdateContactLinksRequest is the complete desired link set of a contact
type UpdateContactLinksRequest struct {
	Links []ContactLinkRequest `json:"links" binding:"omitempty,dive"`
}

// ContactResponse represents a contact in API responses
type ContactResponse struct {
	ID        uuid.UUID `json:"id"`
	Name      string    `json:"name"`
	Email     string    `json:"email,omitempty"`
	Phone     string    `json:"phone,omitempty"`
	Channels  []string  `json:"channels"`
	Notes     string    `json:"notes,omitempty"`
	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
}

// ContactWithLinksResponse is a created contact and the links that were made
type ContactWithLinksResponse struct {
	Contact ContactResponse `json:"contact"`
	Links   []LinkResponse  `json:"links"`
}

// ToContactResponse converts a domain Contact to ContactResponse
func ToContactResponse(c *partner.Contact) ContactResponse {
	return ContactResponse{
		ID:        c.ID,
		Name:      c.Name,
		Email:     c.Email,
		Phone:     c.Phone,
		Channels:  append([]string{}, c.Channels...),
		Notes:     c.Notes,
		CreatedAt: c.CreatedAt,
		UpdatedAt: c.UpdatedAt,
	}
}

// LinkResponse represents a client-contact link in API responses
type LinkResponse struct {
	ID          uuid.UUID `json:"id"`
	ClientID    uuid.UUID `json:"client_id"`
	ContactID   uuid.UUID `json:"contact_id"`
	Role        string    `json:"role,omitempty"`
	Notes       string    `json:"notes,omitempty"`
	NotifyEmail bool      `json:"notify_email"`
	NotifyPhone bool      `json:"notify_phone"`
	NotifyGroup bool      `json:"notify_group"`
	IsPrincipal bool      `json:"is_principal"`
	CreatedAt   time.Time `json:"created_at"`
	UpdatedAt   time.Time `json:"updated_at"`
}

// ToLinkResponse converts a domain Link to LinkResponse
func ToLinkResponse(l *partner.Link) LinkResponse {
	return LinkResponse{
		ID:          l.ID,
		ClientID:    l.ClientID,
		ContactID:   l.ContactID,
		Role:        l.Role,
		Notes:       l.Notes,
		NotifyEmail: l.NotifyEmail,
		NotifyPhone: l.NotifyPhone,
		NotifyGroup: l.NotifyGroup,
		IsPrincipal: l.IsPrincipal,
		CreatedAt:   l.CreatedAt,
		UpdatedAt:   l.UpdatedAt,
	}
}

// ToLinkResponses converts a slice of domain Links to LinkResponses
func ToLinkResponses(links []partner.Link) []LinkResponse {
	responses := make([]LinkResponse, len(links))
	for i := range links {
		responses[i] = ToLinkResponse(&links[i])
	}
	return responses
}

// =============================================================================
// Tag and Group DTOs
// =============================================================================

// CreateTagRequest creates a registry entry
type CreateTagRequest struct {
	Name string `json:"name" binding:"required,min=1,max=100"`
}

// RenameTagRequest renames a tag across the registry and every client
type RenameTagRequest struct {
	NewName string `json:"new_name" binding:"required,min=1,max=100"`
}

// TagResponse represents a registry entry in API responses
type TagResponse struct {
	ID        uuid.UUID `json:"id"`
	Name      string    `json:"name"`
	CreatedAt time.Time `json:"created_at"`
}

// ToTagResponse converts a domain Tag to TagResponse
func ToTagResponse(t *partner.Tag) TagResponse {
	return TagResponse{ID: t.ID, Name: t.Name, CreatedAt: t.CreatedAt}
}

// ResolveGroupRequest finds or creates a group by name
type ResolveGroupRequest struct {
	Name string `json:"name" binding:"required,min=1,max=200"`
}

// UpdateGroupRequest updates a group; nil fields are left unchanged
type UpdateGroupRequest struct {
	Name        *string `json:"name" binding:"omitempty,min=1,max=200"`
	Description *string `json:"description" binding:"omitempty,max=2000"`
}

// GroupResponse represents an economic group in API responses
type GroupResponse struct {
	ID          uuid.UUID `json:"id"`
	Name        string    `json:"name"`
	Description string    `json:"description,omitempty"`
	CreatedAt   time.Time `json:"created_at"`
	UpdatedAt   time.Time `json:"updated_at"`
}

// ToGroupResponse converts a domain EconomicGroup to GroupResponse
func ToGroupResponse(g *partner.EconomicGroup) GroupResponse {
	return GroupResponse{
		ID:          g.ID,
		Name:        g.Name,
		Description: g.Description,
		CreatedAt:   g.CreatedAt,
		UpdatedAt:   g.UpdatedAt,
	}
}

// ToGroupResponses converts a slice of domain groups to GroupResponses
func ToGroupResponses(groups []partner.EconomicGroup) []GroupResponse {
	responses := make([]GroupResponse, len(groups))
	for i := range groups {
		responses[i] = ToGroupResponse(&groups[i])
	}
	return responses
}
