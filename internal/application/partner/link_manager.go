package partner

import (
	"context"
	"fmt"

	"github.com/erp/crm/internal/domain/partner"
	"github.com/erp/crm/internal/domain/shared"
	"github.com/erp/crm/internal/infrastructure/telemetry"
	"github.com/google/uuid"
	"go.uber.org/zap"
)

// LinkAlreadyExistsCode is returned when a client-contact pair is linked twice
const LinkAlreadyExistsCode = "LINK_ALREADY_EXISTS"

// LinkManager maintains client-contact links and the rule that a client has
// at most one principal contact. Every principal change clears the other
// principals of the client before setting the new one.
type LinkManager struct {
	links    partner.LinkStore
	clients  partner.ClientStore
	contacts partner.ContactStore
	logger   *zap.Logger
}

// NewLinkManager creates a new LinkManager
func NewLinkManager(links partner.LinkStore, clients partner.ClientStore, contacts partner.ContactStore, logger *zap.Logger) *LinkManager {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &LinkManager{
		links:    links,
		clients:  clients,
		contacts: contacts,
		logger:   logger,
	}
}

// Link creates a link between an existing client and an existing contact
func (m *LinkManager) Link(ctx context.Context, clientID, contactID uuid.UUID, attrs partner.LinkAttributes) (*partner.Link, error) {
	link, err := partner.NewLink(clientID, contactID, attrs)
	if err != nil {
		return nil, err
	}

	ctx, span := telemetry.StartServiceSpan(ctx, "link_manager", "link",
		telemetry.WithAttribute(telemetry.SpanAttrClientID, clientID.String()),
		telemetry.WithAttribute(telemetry.SpanAttrContactID, contactID.String()))
	defer span.End()

	if _, err := m.clients.Get(ctx, clientID); err != nil {
		return nil, err
	}
	if _, err := m.contacts.Get(ctx, contactID); err != nil {
		return nil, err
	}

	existing, err := m.findPair(ctx, clientID, contactID)
	if err != nil {
		return nil, err
	}
	if existing != nil {
		return nil, shared.NewDuplicateError(LinkAlreadyExistsCode,
			fmt.Sprintf("Contact %s is already linked to client %s", contactID, clientID))
	}

	if link.IsPrincipal {
		if err := m.clearPrincipals(ctx, clientID, uuid.Nil); err != nil {
			telemetry.RecordError(span, err)
			return nil, err
		}
	}

	created, err := m.links.Insert(ctx, link)
	if err != nil {
		telemetry.RecordError(span, err)
		return nil, err
	}
	m.logger.Debug("Contact linked",
		zap.String("client_id", clientID.String()),
		zap.String("contact_id", contactID.String()),
		zap.Bool("principal", created.IsPrincipal))
	return created, nil
}

// Unlink removes the link between a client and a contact
func (m *LinkManager) Unlink(ctx context.Context, clientID, contactID uuid.UUID) error {
	link, err := m.requirePair(ctx, clientID, contactID)
	if err != nil {
		return err
	}
	return m.links.Delete(ctx, link.ID)
}

// SetPrincipal makes the linked contact the client's only principal
// contact. It never creates a link. Calling it on the current sole
// principal writes nothing.
func (m *LinkManager) SetPrincipal(ctx context.Context, clientID, contactID uuid.UUID) (*partner.Link, error) {
	ctx, span := telemetry.StartServiceSpan(ctx, "link_manager", "set_principal",
		telemetry.WithAttribute(telemetry.SpanAttrClientID, clientID.String()),
		telemetry.WithAttribute(telemetry.SpanAttrContactID, contactID.String()))
	defer span.End()

	target, err := m.requirePair(ctx, clientID, contactID)
	if err != nil {
		return nil, err
	}

	if err := m.clearPrincipals(ctx, clientID, target.ID); err != nil {
		telemetry.RecordError(span, err)
		return nil, err
	}
	if target.IsPrincipal {
		return target, nil
	}

	updated, err := m.links.Update(ctx, target.ID, shared.Fields{partner.ColIsPrincipal: true})
	if err != nil {
		telemetry.RecordError(span, err)
		return nil, err
	}
	m.logger.Info("Principal contact set",
		zap.String("client_id", clientID.String()),
		zap.String("contact_id", contactID.String()))
	return updated, nil
}

// UpdateLink changes a link's attributes. Principal transitions go through
// SetPrincipal so the single-principal rule holds.
func (m *LinkManager) UpdateLink(ctx context.Context, clientID, contactID uuid.UUID, attrs partner.LinkAttributes) (*partner.Link, error) {
	link, err := m.requirePair(ctx, clientID, contactID)
	if err != nil {
		return nil, err
	}

	if !attrs.SameDetails(link.Attributes()) {
		if link, err = m.links.Update(ctx, link.ID, attrs.Fields()); err != nil {
			return nil, err
		}
	}

	switch {
	case attrs.IsPrincipal:
		return m.SetPrincipal(ctx, clientID, contactID)
	case link.IsPrincipal:
		return m.links.Update(ctx, link.ID, shared.Fields{partner.ColIsPrincipal: false})
	default:
		return link, nil
	}
}

// ListByClient returns the links of a client
func (m *LinkManager) ListByClient(ctx context.Context, clientID uuid.UUID) ([]partner.Link, error) {
	return m.links.Find(ctx, shared.Where(partner.ColClientID, clientID))
}

// ListByContact returns the links of a contact
func (m *LinkManager) ListByContact(ctx context.Context, contactID uuid.UUID) ([]partner.Link, error) {
	return m.links.Find(ctx, shared.Where(partner.ColContactID, contactID))
}

// clearPrincipals unsets the principal flag on every link of the client
// except keep, one write at a time. The first failure aborts.
func (m *LinkManager) clearPrincipals(ctx context.Context, clientID, keep uuid.UUID) error {
	principals, err := m.links.Find(ctx, shared.Where(partner.ColClientID, clientID).Eq(partner.ColIsPrincipal, true))
	if err != nil {
		return shared.NewPersistenceError("failed to read principal contacts", err)
	}
	for _, p := range principals {
		if p.ID == keep {
			continue
		}
		if _, err := m.links.Update(ctx, p.ID, shared.Fields{partner.ColIsPrincipal: false}); err != nil {
			m.logger.Warn("Failed to clear principal contact",
				zap.String("client_id", clientID.String()),
				zap.String("contact_id", p.ContactID.String()),
				zap.Error(err))
			return shared.NewPersistenceError("failed to clear principal contact", err)
		}
	}
	return nil
}

func (m *LinkManager) findPair(ctx context.Context, clientID, contactID uuid.UUID) (*partner.Link, error) {
	links, err := m.links.Find(ctx, shared.Where(partner.ColClientID, clientID).Eq(partner.ColContactID, contactID).WithLimit(1))
	if err != nil {
		return nil, err
	}
	if len(links) == 0 {
		return nil, nil
	}
	return &links[0], nil
}

func (m *LinkManager) requirePair(ctx context.Context, clientID, contactID uuid.UUID) (*partner.Link, error) {
	link, err := m.findPair(ctx, clientID, contactID)
	if err != nil {
		return nil, err
	}
	if link == nil {
		return nil, shared.NewNotFoundError(
			fmt.Sprintf("Contact %s is not linked to client %s", contactID, clientID))
	}
	return link, nil
}
