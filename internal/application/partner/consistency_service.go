package partner

import (
	"context"
	"errors"
	"fmt"
	"reflect"
	"strings"
	"time"

	"github.com/erp/crm/internal/domain/partner"
	"github.com/erp/crm/internal/domain/shared"
	"github.com/erp/crm/internal/infrastructure/logger"
	"github.com/erp/crm/internal/infrastructure/telemetry"
	"github.com/go-playground/validator/v10"
	"github.com/google/uuid"
	"go.uber.org/zap"
)

// Stores is the set of row stores the service works over
type Stores struct {
	Clients  partner.ClientStore
	Contacts partner.ContactStore
	Links    partner.LinkStore
	Tags     partner.TagStore
	Groups   partner.GroupStore
}

// ConsistencyService is the entry point for every operation that touches
// more than one row. It validates input, then delegates to the group
// resolver, the tag registry and the link manager.
type ConsistencyService struct {
	stores   Stores
	groups   *GroupResolver
	tags     *TagRegistry
	links    *LinkManager
	validate *validator.Validate
	logger   *zap.Logger
	metrics  *telemetry.RelationsMetrics
}

// NewConsistencyService wires the service and its components over stores
func NewConsistencyService(stores Stores, logger *zap.Logger, metrics *telemetry.RelationsMetrics) *ConsistencyService {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &ConsistencyService{
		stores:   stores,
		groups:   NewGroupResolver(stores.Groups, stores.Clients, logger.Named("group_resolver"), metrics),
		tags:     NewTagRegistry(stores.Tags, stores.Clients, logger.Named("tag_registry"), metrics),
		links:    NewLinkManager(stores.Links, stores.Clients, stores.Contacts, logger.Named("link_manager")),
		validate: newValidator(),
		logger:   logger,
		metrics:  metrics,
	}
}

// Groups returns the group resolver
func (s *ConsistencyService) Groups() *GroupResolver { return s.groups }

// Tags returns the tag registry
func (s *ConsistencyService) Tags() *TagRegistry { return s.tags }

// Links returns the link manager
func (s *ConsistencyService) Links() *LinkManager { return s.links }

// newValidator reads the same `binding` tags gin validates at the edge
func newValidator() *validator.Validate {
	v := validator.New(validator.WithRequiredStructEnabled())
	v.SetTagName("binding")
	v.RegisterTagNameFunc(func(fld reflect.StructField) string {
		name := strings.SplitN(fld.Tag.Get("json"), ",", 2)[0]
		if name == "-" {
			return ""
		}
		return name
	})
	return v
}

func (s *ConsistencyService) validateRequest(req any) error {
	err := s.validate.Struct(req)
	if err == nil {
		return nil
	}
	var fieldErrs validator.ValidationErrors
	if errors.As(err, &fieldErrs) && len(fieldErrs) > 0 {
		parts := make([]string, 0, len(fieldErrs))
		for _, fe := range fieldErrs {
			parts = append(parts, fmt.Sprintf("%s failed on '%s'", fe.Namespace(), fe.Tag()))
		}
		return shared.NewValidationError("", "Invalid request: "+strings.Join(parts, "; "))
	}
	return shared.NewValidationError("", err.Error())
}

// =============================================================================
// Clients
// =============================================================================

// CreateClient validates and stores a new client. Tags must already be in
// the registry; a group name is resolved (and created if new).
func (s *ConsistencyService) CreateClient(ctx context.Context, req CreateClientRequest) (*ClientResponse, error) {
	if err := s.validateRequest(req); err != nil {
		return nil, err
	}

	ctx, span := telemetry.StartServiceSpan(ctx, "consistency_service", "create_client")
	defer span.End()

	client, err := partner.NewClient(req.Name, partner.Classification(req.Classification), req.Document)
	if err != nil {
		return nil, err
	}
	if req.Email != "" || req.Phone != "" {
		if err := client.SetContact(req.Email, req.Phone); err != nil {
			return nil, err
		}
	}
	client.SetAttributes(req.Attributes)

	tags := partner.NormalizeTags(req.Tags)
	if err := s.tags.RequireAll(ctx, tags); err != nil {
		return nil, err
	}
	client.SetTags(tags)

	if strings.TrimSpace(req.GroupName) != "" {
		group, err := s.groups.Resolve(ctx, req.GroupName)
		if err != nil {
			return nil, err
		}
		client.AssignGroup(&group.ID)
	}

	created, err := s.stores.Clients.Insert(ctx, client)
	if err != nil {
		telemetry.RecordError(span, err)
		return nil, err
	}
	s.logger.Info("Client created", zap.String("client_id", created.ID.String()))

	resp := ToClientResponse(created)
	return &resp, nil
}

// UpdateClient applies the non-nil fields of req
func (s *ConsistencyService) UpdateClient(ctx context.Context, id uuid.UUID, req UpdateClientRequest) (*ClientResponse, error) {
	if err := s.validateRequest(req); err != nil {
		return nil, err
	}

	ctx, span := telemetry.StartServiceSpan(ctx, "consistency_service", "update_client",
		telemetry.WithAttribute(telemetry.SpanAttrClientID, id.String()))
	defer span.End()

	client, err := s.stores.Clients.Get(ctx, id)
	if err != nil {
		return nil, err
	}

	fields := shared.Fields{}
	if req.Name != nil {
		if err := client.Rename(*req.Name); err != nil {
			return nil, err
		}
		fields[partner.ColName] = client.Name
	}
	if req.Classification != nil || req.Document != nil {
		classification, document := client.Classification, client.Document
		if req.Classification != nil {
			classification = partner.Classification(*req.Classification)
		}
		if req.Document != nil {
			document = *req.Document
		}
		if err := client.SetDocument(classification, document); err != nil {
			return nil, err
		}
		fields[partner.ColClassification] = string(client.Classification)
		fields[partner.ColDocument] = client.Document
	}
	if req.Email != nil || req.Phone != nil {
		email, phone := client.Email, client.Phone
		if req.Email != nil {
			email = *req.Email
		}
		if req.Phone != nil {
			phone = *req.Phone
		}
		if err := client.SetContact(email, phone); err != nil {
			return nil, err
		}
		fields[partner.ColEmail] = client.Email
		fields[partner.ColPhone] = client.Phone
	}
	if req.Attributes != nil {
		client.SetAttributes(*req.Attributes)
		fields[partner.ColAttributes] = client.Attributes
	}
	if req.Tags != nil {
		tags := partner.NormalizeTags(*req.Tags)
		if err := s.tags.RequireAll(ctx, tags); err != nil {
			return nil, err
		}
		fields[partner.ColTags] = partner.TagSet(tags)
	}
	if req.GroupName != nil {
		if strings.TrimSpace(*req.GroupName) == "" {
			fields[partner.ColGroupID] = nil
		} else {
			group, err := s.groups.Resolve(ctx, *req.GroupName)
			if err != nil {
				return nil, err
			}
			fields[partner.ColGroupID] = group.ID
		}
	}

	updated, err := s.stores.Clients.Update(ctx, id, fields)
	if err != nil {
		telemetry.RecordError(span, err)
		return nil, err
	}
	resp := ToClientResponse(updated)
	return &resp, nil
}

// GetClient returns a client with its group and links. A group reference
// to a deleted group reads as no group.
func (s *ConsistencyService) GetClient(ctx context.Context, id uuid.UUID) (*ClientDetailResponse, error) {
	client, err := s.stores.Clients.Get(ctx, id)
	if err != nil {
		return nil, err
	}

	detail := &ClientDetailResponse{ClientResponse: ToClientResponse(client)}
	if client.GroupID != nil {
		group, err := s.groups.Get(ctx, *client.GroupID)
		switch {
		case err == nil:
			g := ToGroupResponse(group)
			detail.Group = &g
		case isNotFound(err):
			detail.GroupID = nil
		default:
			return nil, err
		}
	}

	links, err := s.links.ListByClient(ctx, id)
	if err != nil {
		return nil, err
	}
	detail.Links = ToLinkResponses(links)
	return detail, nil
}

// ListClients returns every client, or those carrying query.Tag when it is
// set, in the requested order
func (s *ConsistencyService) ListClients(ctx context.Context, query ListClientsQuery) ([]ClientResponse, error) {
	filter := shared.RowFilter{}.SortBy(query.SortBy, query.SortOrder)
	if tag := strings.TrimSpace(query.Tag); tag != "" {
		filter = filter.Contains(partner.ColTags, tag)
	}
	clients, err := s.stores.Clients.Find(ctx, filter)
	if err != nil {
		return nil, err
	}
	return ToClientResponses(clients), nil
}

// DeleteClient removes every link of the client and then the client. The
// client row stays when any link could not be removed.
func (s *ConsistencyService) DeleteClient(ctx context.Context, id uuid.UUID) (*shared.CascadeReport, error) {
	ctx, span := telemetry.StartServiceSpan(ctx, "consistency_service", "delete_client",
		telemetry.WithAttribute(telemetry.SpanAttrClientID, id.String()))
	defer span.End()

	if _, err := s.stores.Clients.Get(ctx, id); err != nil {
		return nil, err
	}
	links, err := s.links.ListByClient(ctx, id)
	if err != nil {
		return nil, err
	}

	report := s.deleteLinks(ctx, OpClientDelete, links)
	if err := report.Err(); err != nil {
		telemetry.RecordError(span, err)
		return report, err
	}
	if err := s.stores.Clients.Delete(ctx, id); err != nil {
		return report, err
	}
	s.logger.Info("Client deleted",
		zap.String("client_id", id.String()),
		zap.Int("links_removed", len(report.Succeeded)))
	return report, nil
}

// =============================================================================
// Contacts
// =============================================================================

// CreateContactWithLinks stores a contact and then links it to each
// requested client. Link failures do not undo the contact: the response is
// returned together with a *shared.PartialCascadeError naming them.
func (s *ConsistencyService) CreateContactWithLinks(ctx context.Context, req CreateContactRequest) (*ContactWithLinksResponse, error) {
	if err := s.validateRequest(req); err != nil {
		return nil, err
	}

	ctx, span := telemetry.StartServiceSpan(ctx, "consistency_service", "create_contact")
	defer span.End()

	contact, err := partner.NewContact(req.Name)
	if err != nil {
		return nil, err
	}
	if err := contact.SetContact(req.Email, req.Phone); err != nil {
		return nil, err
	}
	if err := contact.SetChannels(req.Channels); err != nil {
		return nil, err
	}
	contact.SetNotes(req.Notes)

	created, err := s.stores.Contacts.Insert(ctx, contact)
	if err != nil {
		telemetry.RecordError(span, err)
		return nil, err
	}

	resp := &ContactWithLinksResponse{
		Contact: ToContactResponse(created),
		Links:   make([]LinkResponse, 0, len(req.Links)),
	}
	ctx = logger.WithCascade(ctx, OpContactCreate)
	report := shared.NewCascadeReport(OpContactCreate)
	start := time.Now()
	for _, l := range req.Links {
		key := partner.PairKey{ClientID: l.ClientID, ContactID: created.ID}.String()
		link, err := s.links.Link(ctx, l.ClientID, created.ID, l.Attributes())
		if err != nil {
			report.Fail(key, err)
			continue
		}
		report.Ok(key)
		resp.Links = append(resp.Links, ToLinkResponse(link))
	}
	s.recordCascade(ctx, report, start)

	if err := report.Err(); err != nil {
		telemetry.RecordError(span, err)
		return resp, err
	}
	return resp, nil
}

// GetContact returns a contact
func (s *ConsistencyService) GetContact(ctx context.Context, id uuid.UUID) (*ContactResponse, error) {
	contact, err := s.stores.Contacts.Get(ctx, id)
	if err != nil {
		return nil, err
	}
	resp := ToContactResponse(contact)
	return &resp, nil
}

// UpdateContactLinks makes the contact's links match desired: links to
// clients not in desired are removed, changed ones updated, new ones
// created. Each step is independent; failures are collected.
func (s *ConsistencyService) UpdateContactLinks(ctx context.Context, contactID uuid.UUID, req UpdateContactLinksRequest) (*shared.CascadeReport, error) {
	if err := s.validateRequest(req); err != nil {
		return nil, err
	}

	ctx, span := telemetry.StartServiceSpan(ctx, "consistency_service", "update_contact_links",
		telemetry.WithAttribute(telemetry.SpanAttrContactID, contactID.String()))
	defer span.End()

	desired := make(map[uuid.UUID]partner.LinkAttributes, len(req.Links))
	order := make([]uuid.UUID, 0, len(req.Links))
	for _, l := range req.Links {
		if _, dup := desired[l.ClientID]; dup {
			return nil, shared.NewValidationError("DUPLICATE_LINK",
				fmt.Sprintf("Client %s appears more than once", l.ClientID))
		}
		desired[l.ClientID] = l.Attributes()
		order = append(order, l.ClientID)
	}

	if _, err := s.stores.Contacts.Get(ctx, contactID); err != nil {
		return nil, err
	}
	current, err := s.links.ListByContact(ctx, contactID)
	if err != nil {
		return nil, err
	}
	existing := make(map[uuid.UUID]partner.Link, len(current))
	for _, l := range current {
		existing[l.ClientID] = l
	}

	ctx = logger.WithCascade(ctx, OpContactSyncLinks)
	report := shared.NewCascadeReport(OpContactSyncLinks)
	start := time.Now()

	for _, l := range current {
		if _, keep := desired[l.ClientID]; keep {
			continue
		}
		s.step(report, l.Key(), s.links.Unlink(ctx, l.ClientID, contactID))
	}
	for _, clientID := range order {
		attrs := desired[clientID]
		key := partner.PairKey{ClientID: clientID, ContactID: contactID}
		link, ok := existing[clientID]
		switch {
		case !ok:
			_, err := s.links.Link(ctx, clientID, contactID, attrs)
			s.step(report, key, err)
		case link.Attributes() != attrs:
			_, err := s.links.UpdateLink(ctx, clientID, contactID, attrs)
			s.step(report, key, err)
		}
	}
	s.recordCascade(ctx, report, start)

	if err := report.Err(); err != nil {
		telemetry.RecordError(span, err)
		return report, err
	}
	return report, nil
}

// DeleteContact removes every link of the contact and then the contact
func (s *ConsistencyService) DeleteContact(ctx context.Context, id uuid.UUID) (*shared.CascadeReport, error) {
	ctx, span := telemetry.StartServiceSpan(ctx, "consistency_service", "delete_contact",
		telemetry.WithAttribute(telemetry.SpanAttrContactID, id.String()))
	defer span.End()

	if _, err := s.stores.Contacts.Get(ctx, id); err != nil {
		return nil, err
	}
	links, err := s.links.ListByContact(ctx, id)
	if err != nil {
		return nil, err
	}

	report := s.deleteLinks(ctx, OpContactDelete, links)
	if err := report.Err(); err != nil {
		telemetry.RecordError(span, err)
		return report, err
	}
	if err := s.stores.Contacts.Delete(ctx, id); err != nil {
		return report, err
	}
	s.logger.Info("Contact deleted",
		zap.String("contact_id", id.String()),
		zap.Int("links_removed", len(report.Succeeded)))
	return report, nil
}

// =============================================================================
// Links
// =============================================================================

// Link links an existing contact to an existing client
func (s *ConsistencyService) Link(ctx context.Context, req CreateLinkRequest) (*LinkResponse, error) {
	if err := s.validateRequest(req); err != nil {
		return nil, err
	}
	link, err := s.links.Link(ctx, req.ClientID, req.ContactID, req.Attributes())
	if err != nil {
		return nil, err
	}
	resp := ToLinkResponse(link)
	return &resp, nil
}

// Unlink removes a link
func (s *ConsistencyService) Unlink(ctx context.Context, clientID, contactID uuid.UUID) error {
	return s.links.Unlink(ctx, clientID, contactID)
}

// SetPrincipal makes the contact the client's principal contact
func (s *ConsistencyService) SetPrincipal(ctx context.Context, clientID, contactID uuid.UUID) (*LinkResponse, error) {
	link, err := s.links.SetPrincipal(ctx, clientID, contactID)
	if err != nil {
		return nil, err
	}
	resp := ToLinkResponse(link)
	return &resp, nil
}

// UpdateLink changes the attributes of a link
func (s *ConsistencyService) UpdateLink(ctx context.Context, clientID, contactID uuid.UUID, req LinkRequest) (*LinkResponse, error) {
	if err := s.validateRequest(req); err != nil {
		return nil, err
	}
	link, err := s.links.UpdateLink(ctx, clientID, contactID, req.Attributes())
	if err != nil {
		return nil, err
	}
	resp := ToLinkResponse(link)
	return &resp, nil
}

// =============================================================================
// Tags
// =============================================================================

// CreateTag adds a tag to the registry
func (s *ConsistencyService) CreateTag(ctx context.Context, req CreateTagRequest) (*TagResponse, error) {
	if err := s.validateRequest(req); err != nil {
		return nil, err
	}
	tag, err := s.tags.Create(ctx, req.Name)
	if err != nil {
		return nil, err
	}
	resp := ToTagResponse(tag)
	return &resp, nil
}

// RenameTag renames a tag everywhere
func (s *ConsistencyService) RenameTag(ctx context.Context, oldName string, req RenameTagRequest) (*shared.CascadeReport, error) {
	if err := s.validateRequest(req); err != nil {
		return nil, err
	}
	return s.tags.Rename(ctx, oldName, req.NewName)
}

// DeleteTag removes a tag everywhere
func (s *ConsistencyService) DeleteTag(ctx context.Context, name string) (*shared.CascadeReport, error) {
	return s.tags.Delete(ctx, name)
}

// ListTagsWithUsage returns registry entries with client counts
func (s *ConsistencyService) ListTagsWithUsage(ctx context.Context) ([]partner.TagUsage, error) {
	return s.tags.ListWithUsage(ctx)
}

// =============================================================================
// Economic groups
// =============================================================================

// ResolveGroup finds or creates a group by name
func (s *ConsistencyService) ResolveGroup(ctx context.Context, req ResolveGroupRequest) (*GroupResponse, error) {
	if err := s.validateRequest(req); err != nil {
		return nil, err
	}
	group, err := s.groups.Resolve(ctx, req.Name)
	if err != nil {
		return nil, err
	}
	resp := ToGroupResponse(group)
	return &resp, nil
}

// GetGroup returns a group
func (s *ConsistencyService) GetGroup(ctx context.Context, id uuid.UUID) (*GroupResponse, error) {
	group, err := s.groups.Get(ctx, id)
	if err != nil {
		return nil, err
	}
	resp := ToGroupResponse(group)
	return &resp, nil
}

// ListGroups returns every group
func (s *ConsistencyService) ListGroups(ctx context.Context) ([]GroupResponse, error) {
	groups, err := s.groups.List(ctx)
	if err != nil {
		return nil, err
	}
	return ToGroupResponses(groups), nil
}

// RenameGroup renames a group
func (s *ConsistencyService) RenameGroup(ctx context.Context, id uuid.UUID, name string) (*GroupResponse, error) {
	return s.UpdateGroup(ctx, id, UpdateGroupRequest{Name: &name})
}

// UpdateGroup changes a group's name and/or description
func (s *ConsistencyService) UpdateGroup(ctx context.Context, id uuid.UUID, req UpdateGroupRequest) (*GroupResponse, error) {
	if err := s.validateRequest(req); err != nil {
		return nil, err
	}
	group, err := s.groups.Update(ctx, id, req)
	if err != nil {
		return nil, err
	}
	resp := ToGroupResponse(group)
	return &resp, nil
}

// DeleteGroup removes a group without touching its members
func (s *ConsistencyService) DeleteGroup(ctx context.Context, id uuid.UUID) error {
	return s.groups.Delete(ctx, id)
}

// ListGroupMembers returns the clients of a group
func (s *ConsistencyService) ListGroupMembers(ctx context.Context, id uuid.UUID) ([]ClientResponse, error) {
	clients, err := s.groups.ListMembers(ctx, id)
	if err != nil {
		return nil, err
	}
	return ToClientResponses(clients), nil
}

// =============================================================================
// helpers
// =============================================================================

func (s *ConsistencyService) deleteLinks(ctx context.Context, operation string, links []partner.Link) *shared.CascadeReport {
	ctx = logger.WithCascade(ctx, operation)
	report := shared.NewCascadeReport(operation)
	start := time.Now()
	for _, l := range links {
		if err := ctx.Err(); err != nil {
			report.Fail(l.Key().String(), err)
			continue
		}
		s.step(report, l.Key(), s.stores.Links.Delete(ctx, l.ID))
	}
	s.recordCascade(ctx, report, start)
	return report
}

func (s *ConsistencyService) step(report *shared.CascadeReport, key partner.PairKey, err error) {
	if err != nil {
		s.logger.Warn("Link cascade write failed",
			zap.String("operation", report.Operation),
			zap.String("link", key.String()),
			zap.Error(err))
		report.Fail(key.String(), err)
		return
	}
	report.Ok(key.String())
}

func (s *ConsistencyService) recordCascade(ctx context.Context, report *shared.CascadeReport, start time.Time) {
	s.metrics.RecordCascade(ctx, report.Operation, len(report.Succeeded), len(report.Failed), time.Since(start))
	if len(report.Failed) > 0 {
		s.logger.Warn("Cascade partially applied",
			zap.String("operation", report.Operation),
			zap.Int("succeeded", len(report.Succeeded)),
			zap.Int("failed", len(report.Failed)))
	}
}

func isNotFound(err error) bool {
	return errors.Is(err, shared.ErrNotFound)
}
