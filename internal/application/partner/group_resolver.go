package partner

import (
	"context"
	"errors"
	"fmt"

	"github.com/erp/crm/internal/domain/partner"
	"github.com/erp/crm/internal/domain/shared"
	"github.com/erp/crm/internal/infrastructure/telemetry"
	"github.com/google/uuid"
	"go.uber.org/zap"
)

// GroupNameConflictCode is returned when a group name matches another group
// under case-insensitive comparison.
const GroupNameConflictCode = "GROUP_NAME_CONFLICT"

// GroupResolver maps economic group names to group rows, creating them on
// first use. Concurrent resolves of any case variant of a name converge on
// a single row; the unique index on the folded name decides the race.
type GroupResolver struct {
	groups  partner.GroupStore
	clients partner.ClientStore
	logger  *zap.Logger
	metrics *telemetry.RelationsMetrics
}

// NewGroupResolver creates a new GroupResolver
func NewGroupResolver(groups partner.GroupStore, clients partner.ClientStore, logger *zap.Logger, metrics *telemetry.RelationsMetrics) *GroupResolver {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &GroupResolver{
		groups:  groups,
		clients: clients,
		logger:  logger,
		metrics: metrics,
	}
}

// Resolve returns the group named name (ignoring case), creating it when
// none exists. A create that loses a race re-reads once.
func (r *GroupResolver) Resolve(ctx context.Context, name string) (*partner.EconomicGroup, error) {
	name, err := partner.ValidateGroupName(name)
	if err != nil {
		return nil, err
	}

	ctx, span := telemetry.StartServiceSpan(ctx, "group_resolver", "resolve",
		telemetry.WithAttribute(telemetry.SpanAttrGroupName, name))
	defer span.End()

	existing, err := r.findByName(ctx, name)
	if err != nil {
		telemetry.RecordError(span, err)
		return nil, err
	}
	if existing != nil {
		r.metrics.RecordGroupResolution(ctx, telemetry.ResolveFound)
		return existing, nil
	}

	group, err := partner.NewEconomicGroup(name)
	if err != nil {
		return nil, err
	}
	created, err := r.groups.Insert(ctx, group)
	if err == nil {
		r.metrics.RecordGroupResolution(ctx, telemetry.ResolveCreated)
		r.logger.Info("Economic group created",
			zap.String("group_id", created.ID.String()),
			zap.String("name", created.Name),
		)
		return created, nil
	}
	if !errors.Is(err, shared.ErrDuplicate) {
		telemetry.RecordError(span, err)
		return nil, shared.NewPersistenceError("failed to create economic group", err)
	}

	// Another writer created a case variant between our find and insert.
	telemetry.AddEvent(span, "name_conflict")
	winner, err := r.findByName(ctx, name)
	if err != nil {
		telemetry.RecordError(span, err)
		return nil, shared.NewPersistenceError("failed to re-read economic group after conflict", err)
	}
	if winner == nil {
		r.metrics.RecordGroupResolution(ctx, telemetry.ResolveConflict)
		err := shared.NewPersistenceError(
			fmt.Sprintf("economic group %q conflicted on create but could not be found", name), nil)
		telemetry.RecordError(span, err)
		r.logger.Error("Economic group conflict unresolved", zap.String("name", name))
		return nil, err
	}

	r.metrics.RecordGroupResolution(ctx, telemetry.ResolveReread)
	r.logger.Debug("Economic group resolved after conflict",
		zap.String("group_id", winner.ID.String()),
		zap.String("name", name),
	)
	return winner, nil
}

// Get returns a group by id
func (r *GroupResolver) Get(ctx context.Context, id uuid.UUID) (*partner.EconomicGroup, error) {
	return r.groups.Get(ctx, id)
}

// List returns every group, oldest first
func (r *GroupResolver) List(ctx context.Context) ([]partner.EconomicGroup, error) {
	return r.groups.Find(ctx, shared.RowFilter{})
}

// ListMembers returns the clients assigned to the group
func (r *GroupResolver) ListMembers(ctx context.Context, id uuid.UUID) ([]partner.Client, error) {
	if _, err := r.groups.Get(ctx, id); err != nil {
		return nil, err
	}
	return r.clients.Find(ctx, shared.Where(partner.ColGroupID, id))
}

// Rename changes a group's name
func (r *GroupResolver) Rename(ctx context.Context, id uuid.UUID, newName string) (*partner.EconomicGroup, error) {
	return r.Update(ctx, id, UpdateGroupRequest{Name: &newName})
}

// Update changes a group's name and/or description. A name matching
// another group ignoring case is rejected with GROUP_NAME_CONFLICT.
func (r *GroupResolver) Update(ctx context.Context, id uuid.UUID, req UpdateGroupRequest) (*partner.EconomicGroup, error) {
	ctx, span := telemetry.StartServiceSpan(ctx, "group_resolver", "update",
		telemetry.WithAttribute(telemetry.SpanAttrGroupID, id.String()))
	defer span.End()

	group, err := r.groups.Get(ctx, id)
	if err != nil {
		return nil, err
	}

	fields := shared.Fields{}
	if req.Name != nil {
		name, err := partner.ValidateGroupName(*req.Name)
		if err != nil {
			return nil, err
		}
		if name != group.Name {
			matches, err := r.groups.Find(ctx, shared.RowFilter{}.EqFold(partner.ColName, name))
			if err != nil {
				return nil, err
			}
			for _, m := range matches {
				if m.ID != id {
					return nil, groupNameConflict(name)
				}
			}
			fields[partner.ColName] = name
		}
	}
	if req.Description != nil {
		fields[partner.ColDescription] = *req.Description
	}
	if len(fields) == 0 {
		return group, nil
	}

	updated, err := r.groups.Update(ctx, id, fields)
	if errors.Is(err, shared.ErrDuplicate) {
		return nil, groupNameConflict(fmt.Sprint(fields[partner.ColName]))
	}
	if err != nil {
		telemetry.RecordError(span, err)
		return nil, err
	}
	return updated, nil
}

// Delete removes a group. Member clients are not touched; their group
// reference is treated as absent from then on.
func (r *GroupResolver) Delete(ctx context.Context, id uuid.UUID) error {
	if err := r.groups.Delete(ctx, id); err != nil {
		return err
	}
	r.logger.Info("Economic group deleted", zap.String("group_id", id.String()))
	return nil
}

// findByName returns the oldest group whose name matches ignoring case
func (r *GroupResolver) findByName(ctx context.Context, name string) (*partner.EconomicGroup, error) {
	matches, err := r.groups.Find(ctx, shared.RowFilter{}.EqFold(partner.ColName, name))
	if err != nil {
		return nil, err
	}
	for i := range matches {
		if partner.SameName(matches[i].Name, name) {
			return &matches[i], nil
		}
	}
	if len(matches) > 0 {
		return &matches[0], nil
	}
	return nil, nil
}

func groupNameConflict(name string) error {
	return shared.NewDuplicateError(GroupNameConflictCode,
		fmt.Sprintf("Economic group named %q already exists", name))
}
