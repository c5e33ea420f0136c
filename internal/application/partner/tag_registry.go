package partner

import (
	"context"
	"fmt"
	"sort"
	"strings"
	"time"

	"github.com/erp/crm/internal/domain/partner"
	"github.com/erp/crm/internal/domain/shared"
	"github.com/erp/crm/internal/infrastructure/logger"
	"github.com/erp/crm/internal/infrastructure/telemetry"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"
)

// Cascade operation names, used in reports and metrics
const (
	OpTagRename        = "tag.rename"
	OpTagDelete        = "tag.delete"
	OpClientDelete     = "client.delete"
	OpContactDelete    = "contact.delete"
	OpContactCreate    = "contact.create_links"
	OpContactSyncLinks = "contact.update_links"
)

// TagAlreadyExistsCode is returned when a tag name is taken, including by a
// name that differs only in case.
const TagAlreadyExistsCode = "TAG_ALREADY_EXISTS"

// TagRegistry owns the tag taxonomy and keeps the tag arrays denormalized
// onto clients in step with it.
//
// Rename writes the registry first and then every client; Delete cleans the
// clients first and removes the registry row last. Either can be re-run
// after a partial failure to finish the job.
type TagRegistry struct {
	tags    partner.TagStore
	clients partner.ClientStore
	logger  *zap.Logger
	metrics *telemetry.RelationsMetrics
}

// NewTagRegistry creates a new TagRegistry
func NewTagRegistry(tags partner.TagStore, clients partner.ClientStore, logger *zap.Logger, metrics *telemetry.RelationsMetrics) *TagRegistry {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &TagRegistry{
		tags:    tags,
		clients: clients,
		logger:  logger,
		metrics: metrics,
	}
}

// Create adds a registry entry
func (r *TagRegistry) Create(ctx context.Context, name string) (*partner.Tag, error) {
	tag, err := partner.NewTag(name)
	if err != nil {
		return nil, err
	}

	variants, err := r.tags.Find(ctx, shared.RowFilter{}.EqFold(partner.ColName, tag.Name))
	if err != nil {
		return nil, err
	}
	if len(variants) > 0 {
		return nil, tagExists(variants[0].Name)
	}

	created, err := r.tags.Insert(ctx, tag)
	if err != nil {
		return nil, err
	}
	r.logger.Info("Tag created", zap.String("tag", created.Name))
	return created, nil
}

// List returns every registry entry, oldest first
func (r *TagRegistry) List(ctx context.Context) ([]partner.Tag, error) {
	return r.tags.Find(ctx, shared.RowFilter{})
}

// RequireAll checks that every name is in the registry (exact match)
func (r *TagRegistry) RequireAll(ctx context.Context, names []string) error {
	names = partner.NormalizeTags(names)
	if len(names) == 0 {
		return nil
	}

	tags, err := r.tags.Find(ctx, shared.RowFilter{})
	if err != nil {
		return err
	}
	known := make(map[string]struct{}, len(tags))
	for _, t := range tags {
		known[t.Name] = struct{}{}
	}

	var missing []string
	for _, n := range names {
		if _, ok := known[n]; !ok {
			missing = append(missing, n)
		}
	}
	if len(missing) > 0 {
		return shared.NewNotFoundError("Unknown tags: " + strings.Join(missing, ", "))
	}
	return nil
}

// ListWithUsage returns every registry entry with the number of clients
// carrying it, most used first. Ties keep registry order.
func (r *TagRegistry) ListWithUsage(ctx context.Context) ([]partner.TagUsage, error) {
	ctx, span := telemetry.StartServiceSpan(ctx, "tag_registry", "list_with_usage")
	defer span.End()

	var (
		tags    []partner.Tag
		clients []partner.Client
	)
	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		var err error
		tags, err = r.tags.Find(gctx, shared.RowFilter{})
		return err
	})
	g.Go(func() error {
		var err error
		clients, err = r.clients.Find(gctx, shared.RowFilter{})
		return err
	})
	if err := g.Wait(); err != nil {
		telemetry.RecordError(span, err)
		return nil, err
	}

	counts := make(map[string]int, len(tags))
	for _, c := range clients {
		for _, name := range partner.NormalizeTags(c.Tags) {
			counts[name]++
		}
	}

	usage := make([]partner.TagUsage, len(tags))
	for i, t := range tags {
		usage[i] = partner.TagUsage{Name: t.Name, Count: counts[t.Name]}
	}
	sort.SliceStable(usage, func(i, j int) bool {
		return usage[i].Count > usage[j].Count
	})
	return usage, nil
}

// Rename renames a tag in the registry and then on every client carrying
// it. A registry conflict aborts before any client is written. Client write
// failures yield a *shared.PartialCascadeError; calling Rename again with
// the same arguments finishes the remaining clients.
func (r *TagRegistry) Rename(ctx context.Context, oldName, newName string) (*shared.CascadeReport, error) {
	oldName = strings.TrimSpace(oldName)
	newName, err := partner.ValidateTagName(newName)
	if err != nil {
		return nil, err
	}
	if oldName == "" {
		return nil, shared.NewValidationError("INVALID_TAG_NAME", "Tag name cannot be empty")
	}

	ctx, span := telemetry.StartServiceSpan(ctx, "tag_registry", "rename",
		telemetry.WithAttribute(telemetry.SpanAttrTagName, oldName),
		telemetry.WithAttribute(telemetry.SpanAttrNewTagName, newName))
	defer span.End()

	ctx = logger.WithCascade(ctx, OpTagRename)
	report := shared.NewCascadeReport(OpTagRename)
	if oldName == newName {
		return report, nil
	}

	if err := r.renameRegistryEntry(ctx, oldName, newName); err != nil {
		telemetry.RecordError(span, err)
		return nil, err
	}

	err = r.cascade(ctx, report, oldName, func(tags []string) []string {
		return partner.ReplaceTag(tags, oldName, newName)
	})
	telemetry.SetAttributes(span,
		telemetry.SpanAttrSucceeded, len(report.Succeeded),
		telemetry.SpanAttrFailed, len(report.Failed))
	if err != nil {
		telemetry.RecordError(span, err)
		return report, err
	}

	r.logger.Info("Tag renamed",
		zap.String("old_name", oldName),
		zap.String("new_name", newName),
		zap.Int("clients", len(report.Succeeded)),
	)
	return report, nil
}

// renameRegistryEntry applies the registry half of a rename. When the old
// entry is gone but the new one exists, a previous run already did it.
func (r *TagRegistry) renameRegistryEntry(ctx context.Context, oldName, newName string) error {
	current, err := r.findExact(ctx, oldName)
	if err != nil {
		return err
	}

	variants, err := r.tags.Find(ctx, shared.RowFilter{}.EqFold(partner.ColName, newName))
	if err != nil {
		return err
	}

	if current == nil {
		for _, v := range variants {
			if v.Name == newName {
				r.logger.Debug("Tag registry rename already applied",
					zap.String("old_name", oldName),
					zap.String("new_name", newName))
				return nil
			}
		}
		return shared.NewNotFoundError(fmt.Sprintf("Tag %q not found", oldName))
	}

	for _, v := range variants {
		if v.ID != current.ID {
			return tagExists(v.Name)
		}
	}

	_, err = r.tags.Update(ctx, current.ID, shared.Fields{partner.ColName: newName})
	return err
}

// Delete removes a tag from every client and then from the registry. The
// registry entry is only removed once every client write succeeded, so a
// failed delete can be re-run.
func (r *TagRegistry) Delete(ctx context.Context, name string) (*shared.CascadeReport, error) {
	name = strings.TrimSpace(name)
	if name == "" {
		return nil, shared.NewValidationError("INVALID_TAG_NAME", "Tag name cannot be empty")
	}

	ctx, span := telemetry.StartServiceSpan(ctx, "tag_registry", "delete",
		telemetry.WithAttribute(telemetry.SpanAttrTagName, name))
	defer span.End()

	tag, err := r.findExact(ctx, name)
	if err != nil {
		telemetry.RecordError(span, err)
		return nil, err
	}

	ctx = logger.WithCascade(ctx, OpTagDelete)
	report := shared.NewCascadeReport(OpTagDelete)
	touched, err := r.cascadeCount(ctx, report, name, func(tags []string) []string {
		return partner.RemoveTag(tags, name)
	})
	telemetry.SetAttributes(span,
		telemetry.SpanAttrSucceeded, len(report.Succeeded),
		telemetry.SpanAttrFailed, len(report.Failed))
	if err != nil {
		telemetry.RecordError(span, err)
		return report, err
	}

	if tag == nil {
		if touched == 0 {
			return nil, shared.NewNotFoundError(fmt.Sprintf("Tag %q not found", name))
		}
		r.logger.Info("Tag delete resumed", zap.String("tag", name), zap.Int("clients", touched))
		return report, nil
	}

	if err := r.tags.Delete(ctx, tag.ID); err != nil && !isNotFound(err) {
		report.Fail("tag:"+tag.Name, err)
		telemetry.RecordError(span, err)
		return report, report.Err()
	}

	r.logger.Info("Tag deleted", zap.String("tag", name), zap.Int("clients", touched))
	return report, nil
}

// cascade rewrites the tag array of every client carrying name
func (r *TagRegistry) cascade(ctx context.Context, report *shared.CascadeReport, name string, rewrite func([]string) []string) error {
	_, err := r.cascadeCount(ctx, report, name, rewrite)
	return err
}

func (r *TagRegistry) cascadeCount(ctx context.Context, report *shared.CascadeReport, name string, rewrite func([]string) []string) (int, error) {
	clients, err := r.clients.Find(ctx, shared.RowFilter{}.Contains(partner.ColTags, name))
	if err != nil {
		return 0, err
	}

	start := time.Now()
	for _, c := range clients {
		target := c.ID.String()
		if err := ctx.Err(); err != nil {
			report.Fail(target, err)
			continue
		}
		tags := rewrite(c.TagNames())
		if _, err := r.clients.Update(ctx, c.ID, shared.Fields{partner.ColTags: partner.TagSet(tags)}); err != nil {
			r.logger.Warn("Tag cascade write failed",
				zap.String("operation", report.Operation),
				zap.String("client_id", target),
				zap.Error(err))
			report.Fail(target, err)
			continue
		}
		r.logger.Debug("Tag cascade write",
			zap.String("operation", report.Operation),
			zap.String("client_id", target))
		report.Ok(target)
	}
	r.metrics.RecordCascade(ctx, report.Operation, len(report.Succeeded), len(report.Failed), time.Since(start))

	if err := report.Err(); err != nil {
		r.logger.Warn("Tag cascade partially applied",
			zap.String("operation", report.Operation),
			zap.String("tag", name),
			zap.Int("succeeded", len(report.Succeeded)),
			zap.Int("failed", len(report.Failed)))
		return len(clients), err
	}
	return len(clients), nil
}

func (r *TagRegistry) findExact(ctx context.Context, name string) (*partner.Tag, error) {
	tags, err := r.tags.Find(ctx, shared.Where(partner.ColName, name).WithLimit(1))
	if err != nil {
		return nil, err
	}
	if len(tags) == 0 {
		return nil, nil
	}
	return &tags[0], nil
}

func tagExists(name string) error {
	return shared.NewDuplicateError(TagAlreadyExistsCode, fmt.Sprintf("Tag %q already exists", name))
}
