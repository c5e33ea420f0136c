package partner

import (
	"context"
	"errors"
	"testing"

	"github.com/erp/crm/internal/domain/partner"
	"github.com/erp/crm/internal/domain/shared"
	"github.com/erp/crm/internal/infrastructure/logger"
	"github.com/erp/crm/internal/testutil"
	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestTagRegistry_Create(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t)
	registry := f.service.Tags()

	tag, err := registry.Create(ctx, "  vip ")
	require.NoError(t, err)
	assert.Equal(t, "vip", tag.Name)

	_, err = registry.Create(ctx, "ação")
	require.NoError(t, err)

	tests := []struct {
		name  string
		input string
		want  *shared.DomainError
	}{
		{"exact duplicate", "vip", shared.ErrDuplicate},
		{"case variant", "VIP", shared.ErrDuplicate},
		{"accented case variant", "AÇÃO", shared.ErrDuplicate},
		{"empty", "  ", shared.ErrValidation},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := registry.Create(ctx, tt.input)
			assert.ErrorIs(t, err, tt.want)
		})
	}

	tags, err := registry.List(ctx)
	require.NoError(t, err)
	assert.Len(t, tags, 2)
}

func TestTagRegistry_RequireAll(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t)
	f.tag(t, "vip")
	f.tag(t, "retail")

	assert.NoError(t, f.service.Tags().RequireAll(ctx, []string{"vip", "retail", "vip"}))
	assert.NoError(t, f.service.Tags().RequireAll(ctx, nil))

	err := f.service.Tags().RequireAll(ctx, []string{"vip", "VIP", "wholesale"})
	require.Error(t, err)
	assert.ErrorIs(t, err, shared.ErrNotFound)
	assert.Contains(t, err.Error(), "VIP")
	assert.Contains(t, err.Error(), "wholesale")
}

func TestTagRegistry_ListWithUsage(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t)
	for _, name := range []string{"cold", "vip", "retail", "unused"} {
		f.tag(t, name)
	}
	f.client(t, "A", "vip", "retail")
	f.client(t, "B", "vip")
	f.client(t, "C", "vip", "cold")
	f.client(t, "D", "retail")

	usage, err := f.service.ListTagsWithUsage(ctx)
	require.NoError(t, err)
	assert.Equal(t, []partner.TagUsage{
		{Name: "vip", Count: 3},
		{Name: "retail", Count: 2},
		{Name: "cold", Count: 1},
		{Name: "unused", Count: 0},
	}, usage)
}

func TestTagRegistry_Rename(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t)
	f.tag(t, "vip")
	f.tag(t, "gold")

	var clients []*partner.Client
	for _, name := range []string{"A", "B", "C", "D", "E"} {
		clients = append(clients, f.client(t, name, "vip", "retail"))
	}
	untouched := f.client(t, "F", "retail")
	both := f.client(t, "G", "vip", "premium")

	t.Run("conflict aborts before any client write", func(t *testing.T) {
		_, err := f.service.Tags().Rename(ctx, "vip", "GOLD")
		assert.ErrorIs(t, err, shared.ErrDuplicate)
		assert.True(t, f.reload(t, clients[0].ID).HasTag("vip"))
	})

	t.Run("renames registry and every client", func(t *testing.T) {
		report, err := f.service.RenameTag(ctx, "vip", RenameTagRequest{NewName: "premium"})
		require.NoError(t, err)
		assert.Len(t, report.Succeeded, 6)
		assert.Empty(t, report.Failed)

		remaining, err := f.stores.Clients.Find(ctx, shared.RowFilter{}.Contains(partner.ColTags, "vip"))
		require.NoError(t, err)
		assert.Empty(t, remaining)

		for _, c := range clients {
			assert.ElementsMatch(t, []string{"premium", "retail"}, f.reload(t, c.ID).TagNames())
		}
		assert.Equal(t, []string{"premium"}, f.reload(t, both.ID).TagNames())
		assert.Equal(t, []string{"retail"}, f.reload(t, untouched.ID).TagNames())

		assert.NoError(t, f.service.Tags().RequireAll(ctx, []string{"premium"}))
		assert.ErrorIs(t, f.service.Tags().RequireAll(ctx, []string{"vip"}), shared.ErrNotFound)
	})

	t.Run("re-run after completion is a no-op", func(t *testing.T) {
		report, err := f.service.Tags().Rename(ctx, "vip", "premium")
		require.NoError(t, err)
		assert.Empty(t, report.Succeeded)
	})

	t.Run("unknown tag", func(t *testing.T) {
		_, err := f.service.Tags().Rename(ctx, "nope", "other")
		assert.ErrorIs(t, err, shared.ErrNotFound)
	})

	t.Run("accented case variant of another tag conflicts", func(t *testing.T) {
		f.tag(t, "ação")
		_, err := f.service.Tags().Rename(ctx, "premium", "AÇÃO")
		assert.ErrorIs(t, err, shared.ErrDuplicate)
		assert.Equal(t, []string{"premium"}, f.reload(t, both.ID).TagNames())
	})

	t.Run("case change of own name", func(t *testing.T) {
		_, err := f.service.Tags().Rename(ctx, "gold", "Gold")
		assert.NoError(t, err)
	})
}

func TestTagRegistry_Rename_PartialFailureAndRerun(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t)
	f.tag(t, "vip")

	var clients []*partner.Client
	for _, name := range []string{"A", "B", "C", "D", "E"} {
		clients = append(clients, f.client(t, name, "vip"))
	}

	faults := testutil.InjectFaults(t, f.db, "clients", testutil.FaultUpdate, 3)

	report, err := f.service.Tags().Rename(ctx, "vip", "gold")
	require.Error(t, err)
	assert.ErrorIs(t, err, shared.ErrPartialCascade)
	assert.ErrorIs(t, err, testutil.ErrInjected)

	var partial *shared.PartialCascadeError
	require.True(t, errors.As(err, &partial))
	assert.Equal(t, OpTagRename, partial.Operation)
	assert.Len(t, partial.Succeeded, 2)
	assert.Len(t, partial.Failed, 3)
	assert.Equal(t, []string{clients[0].ID.String(), clients[1].ID.String()}, report.Succeeded)
	assert.Equal(t, 3, faults.Failed())

	// Registry is already renamed; three clients still carry the old name
	assert.NoError(t, f.service.Tags().RequireAll(ctx, []string{"gold"}))
	stale, err := f.stores.Clients.Find(ctx, shared.RowFilter{}.Contains(partner.ColTags, "vip"))
	require.NoError(t, err)
	assert.Len(t, stale, 3)

	faults.Disable()
	report, err = f.service.Tags().Rename(ctx, "vip", "gold")
	require.NoError(t, err)
	assert.Len(t, report.Succeeded, 3)

	for _, c := range clients {
		assert.Equal(t, []string{"gold"}, f.reload(t, c.ID).TagNames())
	}
}

// cascadeRecorder notes the cascade each client update runs under
type cascadeRecorder struct {
	partner.ClientStore
	cascades []string
}

func (r *cascadeRecorder) Update(ctx context.Context, id uuid.UUID, fields shared.Fields) (*partner.Client, error) {
	r.cascades = append(r.cascades, logger.GetCascade(ctx))
	return r.ClientStore.Update(ctx, id, fields)
}

func TestTagRegistry_ClientWritesCarryCascade(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t)
	f.tag(t, "vip")
	f.client(t, "A", "vip")

	clients := &cascadeRecorder{ClientStore: f.stores.Clients}
	registry := NewTagRegistry(f.stores.Tags, clients, nil, nil)

	_, err := registry.Rename(ctx, "vip", "gold")
	require.NoError(t, err)
	_, err = registry.Delete(ctx, "gold")
	require.NoError(t, err)

	assert.Equal(t, []string{OpTagRename, OpTagDelete}, clients.cascades)
}

func TestTagRegistry_Delete(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t)
	f.tag(t, "vip")
	f.tag(t, "retail")
	a := f.client(t, "A", "vip", "retail")
	b := f.client(t, "B", "vip")

	report, err := f.service.DeleteTag(ctx, "vip")
	require.NoError(t, err)
	assert.Len(t, report.Succeeded, 2)

	assert.Equal(t, []string{"retail"}, f.reload(t, a.ID).TagNames())
	assert.Empty(t, f.reload(t, b.ID).TagNames())
	assert.ErrorIs(t, f.service.Tags().RequireAll(ctx, []string{"vip"}), shared.ErrNotFound)

	_, err = f.service.DeleteTag(ctx, "vip")
	assert.ErrorIs(t, err, shared.ErrNotFound)
}

func TestTagRegistry_Delete_PartialFailureKeepsRegistryEntry(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t)
	f.tag(t, "vip")
	for _, name := range []string{"A", "B", "C"} {
		f.client(t, name, "vip")
	}

	faults := testutil.InjectFaults(t, f.db, "clients", testutil.FaultUpdate, 2)
	_, err := f.service.DeleteTag(ctx, "vip")
	assert.ErrorIs(t, err, shared.ErrPartialCascade)
	assert.NoError(t, f.service.Tags().RequireAll(ctx, []string{"vip"}), "registry entry stays until clients are clean")

	faults.Disable()
	report, err := f.service.DeleteTag(ctx, "vip")
	require.NoError(t, err)
	assert.Len(t, report.Succeeded, 2)
	assert.ErrorIs(t, f.service.Tags().RequireAll(ctx, []string{"vip"}), shared.ErrNotFound)
}

func TestTagRegistry_Delete_ResumesWhenRegistryEntryGone(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t)
	tag := f.tag(t, "vip")
	c := f.client(t, "A", "vip")

	require.NoError(t, f.stores.Tags.Delete(ctx, tag.ID))

	report, err := f.service.DeleteTag(ctx, "vip")
	require.NoError(t, err)
	assert.Equal(t, []string{c.ID.String()}, report.Succeeded)
	assert.Empty(t, f.reload(t, c.ID).TagNames())
}

func TestTagRegistry_CancelledContextFailsRemainingClients(t *testing.T) {
	f := newFixture(t)
	f.tag(t, "vip")
	f.client(t, "A", "vip")

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	_, err := f.service.Tags().Rename(ctx, "vip", "gold")
	assert.Error(t, err)
}
