package partner

import (
	"context"
	"testing"

	"github.com/erp/crm/internal/domain/partner"
	"github.com/erp/crm/internal/testutil"
	"github.com/google/uuid"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"gorm.io/gorm"
)

// fixture is a service over a private SQLite database
type fixture struct {
	db      *gorm.DB
	stores  Stores
	service *ConsistencyService
}

func newFixture(t *testing.T) *fixture {
	t.Helper()
	db, ps := testutil.NewStores(t)
	stores := Stores{
		Clients:  ps.Clients,
		Contacts: ps.Contacts,
		Links:    ps.Links,
		Tags:     ps.Tags,
		Groups:   ps.Groups,
	}
	return &fixture{
		db:      db,
		stores:  stores,
		service: NewConsistencyService(stores, zap.NewNop(), nil),
	}
}

func (f *fixture) client(t *testing.T, name string, tags ...string) *partner.Client {
	t.Helper()
	c, err := partner.NewClient(name, partner.ClassificationIndividual, "52998224725")
	require.NoError(t, err)
	c.SetTags(tags)
	_, err = f.stores.Clients.Insert(context.Background(), c)
	require.NoError(t, err)
	return c
}

func (f *fixture) contact(t *testing.T, name string) *partner.Contact {
	t.Helper()
	c, err := partner.NewContact(name)
	require.NoError(t, err)
	_, err = f.stores.Contacts.Insert(context.Background(), c)
	require.NoError(t, err)
	return c
}

func (f *fixture) tag(t *testing.T, name string) *partner.Tag {
	t.Helper()
	tag, err := f.service.Tags().Create(context.Background(), name)
	require.NoError(t, err)
	return tag
}

func (f *fixture) reload(t *testing.T, id uuid.UUID) *partner.Client {
	t.Helper()
	c, err := f.stores.Clients.Get(context.Background(), id)
	require.NoError(t, err)
	return c
}

func (f *fixture) principals(t *testing.T, clientID uuid.UUID) []partner.Link {
	t.Helper()
	links, err := f.service.Links().ListByClient(context.Background(), clientID)
	require.NoError(t, err)
	var out []partner.Link
	for _, l := range links {
		if l.IsPrincipal {
			out = append(out, l)
		}
	}
	return out
}

func (f *fixture) link(t *testing.T, clientID, contactID uuid.UUID) *partner.Link {
	t.Helper()
	links, err := f.service.Links().ListByClient(context.Background(), clientID)
	require.NoError(t, err)
	for i := range links {
		if links[i].ContactID == contactID {
			return &links[i]
		}
	}
	t.Fatalf("no link between client %s and contact %s", clientID, contactID)
	return nil
}
