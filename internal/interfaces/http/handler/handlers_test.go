package handler

import (
	"bytes"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	partnerapp "github.com/erp/crm/internal/application/partner"
	"github.com/erp/crm/internal/interfaces/http/dto"
	"github.com/erp/crm/internal/interfaces/http/middleware"
	"github.com/erp/crm/internal/testutil"
	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"gorm.io/gorm"
)

// api is the CRM routes over a private SQLite database
type api struct {
	engine  *gin.Engine
	db      *gorm.DB
	service *partnerapp.ConsistencyService
}

func newAPI(t *testing.T) *api {
	t.Helper()
	middleware.SetupValidator()

	db, ps := testutil.NewStores(t)
	service := partnerapp.NewConsistencyService(partnerapp.Stores{
		Clients:  ps.Clients,
		Contacts: ps.Contacts,
		Links:    ps.Links,
		Tags:     ps.Tags,
		Groups:   ps.Groups,
	}, zap.NewNop(), nil)

	engine := gin.New()
	engine.Use(middleware.RequestID())

	clients := NewClientHandler(service)
	engine.POST("/clients", clients.Create)
	engine.GET("/clients", clients.List)
	engine.GET("/clients/:id", clients.GetByID)
	engine.PUT("/clients/:id", clients.Update)
	engine.DELETE("/clients/:id", clients.Delete)

	contacts := NewContactHandler(service)
	engine.POST("/contacts", contacts.Create)
	engine.GET("/contacts/:id", contacts.GetByID)
	engine.PUT("/contacts/:id/links", contacts.UpdateLinks)
	engine.DELETE("/contacts/:id", contacts.Delete)

	links := NewLinkHandler(service)
	engine.POST("/links", links.Create)
	engine.PUT("/links/:client_id/:contact_id", links.Update)
	engine.DELETE("/links/:client_id/:contact_id", links.Delete)
	engine.POST("/links/:client_id/:contact_id/principal", links.SetPrincipal)

	tags := NewTagHandler(service)
	engine.GET("/tags", tags.List)
	engine.POST("/tags", tags.Create)
	engine.PUT("/tags/:name", tags.Rename)
	engine.DELETE("/tags/:name", tags.Delete)

	groups := NewGroupHandler(service)
	engine.POST("/groups/resolve", groups.Resolve)
	engine.GET("/groups", groups.List)
	engine.GET("/groups/:id", groups.GetByID)
	engine.PUT("/groups/:id", groups.Update)
	engine.DELETE("/groups/:id", groups.Delete)
	engine.GET("/groups/:id/members", groups.Members)

	return &api{engine: engine, db: db, service: service}
}

func (a *api) do(t *testing.T, method, path string, body any) *httptest.ResponseRecorder {
	t.Helper()
	var buf bytes.Buffer
	if body != nil {
		if raw, ok := body.(string); ok {
			buf.WriteString(raw)
		} else {
			require.NoError(t, json.NewEncoder(&buf).Encode(body))
		}
	}
	req := httptest.NewRequest(method, path, &buf)
	req.Header.Set("Content-Type", "application/json")
	w := httptest.NewRecorder()
	a.engine.ServeHTTP(w, req)
	return w
}

// data decodes the response envelope and re-decodes its data into out
func data(t *testing.T, w *httptest.ResponseRecorder, out any) dto.Response {
	t.Helper()
	resp := decodeResponse(t, w)
	if out != nil {
		raw, err := json.Marshal(resp.Data)
		require.NoError(t, err)
		require.NoError(t, json.Unmarshal(raw, out))
	}
	return resp
}

func (a *api) createClient(t *testing.T, name string, tags ...string) partnerapp.ClientResponse {
	t.Helper()
	w := a.do(t, http.MethodPost, "/clients", partnerapp.CreateClientRequest{
		Name:           name,
		Classification: "individual",
		Document:       "52998224725",
		Tags:           tags,
	})
	require.Equal(t, http.StatusCreated, w.Code, w.Body.String())
	var client partnerapp.ClientResponse
	data(t, w, &client)
	return client
}

func (a *api) createTag(t *testing.T, name string) {
	t.Helper()
	w := a.do(t, http.MethodPost, "/tags", partnerapp.CreateTagRequest{Name: name})
	require.Equal(t, http.StatusCreated, w.Code, w.Body.String())
}

func (a *api) createContact(t *testing.T, name string, links ...partnerapp.ContactLinkRequest) partnerapp.ContactWithLinksResponse {
	t.Helper()
	w := a.do(t, http.MethodPost, "/contacts", partnerapp.CreateContactRequest{Name: name, Links: links})
	require.Equal(t, http.StatusCreated, w.Code, w.Body.String())
	var contact partnerapp.ContactWithLinksResponse
	data(t, w, &contact)
	return contact
}

func TestClientHandler_Create(t *testing.T) {
	a := newAPI(t)
	a.createTag(t, "vip")

	t.Run("creates with tags and group", func(t *testing.T) {
		w := a.do(t, http.MethodPost, "/clients", partnerapp.CreateClientRequest{
			Name:           "Acme",
			Classification: "organization",
			Document:       "11222333000181",
			Tags:           []string{"vip"},
			GroupName:      "Acme Group",
		})
		require.Equal(t, http.StatusCreated, w.Code, w.Body.String())

		var client partnerapp.ClientResponse
		resp := data(t, w, &client)
		assert.True(t, resp.Success)
		assert.Equal(t, []string{"vip"}, client.Tags)
		assert.NotNil(t, client.GroupID)
	})

	tests := []struct {
		name   string
		body   any
		status int
		code   string
	}{
		{"malformed json", `{"name":`, http.StatusBadRequest, dto.ErrCodeInvalidJSON},
		{"missing fields", map[string]any{"name": "A"}, http.StatusBadRequest, dto.ErrCodeValidation},
		{"bad document", partnerapp.CreateClientRequest{Name: "A", Classification: "individual", Document: "123"}, http.StatusBadRequest, "INVALID_DOCUMENT"},
		{"unregistered tag", partnerapp.CreateClientRequest{Name: "A", Classification: "individual", Document: "52998224725", Tags: []string{"ghost"}}, http.StatusNotFound, dto.ErrCodeNotFound},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			w := a.do(t, http.MethodPost, "/clients", tt.body)
			assert.Equal(t, tt.status, w.Code, w.Body.String())
			resp := decodeResponse(t, w)
			require.NotNil(t, resp.Error)
			assert.Equal(t, tt.code, resp.Error.Code)
			assert.NotEmpty(t, resp.Error.RequestID)
		})
	}

	t.Run("validation errors name the JSON field", func(t *testing.T) {
		w := a.do(t, http.MethodPost, "/clients", map[string]any{"name": "A", "document": "52998224725"})
		resp := decodeResponse(t, w)
		require.NotNil(t, resp.Error)
		require.NotEmpty(t, resp.Error.Details)
		assert.Equal(t, "classification", resp.Error.Details[0].Field)
	})
}

func TestClientHandler_GetListUpdate(t *testing.T) {
	a := newAPI(t)
	a.createTag(t, "vip")
	acme := a.createClient(t, "Acme", "vip")
	a.createClient(t, "Other")

	t.Run("get", func(t *testing.T) {
		w := a.do(t, http.MethodGet, "/clients/"+acme.ID.String(), nil)
		require.Equal(t, http.StatusOK, w.Code)
		var detail partnerapp.ClientDetailResponse
		data(t, w, &detail)
		assert.Equal(t, "Acme", detail.Name)
		assert.Nil(t, detail.Group)
		assert.Empty(t, detail.Links)
	})

	t.Run("malformed id", func(t *testing.T) {
		w := a.do(t, http.MethodGet, "/clients/not-a-uuid", nil)
		assert.Equal(t, http.StatusBadRequest, w.Code)
	})

	t.Run("missing", func(t *testing.T) {
		w := a.do(t, http.MethodGet, "/clients/"+uuid.NewString(), nil)
		assert.Equal(t, http.StatusNotFound, w.Code)
	})

	t.Run("list filters by tag", func(t *testing.T) {
		w := a.do(t, http.MethodGet, "/clients?tag=vip", nil)
		require.Equal(t, http.StatusOK, w.Code)
		var clients []partnerapp.ClientResponse
		resp := data(t, w, &clients)
		require.Len(t, clients, 1)
		assert.Equal(t, acme.ID, clients[0].ID)
		assert.Equal(t, int64(1), resp.Meta.Total)

		w = a.do(t, http.MethodGet, "/clients", nil)
		data(t, w, &clients)
		assert.Len(t, clients, 2)
	})

	t.Run("list sorts by name", func(t *testing.T) {
		w := a.do(t, http.MethodGet, "/clients?sort_by=name&sort_order=desc", nil)
		require.Equal(t, http.StatusOK, w.Code)
		var clients []partnerapp.ClientResponse
		data(t, w, &clients)
		require.Len(t, clients, 2)
		assert.Equal(t, "Other", clients[0].Name)
		assert.Equal(t, "Acme", clients[1].Name)
	})

	t.Run("list rejects unknown sort order", func(t *testing.T) {
		w := a.do(t, http.MethodGet, "/clients?sort_order=sideways", nil)
		assert.Equal(t, http.StatusBadRequest, w.Code)
	})

	t.Run("update assigns a group", func(t *testing.T) {
		group := "Holding"
		w := a.do(t, http.MethodPut, "/clients/"+acme.ID.String(), partnerapp.UpdateClientRequest{GroupName: &group})
		require.Equal(t, http.StatusOK, w.Code, w.Body.String())
		var client partnerapp.ClientResponse
		data(t, w, &client)
		require.NotNil(t, client.GroupID)
	})
}

func TestContactHandler_CreatePartialAnswers207(t *testing.T) {
	a := newAPI(t)
	client := a.createClient(t, "Acme")
	missing := uuid.New()

	w := a.do(t, http.MethodPost, "/contacts", partnerapp.CreateContactRequest{
		Name: "X",
		Links: []partnerapp.ContactLinkRequest{
			{ClientID: client.ID},
			{ClientID: missing},
		},
	})
	require.Equal(t, http.StatusMultiStatus, w.Code, w.Body.String())

	var created partnerapp.ContactWithLinksResponse
	resp := data(t, w, &created)
	assert.False(t, resp.Success)
	assert.Equal(t, dto.ErrCodePartialCascade, resp.Error.Code)
	assert.Equal(t, "X", created.Contact.Name)
	require.Len(t, created.Links, 1)
	assert.Equal(t, client.ID, created.Links[0].ClientID)

	require.NotNil(t, resp.Cascade)
	require.Len(t, resp.Cascade.Failed, 1)
	assert.Contains(t, resp.Cascade.Failed[0].Target, missing.String())
	assert.NotEmpty(t, resp.Cascade.Failed[0].Reason)

	w = a.do(t, http.MethodGet, "/contacts/"+created.Contact.ID.String(), nil)
	assert.Equal(t, http.StatusOK, w.Code, "the contact is kept")
}

func TestContactHandler_UpdateLinksAndDelete(t *testing.T) {
	a := newAPI(t)
	c1 := a.createClient(t, "One")
	c2 := a.createClient(t, "Two")
	contact := a.createContact(t, "X", partnerapp.ContactLinkRequest{ClientID: c1.ID})

	w := a.do(t, http.MethodPut, "/contacts/"+contact.Contact.ID.String()+"/links", partnerapp.UpdateContactLinksRequest{
		Links: []partnerapp.ContactLinkRequest{{ClientID: c2.ID}},
	})
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())
	resp := decodeResponse(t, w)
	require.NotNil(t, resp.Cascade)
	assert.Len(t, resp.Cascade.Succeeded, 2, "one removal and one creation")
	assert.Empty(t, resp.Cascade.Failed)

	w = a.do(t, http.MethodDelete, "/contacts/"+contact.Contact.ID.String(), nil)
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())
	resp = decodeResponse(t, w)
	assert.Len(t, resp.Cascade.Succeeded, 1)

	w = a.do(t, http.MethodGet, "/contacts/"+contact.Contact.ID.String(), nil)
	assert.Equal(t, http.StatusNotFound, w.Code)
}

func TestClientHandler_DeletePartialAnswers207(t *testing.T) {
	a := newAPI(t)
	client := a.createClient(t, "Acme")
	a.createContact(t, "X", partnerapp.ContactLinkRequest{ClientID: client.ID})
	a.createContact(t, "Y", partnerapp.ContactLinkRequest{ClientID: client.ID})

	faults := testutil.InjectFaults(t, a.db, "client_contacts", testutil.FaultDelete, 2)
	w := a.do(t, http.MethodDelete, "/clients/"+client.ID.String(), nil)
	require.Equal(t, http.StatusMultiStatus, w.Code, w.Body.String())
	resp := decodeResponse(t, w)
	assert.Len(t, resp.Cascade.Succeeded, 1)
	assert.Len(t, resp.Cascade.Failed, 1)

	w = a.do(t, http.MethodGet, "/clients/"+client.ID.String(), nil)
	assert.Equal(t, http.StatusOK, w.Code, "client stays while a link remains")

	faults.Disable()
	w = a.do(t, http.MethodDelete, "/clients/"+client.ID.String(), nil)
	assert.Equal(t, http.StatusOK, w.Code, w.Body.String())
	w = a.do(t, http.MethodGet, "/clients/"+client.ID.String(), nil)
	assert.Equal(t, http.StatusNotFound, w.Code)
}

func TestLinkHandler(t *testing.T) {
	a := newAPI(t)
	client := a.createClient(t, "Acme")
	x := a.createContact(t, "X", partnerapp.ContactLinkRequest{
		ClientID:    client.ID,
		LinkRequest: partnerapp.LinkRequest{IsPrincipal: true},
	})
	y := a.createContact(t, "Y")
	pair := func(contactID uuid.UUID) string {
		return "/links/" + client.ID.String() + "/" + contactID.String()
	}

	t.Run("create", func(t *testing.T) {
		w := a.do(t, http.MethodPost, "/links", partnerapp.CreateLinkRequest{
			ClientID:    client.ID,
			ContactID:   y.Contact.ID,
			LinkRequest: partnerapp.LinkRequest{Role: "finance"},
		})
		require.Equal(t, http.StatusCreated, w.Code, w.Body.String())
	})

	t.Run("duplicate pair conflicts", func(t *testing.T) {
		w := a.do(t, http.MethodPost, "/links", partnerapp.CreateLinkRequest{ClientID: client.ID, ContactID: y.Contact.ID})
		assert.Equal(t, http.StatusConflict, w.Code, w.Body.String())
	})

	t.Run("set principal moves the flag", func(t *testing.T) {
		w := a.do(t, http.MethodPost, pair(y.Contact.ID)+"/principal", nil)
		require.Equal(t, http.StatusOK, w.Code, w.Body.String())
		var link partnerapp.LinkResponse
		data(t, w, &link)
		assert.True(t, link.IsPrincipal)

		w = a.do(t, http.MethodGet, "/clients/"+client.ID.String(), nil)
		var detail partnerapp.ClientDetailResponse
		data(t, w, &detail)
		principals := 0
		for _, l := range detail.Links {
			if l.IsPrincipal {
				principals++
				assert.Equal(t, y.Contact.ID, l.ContactID)
			}
		}
		assert.Equal(t, 1, principals)
	})

	t.Run("set principal on a missing link", func(t *testing.T) {
		w := a.do(t, http.MethodPost, pair(uuid.New())+"/principal", nil)
		assert.Equal(t, http.StatusNotFound, w.Code)
	})

	t.Run("update", func(t *testing.T) {
		w := a.do(t, http.MethodPut, pair(x.Contact.ID), partnerapp.LinkRequest{Role: "owner", NotifyEmail: true})
		require.Equal(t, http.StatusOK, w.Code, w.Body.String())
		var link partnerapp.LinkResponse
		data(t, w, &link)
		assert.Equal(t, "owner", link.Role)
		assert.True(t, link.NotifyEmail)
	})

	t.Run("delete", func(t *testing.T) {
		w := a.do(t, http.MethodDelete, pair(x.Contact.ID), nil)
		assert.Equal(t, http.StatusNoContent, w.Code)

		w = a.do(t, http.MethodDelete, pair(x.Contact.ID), nil)
		assert.Equal(t, http.StatusNotFound, w.Code)
	})

	t.Run("malformed contact id", func(t *testing.T) {
		w := a.do(t, http.MethodDelete, "/links/"+client.ID.String()+"/nope", nil)
		assert.Equal(t, http.StatusBadRequest, w.Code)
	})
}

func TestTagHandler(t *testing.T) {
	a := newAPI(t)
	a.createTag(t, "vip")
	a.createTag(t, "lead")
	first := a.createClient(t, "A", "vip", "lead")
	a.createClient(t, "B", "vip")

	t.Run("duplicate name conflicts", func(t *testing.T) {
		w := a.do(t, http.MethodPost, "/tags", partnerapp.CreateTagRequest{Name: "VIP"})
		assert.Equal(t, http.StatusConflict, w.Code)
		resp := decodeResponse(t, w)
		assert.Equal(t, "TAG_ALREADY_EXISTS", resp.Error.Code)
	})

	t.Run("list with usage", func(t *testing.T) {
		w := a.do(t, http.MethodGet, "/tags", nil)
		require.Equal(t, http.StatusOK, w.Code)
		var usage []struct {
			Name  string `json:"name"`
			Count int    `json:"count"`
		}
		data(t, w, &usage)
		counts := map[string]int{}
		for _, u := range usage {
			counts[u.Name] = u.Count
		}
		assert.Equal(t, map[string]int{"vip": 2, "lead": 1}, counts)
	})

	t.Run("rename cascades onto clients", func(t *testing.T) {
		w := a.do(t, http.MethodPut, "/tags/vip", partnerapp.RenameTagRequest{NewName: "gold"})
		require.Equal(t, http.StatusOK, w.Code, w.Body.String())
		resp := decodeResponse(t, w)
		assert.Len(t, resp.Cascade.Succeeded, 2)

		w = a.do(t, http.MethodGet, "/clients?tag=gold", nil)
		var clients []partnerapp.ClientResponse
		data(t, w, &clients)
		assert.Len(t, clients, 2)
	})

	t.Run("rename of an unknown tag", func(t *testing.T) {
		w := a.do(t, http.MethodPut, "/tags/ghost", partnerapp.RenameTagRequest{NewName: "x"})
		assert.Equal(t, http.StatusNotFound, w.Code)
	})

	t.Run("delete strips the tag", func(t *testing.T) {
		w := a.do(t, http.MethodDelete, "/tags/lead", nil)
		require.Equal(t, http.StatusOK, w.Code, w.Body.String())

		w = a.do(t, http.MethodGet, "/clients/"+first.ID.String(), nil)
		var detail partnerapp.ClientDetailResponse
		data(t, w, &detail)
		assert.Equal(t, []string{"gold"}, detail.Tags)
	})
}

func TestGroupHandler(t *testing.T) {
	a := newAPI(t)

	resolve := func(name string) partnerapp.GroupResponse {
		w := a.do(t, http.MethodPost, "/groups/resolve", partnerapp.ResolveGroupRequest{Name: name})
		require.Equal(t, http.StatusOK, w.Code, w.Body.String())
		var group partnerapp.GroupResponse
		data(t, w, &group)
		return group
	}

	acme := resolve("Acme")
	assert.Equal(t, acme.ID, resolve("  ACME ").ID, "names match case-insensitively")
	assert.Equal(t, acme.ID, resolve("acme").ID)

	obra := resolve("Construções Ábaco")
	assert.Equal(t, obra.ID, resolve("CONSTRUÇÕES ÁBACO").ID)
	assert.NotEqual(t, acme.ID, obra.ID)

	group := "acme"
	w := a.do(t, http.MethodPost, "/clients", partnerapp.CreateClientRequest{
		Name: "Member", Classification: "individual", Document: "52998224725", GroupName: group,
	})
	require.Equal(t, http.StatusCreated, w.Code, w.Body.String())

	w = a.do(t, http.MethodGet, "/groups/"+acme.ID.String()+"/members", nil)
	require.Equal(t, http.StatusOK, w.Code)
	var members []partnerapp.ClientResponse
	data(t, w, &members)
	require.Len(t, members, 1)
	assert.Equal(t, "Member", members[0].Name)

	other := resolve("Other")
	name := "ACME"
	w = a.do(t, http.MethodPut, "/groups/"+other.ID.String(), partnerapp.UpdateGroupRequest{Name: &name})
	assert.Equal(t, http.StatusConflict, w.Code, w.Body.String())

	w = a.do(t, http.MethodGet, "/groups", nil)
	var groups []partnerapp.GroupResponse
	data(t, w, &groups)
	assert.Len(t, groups, 3)

	w = a.do(t, http.MethodDelete, "/groups/"+other.ID.String(), nil)
	assert.Equal(t, http.StatusNoContent, w.Code)
	w = a.do(t, http.MethodGet, "/groups/"+other.ID.String(), nil)
	assert.Equal(t, http.StatusNotFound, w.Code)
}
