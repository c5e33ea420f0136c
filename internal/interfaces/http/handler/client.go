package handler

import (
	partnerapp "github.com/erp/crm/internal/application/partner"
	"github.com/gin-gonic/gin"
)

// ClientHandler handles client-related API endpoints
type ClientHandler struct {
	BaseHandler
	service *partnerapp.ConsistencyService
}

// NewClientHandler creates a new ClientHandler
func NewClientHandler(service *partnerapp.ConsistencyService) *ClientHandler {
	return &ClientHandler{service: service}
}

// Create godoc
// @ID           createClient
// @Summary      Create a client
// @Description  Create a client. Tags must be registered; a group name is resolved or created.
// @Tags         clients
// @Accept       json
// @Produce      json
// @Param        request body partnerapp.CreateClientRequest true "Client creation request"
// @Success      201 {object} APIResponse[partnerapp.ClientResponse]
// @Failure      400 {object} ErrorResponse
// @Failure      404 {object} ErrorResponse
// @Router       /clients [post]
func (h *ClientHandler) Create(c *gin.Context) {
	var req partnerapp.CreateClientRequest
	if !h.bindJSON(c, &req) {
		return
	}

	client, err := h.service.CreateClient(c.Request.Context(), req)
	if err != nil {
		h.HandleError(c, err)
		return
	}

	h.Created(c, client)
}

// GetByID godoc
// @ID           getClientById
// @Summary      Get client by ID
// @Description  Retrieve a client with its economic group and contact links
// @Tags         clients
// @Produce      json
// @Param        id path string true "Client ID" format(uuid)
// @Success      200 {object} APIResponse[partnerapp.ClientDetailResponse]
// @Failure      400 {object} ErrorResponse
// @Failure      404 {object} ErrorResponse
// @Router       /clients/{id} [get]
func (h *ClientHandler) GetByID(c *gin.Context) {
	id, ok := h.uuidParam(c, "id")
	if !ok {
		return
	}

	client, err := h.service.GetClient(c.Request.Context(), id)
	if err != nil {
		h.HandleError(c, err)
		return
	}

	h.Success(c, client)
}

// List godoc
// @ID           listClients
// @Summary      List clients
// @Description  List every client, or only those carrying the given tag (exact match)
// @Tags         clients
// @Produce      json
// @Param        tag query string false "Tag filter"
// @Param        sort_by query string false "Sort column" Enums(name, classification, document, email, created_at, updated_at)
// @Param        sort_order query string false "asc or desc" Enums(asc, desc)
// @Success      200 {object} APIResponse[[]partnerapp.ClientResponse]
// @Router       /clients [get]
func (h *ClientHandler) List(c *gin.Context) {
	var query partnerapp.ListClientsQuery
	if err := c.ShouldBindQuery(&query); err != nil {
		h.BadRequest(c, "Invalid query parameters")
		return
	}

	clients, err := h.service.ListClients(c.Request.Context(), query)
	if err != nil {
		h.HandleError(c, err)
		return
	}

	h.SuccessList(c, clients, len(clients))
}

// Update godoc
// @ID           updateClient
// @Summary      Update a client
// @Description  Update the supplied fields of a client. An empty group_name clears the group.
// @Tags         clients
// @Accept       json
// @Produce      json
// @Param        id path string true "Client ID" format(uuid)
// @Param        request body partnerapp.UpdateClientRequest true "Client update request"
// @Success      200 {object} APIResponse[partnerapp.ClientResponse]
// @Failure      400 {object} ErrorResponse
// @Failure      404 {object} ErrorResponse
// @Router       /clients/{id} [put]
func (h *ClientHandler) Update(c *gin.Context) {
	id, ok := h.uuidParam(c, "id")
	if !ok {
		return
	}

	var req partnerapp.UpdateClientRequest
	if !h.bindJSON(c, &req) {
		return
	}

	client, err := h.service.UpdateClient(c.Request.Context(), id, req)
	if err != nil {
		h.HandleError(c, err)
		return
	}

	h.Success(c, client)
}

// Delete godoc
// @ID           deleteClient
// @Summary      Delete a client
// @Description  Remove every contact link of the client, then the client.
// @Description  Answers 207 and keeps the client when some links could not be removed.
// @Tags         clients
// @Produce      json
// @Param        id path string true "Client ID" format(uuid)
// @Success      200 {object} APIResponse[any]
// @Success      207 {object} APIResponse[any]
// @Failure      404 {object} ErrorResponse
// @Router       /clients/{id} [delete]
func (h *ClientHandler) Delete(c *gin.Context) {
	id, ok := h.uuidParam(c, "id")
	if !ok {
		return
	}

	report, err := h.service.DeleteClient(c.Request.Context(), id)
	if err != nil {
		h.HandleError(c, err)
		return
	}

	h.Cascade(c, nil, report)
}
