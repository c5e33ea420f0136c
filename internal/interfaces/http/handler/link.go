package handler

import (
	partnerapp "github.com/erp/crm/internal/application/partner"
	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
)

// LinkHandler handles client-contact link endpoints
type LinkHandler struct {
	BaseHandler
	service *partnerapp.ConsistencyService
}

// NewLinkHandler creates a new LinkHandler
func NewLinkHandler(service *partnerapp.ConsistencyService) *LinkHandler {
	return &LinkHandler{service: service}
}

func (h *LinkHandler) pairParams(c *gin.Context) (clientID, contactID uuid.UUID, ok bool) {
	if clientID, ok = h.uuidParam(c, "client_id"); !ok {
		return
	}
	contactID, ok = h.uuidParam(c, "contact_id")
	return
}

// Create godoc
// @ID           createLink
// @Summary      Link a contact to a client
// @Description  Link an existing contact to an existing client. A principal link
// @Description  demotes the client's current principal.
// @Tags         links
// @Accept       json
// @Produce      json
// @Param        request body partnerapp.CreateLinkRequest true "Link request"
// @Success      201 {object} APIResponse[partnerapp.LinkResponse]
// @Failure      400 {object} ErrorResponse
// @Failure      404 {object} ErrorResponse
// @Failure      409 {object} ErrorResponse
// @Router       /links [post]
func (h *LinkHandler) Create(c *gin.Context) {
	var req partnerapp.CreateLinkRequest
	if !h.bindJSON(c, &req) {
		return
	}

	link, err := h.service.Link(c.Request.Context(), req)
	if err != nil {
		h.HandleError(c, err)
		return
	}

	h.Created(c, link)
}

// Update godoc
// @ID           updateLink
// @Summary      Update a link
// @Tags         links
// @Accept       json
// @Produce      json
// @Param        client_id path string true "Client ID" format(uuid)
// @Param        contact_id path string true "Contact ID" format(uuid)
// @Param        request body partnerapp.LinkRequest true "Link attributes"
// @Success      200 {object} APIResponse[partnerapp.LinkResponse]
// @Failure      404 {object} ErrorResponse
// @Router       /links/{client_id}/{contact_id} [put]
func (h *LinkHandler) Update(c *gin.Context) {
	clientID, contactID, ok := h.pairParams(c)
	if !ok {
		return
	}

	var req partnerapp.LinkRequest
	if !h.bindJSON(c, &req) {
		return
	}

	link, err := h.service.UpdateLink(c.Request.Context(), clientID, contactID, req)
	if err != nil {
		h.HandleError(c, err)
		return
	}

	h.Success(c, link)
}

// Delete godoc
// @ID           deleteLink
// @Summary      Unlink a contact from a client
// @Tags         links
// @Param        client_id path string true "Client ID" format(uuid)
// @Param        contact_id path string true "Contact ID" format(uuid)
// @Success      204
// @Failure      404 {object} ErrorResponse
// @Router       /links/{client_id}/{contact_id} [delete]
func (h *LinkHandler) Delete(c *gin.Context) {
	clientID, contactID, ok := h.pairParams(c)
	if !ok {
		return
	}

	if err := h.service.Unlink(c.Request.Context(), clientID, contactID); err != nil {
		h.HandleError(c, err)
		return
	}

	h.NoContent(c)
}

// SetPrincipal godoc
// @ID           setPrincipalLink
// @Summary      Make a contact the client's principal
// @Description  Mark the link as principal and clear the flag on every other link of the client
// @Tags         links
// @Produce      json
// @Param        client_id path string true "Client ID" format(uuid)
// @Param        contact_id path string true "Contact ID" format(uuid)
// @Success      200 {object} APIResponse[partnerapp.LinkResponse]
// @Failure      404 {object} ErrorResponse
// @Failure      500 {object} ErrorResponse
// @Router       /links/{client_id}/{contact_id}/principal [post]
func (h *LinkHandler) SetPrincipal(c *gin.Context) {
	clientID, contactID, ok := h.pairParams(c)
	if !ok {
		return
	}

	link, err := h.service.SetPrincipal(c.Request.Context(), clientID, contactID)
	if err != nil {
		h.HandleError(c, err)
		return
	}

	h.Success(c, link)
}
