package handler

import (
	partnerapp "github.com/erp/crm/internal/application/partner"
	"github.com/gin-gonic/gin"
)

// ContactHandler handles contact-related API endpoints
type ContactHandler struct {
	BaseHandler
	service *partnerapp.ConsistencyService
}

// NewContactHandler creates a new ContactHandler
func NewContactHandler(service *partnerapp.ConsistencyService) *ContactHandler {
	return &ContactHandler{service: service}
}

// Create godoc
// @ID           createContact
// @Summary      Create a contact with links
// @Description  Create a contact and link it to each listed client. The contact is kept
// @Description  when some links fail; the response is then 207 with the failures.
// @Tags         contacts
// @Accept       json
// @Produce      json
// @Param        request body partnerapp.CreateContactRequest true "Contact creation request"
// @Success      201 {object} APIResponse[partnerapp.ContactWithLinksResponse]
// @Success      207 {object} APIResponse[partnerapp.ContactWithLinksResponse]
// @Failure      400 {object} ErrorResponse
// @Router       /contacts [post]
func (h *ContactHandler) Create(c *gin.Context) {
	var req partnerapp.CreateContactRequest
	if !h.bindJSON(c, &req) {
		return
	}

	resp, err := h.service.CreateContactWithLinks(c.Request.Context(), req)
	if err != nil {
		h.HandleErrorWithData(c, resp, err)
		return
	}

	h.Created(c, resp)
}

// GetByID godoc
// @ID           getContactById
// @Summary      Get contact by ID
// @Tags         contacts
// @Produce      json
// @Param        id path string true "Contact ID" format(uuid)
// @Success      200 {object} APIResponse[partnerapp.ContactResponse]
// @Failure      404 {object} ErrorResponse
// @Router       /contacts/{id} [get]
func (h *ContactHandler) GetByID(c *gin.Context) {
	id, ok := h.uuidParam(c, "id")
	if !ok {
		return
	}

	contact, err := h.service.GetContact(c.Request.Context(), id)
	if err != nil {
		h.HandleError(c, err)
		return
	}

	h.Success(c, contact)
}

// UpdateLinks godoc
// @ID           updateContactLinks
// @Summary      Replace the links of a contact
// @Description  Bring the contact's links in line with the submitted set: links to clients
// @Description  not listed are removed, changed ones updated and new ones created.
// @Tags         contacts
// @Accept       json
// @Produce      json
// @Param        id path string true "Contact ID" format(uuid)
// @Param        request body partnerapp.UpdateContactLinksRequest true "Desired link set"
// @Success      200 {object} APIResponse[any]
// @Success      207 {object} APIResponse[any]
// @Failure      400 {object} ErrorResponse
// @Failure      404 {object} ErrorResponse
// @Router       /contacts/{id}/links [put]
func (h *ContactHandler) UpdateLinks(c *gin.Context) {
	id, ok := h.uuidParam(c, "id")
	if !ok {
		return
	}

	var req partnerapp.UpdateContactLinksRequest
	if !h.bindJSON(c, &req) {
		return
	}

	report, err := h.service.UpdateContactLinks(c.Request.Context(), id, req)
	if err != nil {
		h.HandleError(c, err)
		return
	}

	h.Cascade(c, nil, report)
}

// Delete godoc
// @ID           deleteContact
// @Summary      Delete a contact
// @Description  Remove every link of the contact, then the contact
// @Tags         contacts
// @Produce      json
// @Param        id path string true "Contact ID" format(uuid)
// @Success      200 {object} APIResponse[any]
// @Success      207 {object} APIResponse[any]
// @Failure      404 {object} ErrorResponse
// @Router       /contacts/{id} [delete]
func (h *ContactHandler) Delete(c *gin.Context) {
	id, ok := h.uuidParam(c, "id")
	if !ok {
		return
	}

	report, err := h.service.DeleteContact(c.Request.Context(), id)
	if err != nil {
		h.HandleError(c, err)
		return
	}

	h.Cascade(c, nil, report)
}
