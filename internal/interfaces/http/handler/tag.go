package handler

import (
	partnerapp "github.com/erp/crm/internal/application/partner"
	"github.com/gin-gonic/gin"
)

// TagHandler handles tag registry endpoints
type TagHandler struct {
	BaseHandler
	service *partnerapp.ConsistencyService
}

// NewTagHandler creates a new TagHandler
func NewTagHandler(service *partnerapp.ConsistencyService) *TagHandler {
	return &TagHandler{service: service}
}

// List godoc
// @ID           listTags
// @Summary      List tags with usage
// @Description  List every registered tag with the number of clients carrying it
// @Tags         tags
// @Produce      json
// @Success      200 {object} APIResponse[[]partner.TagUsage]
// @Router       /tags [get]
func (h *TagHandler) List(c *gin.Context) {
	usage, err := h.service.ListTagsWithUsage(c.Request.Context())
	if err != nil {
		h.HandleError(c, err)
		return
	}

	h.SuccessList(c, usage, len(usage))
}

// Create godoc
// @ID           createTag
// @Summary      Register a tag
// @Tags         tags
// @Accept       json
// @Produce      json
// @Param        request body partnerapp.CreateTagRequest true "Tag creation request"
// @Success      201 {object} APIResponse[partnerapp.TagResponse]
// @Failure      400 {object} ErrorResponse
// @Failure      409 {object} ErrorResponse
// @Router       /tags [post]
func (h *TagHandler) Create(c *gin.Context) {
	var req partnerapp.CreateTagRequest
	if !h.bindJSON(c, &req) {
		return
	}

	tag, err := h.service.CreateTag(c.Request.Context(), req)
	if err != nil {
		h.HandleError(c, err)
		return
	}

	h.Created(c, tag)
}

// Rename godoc
// @ID           renameTag
// @Summary      Rename a tag
// @Description  Rename the registry entry and the tag on every client carrying it.
// @Description  Answers 207 with the failed clients; repeating the call finishes the rename.
// @Tags         tags
// @Accept       json
// @Produce      json
// @Param        name path string true "Current tag name"
// @Param        request body partnerapp.RenameTagRequest true "New name"
// @Success      200 {object} APIResponse[any]
// @Success      207 {object} APIResponse[any]
// @Failure      404 {object} ErrorResponse
// @Failure      409 {object} ErrorResponse
// @Router       /tags/{name} [put]
func (h *TagHandler) Rename(c *gin.Context) {
	var req partnerapp.RenameTagRequest
	if !h.bindJSON(c, &req) {
		return
	}

	report, err := h.service.RenameTag(c.Request.Context(), c.Param("name"), req)
	if err != nil {
		h.HandleError(c, err)
		return
	}

	h.Cascade(c, nil, report)
}

// Delete godoc
// @ID           deleteTag
// @Summary      Delete a tag
// @Description  Strip the tag from every client, then remove the registry entry
// @Tags         tags
// @Produce      json
// @Param        name path string true "Tag name"
// @Success      200 {object} APIResponse[any]
// @Success      207 {object} APIResponse[any]
// @Failure      404 {object} ErrorResponse
// @Router       /tags/{name} [delete]
func (h *TagHandler) Delete(c *gin.Context) {
	report, err := h.service.DeleteTag(c.Request.Context(), c.Param("name"))
	if err != nil {
		h.HandleError(c, err)
		return
	}

	h.Cascade(c, nil, report)
}
