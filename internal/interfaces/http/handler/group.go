package handler

import (
	partnerapp "github.com/erp/crm/internal/application/partner"
	"github.com/gin-gonic/gin"
)

// GroupHandler handles economic group endpoints
type GroupHandler struct {
	BaseHandler
	service *partnerapp.ConsistencyService
}

// NewGroupHandler creates a new GroupHandler
func NewGroupHandler(service *partnerapp.ConsistencyService) *GroupHandler {
	return &GroupHandler{service: service}
}

// Resolve godoc
// @ID           resolveGroup
// @Summary      Find or create a group
// @Description  Return the group whose name matches case-insensitively, creating it when absent
// @Tags         groups
// @Accept       json
// @Produce      json
// @Param        request body partnerapp.ResolveGroupRequest true "Group name"
// @Success      200 {object} APIResponse[partnerapp.GroupResponse]
// @Failure      400 {object} ErrorResponse
// @Router       /groups/resolve [post]
func (h *GroupHandler) Resolve(c *gin.Context) {
	var req partnerapp.ResolveGroupRequest
	if !h.bindJSON(c, &req) {
		return
	}

	group, err := h.service.ResolveGroup(c.Request.Context(), req)
	if err != nil {
		h.HandleError(c, err)
		return
	}

	h.Success(c, group)
}

// List godoc
// @ID           listGroups
// @Summary      List groups
// @Tags         groups
// @Produce      json
// @Success      200 {object} APIResponse[[]partnerapp.GroupResponse]
// @Router       /groups [get]
func (h *GroupHandler) List(c *gin.Context) {
	groups, err := h.service.ListGroups(c.Request.Context())
	if err != nil {
		h.HandleError(c, err)
		return
	}

	h.SuccessList(c, groups, len(groups))
}

// GetByID godoc
// @ID           getGroupById
// @Summary      Get group by ID
// @Tags         groups
// @Produce      json
// @Param        id path string true "Group ID" format(uuid)
// @Success      200 {object} APIResponse[partnerapp.GroupResponse]
// @Failure      404 {object} ErrorResponse
// @Router       /groups/{id} [get]
func (h *GroupHandler) GetByID(c *gin.Context) {
	id, ok := h.uuidParam(c, "id")
	if !ok {
		return
	}

	group, err := h.service.GetGroup(c.Request.Context(), id)
	if err != nil {
		h.HandleError(c, err)
		return
	}

	h.Success(c, group)
}

// Update godoc
// @ID           updateGroup
// @Summary      Update a group
// @Description  Rename a group or change its description. Names stay unique case-insensitively.
// @Tags         groups
// @Accept       json
// @Produce      json
// @Param        id path string true "Group ID" format(uuid)
// @Param        request body partnerapp.UpdateGroupRequest true "Group update request"
// @Success      200 {object} APIResponse[partnerapp.GroupResponse]
// @Failure      404 {object} ErrorResponse
// @Failure      409 {object} ErrorResponse
// @Router       /groups/{id} [put]
func (h *GroupHandler) Update(c *gin.Context) {
	id, ok := h.uuidParam(c, "id")
	if !ok {
		return
	}

	var req partnerapp.UpdateGroupRequest
	if !h.bindJSON(c, &req) {
		return
	}

	group, err := h.service.UpdateGroup(c.Request.Context(), id, req)
	if err != nil {
		h.HandleError(c, err)
		return
	}

	h.Success(c, group)
}

// Delete godoc
// @ID           deleteGroup
// @Summary      Delete a group
// @Description  Remove a group. Member clients keep their reference, which then reads as no group.
// @Tags         groups
// @Param        id path string true "Group ID" format(uuid)
// @Success      204
// @Failure      404 {object} ErrorResponse
// @Router       /groups/{id} [delete]
func (h *GroupHandler) Delete(c *gin.Context) {
	id, ok := h.uuidParam(c, "id")
	if !ok {
		return
	}

	if err := h.service.DeleteGroup(c.Request.Context(), id); err != nil {
		h.HandleError(c, err)
		return
	}

	h.NoContent(c)
}

// Members godoc
// @ID           listGroupMembers
// @Summary      List the clients of a group
// @Tags         groups
// @Produce      json
// @Param        id path string true "Group ID" format(uuid)
// @Success      200 {object} APIResponse[[]partnerapp.ClientResponse]
// @Failure      404 {object} ErrorResponse
// @Router       /groups/{id}/members [get]
func (h *GroupHandler) Members(c *gin.Context) {
	id, ok := h.uuidParam(c, "id")
	if !ok {
		return
	}

	clients, err := h.service.ListGroupMembers(c.Request.Context(), id)
	if err != nil {
		h.HandleError(c, err)
		return
	}

	h.SuccessList(c, clients, len(clients))
}
