package handlers

import (
	"net/http"

	"buy-log-backend/pkg/groups"
	"buy-log-backend/pkg/middleware"
	"buy-log-backend/pkg/models"
	"buy-log-backend/pkg/utils"
)

// GroupHandler 购物组处理器
type GroupHandler struct {
	groups *groups.Service
}

// NewGroupHandler 创建购物组处理器
func NewGroupHandler(groupService *groups.Service) *GroupHandler {
	return &GroupHandler{groups: groupService}
}

// GET /group
func (h *GroupHandler) Get(w http.ResponseWriter, r *http.Request) {
	user, err := middleware.RequireUser(r.Context())
	if err != nil {
		utils.WriteUnauthorizedResponse(w, "authentication required")
		return
	}

	members, err := h.groups.GetGroup(r.Context(), user.ID)
	if err != nil {
		utils.WriteAppError(w, err)
		return
	}
	utils.WriteSuccessResponse(w, models.GroupMembersResponse{Members: members})
}

// DELETE /group 退出当前组
func (h *GroupHandler) Leave(w http.ResponseWriter, r *http.Request) {
	user, err := middleware.RequireUser(r.Context())
	if err != nil {
		utils.WriteUnauthorizedResponse(w, "authentication required")
		return
	}

	if err := h.groups.Leave(r.Context(), user.ID); err != nil {
		utils.WriteAppError(w, err)
		return
	}
	utils.WriteSuccessResponse(w, map[string]string{"message": "left group"})
}
