package handlers

import (
	"net/http"

	"buy-log-backend/pkg/groups"
	"buy-log-backend/pkg/middleware"
	"buy-log-backend/pkg/models"
	"buy-log-backend/pkg/utils"
)

// InviteHandler 邀请处理器
type InviteHandler struct {
	groups *groups.Service
}

// NewInviteHandler 创建邀请处理器
func NewInviteHandler(groupService *groups.Service) *InviteHandler {
	return &InviteHandler{groups: groupService}
}

// GET /invite
func (h *InviteHandler) List(w http.ResponseWriter, r *http.Request) {
	user, err := middleware.RequireUser(r.Context())
	if err != nil {
		utils.WriteUnauthorizedResponse(w, "authentication required")
		return
	}

	invites, err := h.groups.ListIncoming(r.Context(), user.ID)
	if err != nil {
		utils.WriteAppError(w, err)
		return
	}
	utils.WriteSuccessResponse(w, models.InviteListResponse{Invites: invites})
}

// POST /invite
func (h *InviteHandler) Send(w http.ResponseWriter, r *http.Request) {
	user, err := middleware.RequireUser(r.Context())
	if err != nil {
		utils.WriteUnauthorizedResponse(w, "authentication required")
		return
	}

	var req models.InviteRequest
	if err := utils.ParseJSONBody(r, &req); err != nil {
		utils.WriteBadRequestResponse(w, "invalid request body")
		return
	}

	result, err := h.groups.SendInvite(r.Context(), user.ID, req.Login)
	if err != nil {
		utils.WriteAppError(w, err)
		return
	}
	utils.WriteSuccessResponse(w, result)
}
