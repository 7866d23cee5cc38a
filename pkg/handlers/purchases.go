package handlers

import (
	"errors"
	"net/http"

	"buy-log-backend/pkg/database"
	"buy-log-backend/pkg/groups"
	"buy-log-backend/pkg/middleware"
	"buy-log-backend/pkg/models"
	"buy-log-backend/pkg/utils"
)

// PurchasesHandler 购买记录处理器
type PurchasesHandler struct {
	db     database.DatabaseInterface
	groups *groups.Service
}

// NewPurchasesHandler 创建购买记录处理器
func NewPurchasesHandler(db database.DatabaseInterface, groupService *groups.Service) *PurchasesHandler {
	return &PurchasesHandler{db: db, groups: groupService}
}

// GET /purchases
func (h *PurchasesHandler) List(w http.ResponseWriter, r *http.Request) {
	user, err := middleware.RequireUser(r.Context())
	if err != nil {
		utils.WriteUnauthorizedResponse(w, "authentication required")
		return
	}

	owners, err := h.groups.ResolveOwnerSet(r.Context(), user.ID)
	if err != nil {
		utils.WriteAppError(w, err)
		return
	}
	purchases, err := h.db.ListPurchasesByOwners(r.Context(), owners)
	if err != nil {
		utils.WriteAppError(w, err)
		return
	}
	utils.WriteSuccessResponse(w, models.PurchaseListResponse{Purchases: purchases})
}

// POST /purchases
func (h *PurchasesHandler) Create(w http.ResponseWriter, r *http.Request) {
	user, err := middleware.RequireUser(r.Context())
	if err != nil {
		utils.WriteUnauthorizedResponse(w, "authentication required")
		return
	}

	var p models.Purchase
	if err := utils.ParseJSONBody(r, &p); err != nil {
		utils.WriteBadRequestResponse(w, "invalid request body")
		return
	}
	if err := utils.ValidatePurchase(&p); err != nil {
		utils.WriteAppError(w, err)
		return
	}

	// 只能记录自己或组员的商品
	product, err := h.db.GetProduct(r.Context(), p.ProductID)
	if err != nil {
		writeStoreError(w, err, "product not found")
		return
	}
	visible, err := h.groups.CanSee(r.Context(), user.ID, product.UserID)
	if err != nil {
		utils.WriteAppError(w, err)
		return
	}
	if !visible {
		utils.WriteNotFoundResponse(w, "product not found")
		return
	}

	p.ID = 0
	p.UserID = user.ID
	if err := h.db.CreatePurchase(r.Context(), &p); err != nil {
		// 商品在校验之后被删除
		if errors.Is(err, database.ErrReferenced) {
			utils.WriteNotFoundResponse(w, "product not found")
			return
		}
		utils.WriteAppError(w, err)
		return
	}
	utils.WriteSuccessResponse(w, p)
}

// DELETE /purchases
func (h *PurchasesHandler) Delete(w http.ResponseWriter, r *http.Request) {
	user, err := middleware.RequireUser(r.Context())
	if err != nil {
		utils.WriteUnauthorizedResponse(w, "authentication required")
		return
	}

	var req models.DeleteRequest
	if err := utils.ParseJSONBody(r, &req); err != nil {
		utils.WriteBadRequestResponse(w, "invalid request body")
		return
	}
	if req.ID <= 0 {
		utils.WriteBadRequestResponse(w, "id is required")
		return
	}

	if err := h.db.DeletePurchase(r.Context(), req.ID, user.ID); err != nil {
		writeStoreError(w, err, "purchase not found")
		return
	}
	utils.WriteNoContentResponse(w)
}
