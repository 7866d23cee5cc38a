package handlers

import (
	"net/http"

	"buy-log-backend/pkg/database"
	"buy-log-backend/pkg/groups"
	"buy-log-backend/pkg/middleware"
	"buy-log-backend/pkg/models"
	"buy-log-backend/pkg/utils"
)

// ProductsHandler 商品处理器
type ProductsHandler struct {
	db     database.DatabaseInterface
	groups *groups.Service
}

// NewProductsHandler 创建商品处理器
func NewProductsHandler(db database.DatabaseInterface, groupService *groups.Service) *ProductsHandler {
	return &ProductsHandler{db: db, groups: groupService}
}

// GET /products
func (h *ProductsHandler) List(w http.ResponseWriter, r *http.Request) {
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
	products, err := h.db.ListProductsByOwners(r.Context(), owners)
	if err != nil {
		utils.WriteAppError(w, err)
		return
	}
	utils.WriteSuccessResponse(w, models.ProductListResponse{Products: products})
}

// POST /products
func (h *ProductsHandler) Create(w http.ResponseWriter, r *http.Request) {
	user, err := middleware.RequireUser(r.Context())
	if err != nil {
		utils.WriteUnauthorizedResponse(w, "authentication required")
		return
	}

	var p models.Product
	if err := utils.ParseJSONBody(r, &p); err != nil {
		utils.WriteBadRequestResponse(w, "invalid request body")
		return
	}
	if err := utils.ValidateProduct(&p); err != nil {
		utils.WriteAppError(w, err)
		return
	}

	p.ID = 0
	p.UserID = user.ID
	if err := h.db.CreateProduct(r.Context(), &p); err != nil {
		utils.WriteAppError(w, err)
		return
	}
	utils.WriteSuccessResponse(w, p)
}

// PUT /products
func (h *ProductsHandler) Update(w http.ResponseWriter, r *http.Request) {
	user, err := middleware.RequireUser(r.Context())
	if err != nil {
		utils.WriteUnauthorizedResponse(w, "authentication required")
		return
	}

	var p models.Product
	if err := utils.ParseJSONBody(r, &p); err != nil {
		utils.WriteBadRequestResponse(w, "invalid request body")
		return
	}
	if p.ID <= 0 {
		utils.WriteBadRequestResponse(w, "id is required")
		return
	}
	if err := utils.ValidateProduct(&p); err != nil {
		utils.WriteAppError(w, err)
		return
	}

	p.UserID = user.ID
	if err := h.db.UpdateProduct(r.Context(), &p); err != nil {
		writeStoreError(w, err, "product not found")
		return
	}
	utils.WriteSuccessResponse(w, p)
}

// DELETE /products
func (h *ProductsHandler) Delete(w http.ResponseWriter, r *http.Request) {
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

	if err := h.db.DeleteProduct(r.Context(), req.ID, user.ID); err != nil {
		writeStoreError(w, err, "product not found")
		return
	}
	utils.WriteNoContentResponse(w)
}
