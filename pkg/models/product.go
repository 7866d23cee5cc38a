package models

// Product 商品
type Product struct {
	ID          int64    `json:"id" db:"id"`
	Name        string   `json:"name" db:"name"`
	Volume      string   `json:"volume" db:"volume"`
	Brand       string   `json:"brand" db:"brand"`
	DefaultTags []string `json:"default_tags" db:"default_tags"`
	UserID      int64    `json:"user_id" db:"user_id"`
}

// ProductListResponse GET /products 的响应
type ProductListResponse struct {
	Products []Product `json:"products"`
}

// DeleteRequest DELETE 请求体，只带资源ID
type DeleteRequest struct {
	ID int64 `json:"id"`
}
