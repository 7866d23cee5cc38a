package models

import "time"

// Purchase 购买记录
type Purchase struct {
	ID        int64     `json:"id" db:"id"`
	ProductID int64     `json:"product_id" db:"product_id"`
	Quantity  int       `json:"quantity" db:"quantity"`
	Price     int64     `json:"price" db:"price"`
	Date      time.Time `json:"date" db:"date"`
	Store     string    `json:"store" db:"store"`
	Tags      []string  `json:"tags" db:"tags"`
	ReceiptID int64     `json:"receipt_id,omitempty" db:"receipt_id"`
	UserID    int64     `json:"user_id" db:"user_id"`
}

// PurchaseListResponse GET /purchases 的响应
type PurchaseListResponse struct {
	Purchases []Purchase `json:"purchases"`
}
