package models

import "time"

// Invite is a pending directed invitation between two users
type Invite struct {
	ID         int64     `json:"invite_id" db:"id"`
	FromUserID int64     `json:"from_user_id" db:"from_user_id"`
	ToUserID   int64     `json:"to_user_id,omitempty" db:"to_user_id"`
	FromLogin  string    `json:"from_login" db:"from_login"`
	CreatedAt  time.Time `json:"created_at" db:"created_at"`
}

// InviteRequest POST /invite 请求体
type InviteRequest struct {
	Login string `json:"login"`
}

// InviteResult POST /invite 的结果
//
// 普通邀请只带 InviteID；互相邀请后 MutualInvite 为 true 并携带组信息。
type InviteResult struct {
	Message      string `json:"message"`
	InviteID     int64  `json:"invite_id,omitempty"`
	MutualInvite bool   `json:"mutual_invite,omitempty"`
	Group        *Group `json:"group,omitempty"`
}

// InviteListResponse GET /invite 的响应
type InviteListResponse struct {
	Invites []Invite `json:"invites"`
}
