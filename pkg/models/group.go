package models

import "time"

const (
	// MaxGroupMembers 组的最大人数
	MaxGroupMembers = 5
	// MinGroupMembers 少于这个人数组会解散
	MinGroupMembers = 2
)

// Group 购物组，成员编号始终是 1..N
type Group struct {
	ID        int64         `json:"id" db:"id"`
	Members   []GroupMember `json:"members"`
	CreatedAt time.Time     `json:"-" db:"created_at"`
}

// GroupMember 组成员
type GroupMember struct {
	GroupID      int64     `json:"-" db:"group_id"`
	UserID       int64     `json:"user_id" db:"user_id"`
	Login        string    `json:"login" db:"login"`
	MemberNumber int       `json:"member_number" db:"member_number"`
	JoinedAt     time.Time `json:"-" db:"joined_at"`
}

// GroupMembersResponse GET /group 的响应
type GroupMembersResponse struct {
	Members []GroupMember `json:"members"`
}

// MemberIDs 返回所有成员的用户ID
func (g *Group) MemberIDs() []int64 {
	ids := make([]int64, 0, len(g.Members))
	for _, m := range g.Members {
		ids = append(ids, m.UserID)
	}
	return ids
}

// HasMember 判断用户是否在组内
func (g *Group) HasMember(userID int64) bool {
	for _, m := range g.Members {
		if m.UserID == userID {
			return true
		}
	}
	return false
}
