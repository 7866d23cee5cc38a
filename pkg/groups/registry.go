// Package groups 管理购物组、邀请以及组内可见性
//
// 所有改变组成员的操作都按同一顺序加锁：先按ID升序锁用户，再按ID升序锁组，
// 然后在一个数据库事务里重新读取成员关系再做决定。
package groups

import (
	"context"
	"errors"
	"fmt"
	"slices"

	"buy-log-backend/pkg/apperrors"
	"buy-log-backend/pkg/database"
	"buy-log-backend/pkg/models"
)

// maxLockAttempts 成员关系在加锁期间发生变化时的重试次数
const maxLockAttempts = 3

// errStaleMembership 事务内读到的组不在已加锁的集合里
var errStaleMembership = errors.New("group membership changed while acquiring locks")

// Service 组、邀请和可见性服务
type Service struct {
	db         database.DatabaseInterface
	userLocks  *keyedMutex
	groupLocks *keyedMutex
}

// NewService 创建服务
func NewService(db database.DatabaseInterface) *Service {
	return &Service{
		db:         db,
		userLocks:  newKeyedMutex(),
		groupLocks: newKeyedMutex(),
	}
}

// membershipTx 在加锁后的事务里读取成员关系
type membershipTx struct {
	tx     database.GroupTx
	locked map[int64]bool
}

// groupOf 重新读取用户所在组，并确认该组已经加锁
func (m *membershipTx) groupOf(ctx context.Context, userID int64) (*models.Group, error) {
	group, err := m.tx.GroupOf(ctx, userID)
	if err != nil {
		return nil, err
	}
	if group != nil && !m.locked[group.ID] {
		return nil, errStaleMembership
	}
	return group, nil
}

// withMembershipLocks 锁定用户和他们当前所在的组，然后在事务中执行 fn
func (s *Service) withMembershipLocks(ctx context.Context, userIDs []int64, fn func(m *membershipTx) error) error {
	users := sortedUnique(userIDs)
	releaseUsers := s.userLocks.lockAll(users...)
	defer releaseUsers()

	for attempt := 1; ; attempt++ {
		err := s.lockGroupsAndRun(ctx, users, fn)
		if !errors.Is(err, errStaleMembership) {
			return err
		}
		if attempt == maxLockAttempts {
			return apperrors.Wrap(apperrors.CodeConflict, "group membership changed concurrently, please retry", err)
		}
		fmt.Printf("🔄 Group membership changed for users %v, retrying (attempt %d)\n", users, attempt+1)
	}
}

func (s *Service) lockGroupsAndRun(ctx context.Context, users []int64, fn func(m *membershipTx) error) error {
	var groupIDs []int64
	for _, userID := range users {
		group, err := s.db.GetGroupByUser(ctx, userID)
		if err != nil {
			return err
		}
		if group != nil {
			groupIDs = append(groupIDs, group.ID)
		}
	}
	groupIDs = sortedUnique(groupIDs)

	releaseGroups := s.groupLocks.lockAll(groupIDs...)
	defer releaseGroups()

	return s.db.RunInTx(ctx, func(tx database.GroupTx) error {
		for _, userID := range users {
			if err := tx.AdvisoryLock(ctx, userLockKey(userID)); err != nil {
				return err
			}
		}
		locked := make(map[int64]bool, len(groupIDs))
		for _, groupID := range groupIDs {
			if err := tx.AdvisoryLock(ctx, groupLockKey(groupID)); err != nil {
				return err
			}
			locked[groupID] = true
		}
		return fn(&membershipTx{tx: tx, locked: locked})
	})
}

// formOrExpand 把互相邀请的两个用户放进同一个组
//
// 都没有组时新建组，ID小的用户编号为1；只有一方有组时另一方编号为 size+1。
func (s *Service) formOrExpand(ctx context.Context, m *membershipTx, a, b int64) (*models.Group, error) {
	groupA, err := m.groupOf(ctx, a)
	if err != nil {
		return nil, err
	}
	groupB, err := m.groupOf(ctx, b)
	if err != nil {
		return nil, err
	}

	switch {
	case groupA != nil && groupB != nil:
		if groupA.ID != groupB.ID {
			return nil, apperrors.InvalidState("cannot invite users who are in different groups")
		}
		return groupA, nil

	case groupA == nil && groupB == nil:
		groupID, err := m.tx.CreateGroup(ctx)
		if err != nil {
			return nil, err
		}
		first, second := min(a, b), max(a, b)
		if err := m.tx.AddMember(ctx, groupID, first, 1); err != nil {
			return nil, translateStorageError(err)
		}
		if err := m.tx.AddMember(ctx, groupID, second, 2); err != nil {
			return nil, translateStorageError(err)
		}
		fmt.Printf("✅ Created group %d with users %d (member 1) and %d (member 2)\n", groupID, first, second)
		return m.tx.GroupOf(ctx, a)

	default:
		group, newcomer := groupA, b
		if group == nil {
			group, newcomer = groupB, a
		}
		if len(group.Members) >= models.MaxGroupMembers {
			return nil, apperrors.New(apperrors.CodeCapacityExceeded,
				fmt.Sprintf("group has reached maximum size of %d members", models.MaxGroupMembers))
		}
		number := len(group.Members) + 1
		if err := m.tx.AddMember(ctx, group.ID, newcomer, number); err != nil {
			return nil, translateStorageError(err)
		}
		fmt.Printf("✅ Added user %d to group %d with member number %d\n", newcomer, group.ID, number)
		return m.tx.GroupOf(ctx, newcomer)
	}
}

// Leave 用户退出所在组
//
// 只剩一个成员时组解散；否则剩余成员按原编号排序后重新编号为 1..N。
func (s *Service) Leave(ctx context.Context, userID int64) error {
	return s.withMembershipLocks(ctx, []int64{userID}, func(m *membershipTx) error {
		group, err := m.groupOf(ctx, userID)
		if err != nil {
			return err
		}
		if group == nil {
			return apperrors.InvalidState("you are not in a group")
		}

		if err := m.tx.RemoveMember(ctx, group.ID, userID); err != nil {
			return err
		}

		survivors := make([]models.GroupMember, 0, len(group.Members))
		for _, member := range group.Members {
			if member.UserID != userID {
				survivors = append(survivors, member)
			}
		}

		if len(survivors) < models.MinGroupMembers {
			if err := m.tx.DeleteGroup(ctx, group.ID); err != nil {
				return err
			}
			fmt.Printf("🧹 Group %d dissolved after user %d left\n", group.ID, userID)
			return nil
		}

		if err := renumber(ctx, m.tx, group.ID, survivors); err != nil {
			return err
		}
		fmt.Printf("✅ User %d left group %d, %d members remain\n", userID, group.ID, len(survivors))
		return nil
	})
}

// renumber 按原编号升序重新编号；新编号不大于原编号，逐行更新不会撞上唯一约束
func renumber(ctx context.Context, tx database.GroupTx, groupID int64, members []models.GroupMember) error {
	slices.SortFunc(members, func(a, b models.GroupMember) int {
		return a.MemberNumber - b.MemberNumber
	})
	for i, member := range members {
		number := i + 1
		if member.MemberNumber == number {
			continue
		}
		if err := tx.SetMemberNumber(ctx, groupID, member.UserID, number); err != nil {
			return translateStorageError(err)
		}
	}
	return nil
}

// GetGroup 返回用户所在组的成员（按编号排序）；没有组时成员列表为空
func (s *Service) GetGroup(ctx context.Context, userID int64) ([]models.GroupMember, error) {
	group, err := s.db.GetGroupByUser(ctx, userID)
	if err != nil {
		return nil, err
	}
	if group == nil {
		return []models.GroupMember{}, nil
	}
	return group.Members, nil
}

// translateStorageError 唯一约束冲突说明有并发修改
func translateStorageError(err error) error {
	if errors.Is(err, database.ErrAlreadyExists) {
		return apperrors.Wrap(apperrors.CodeConflict, "group membership changed concurrently, please retry", err)
	}
	return err
}
