package groups

import "context"

// ResolveOwnerSet 返回调用方能看到其资源的用户集合
//
// 没有组时只有自己；有组时是全体成员（包含自己）。每次都读取已提交的最新状态。
func (s *Service) ResolveOwnerSet(ctx context.Context, userID int64) ([]int64, error) {
	group, err := s.db.GetGroupByUser(ctx, userID)
	if err != nil {
		return nil, err
	}
	if group == nil {
		return []int64{userID}, nil
	}
	return group.MemberIDs(), nil
}

// CanSee 判断 ownerID 的资源是否对 userID 可见
func (s *Service) CanSee(ctx context.Context, userID, ownerID int64) (bool, error) {
	if userID == ownerID {
		return true, nil
	}
	group, err := s.db.GetGroupByUser(ctx, userID)
	if err != nil {
		return false, err
	}
	return group != nil && group.HasMember(ownerID), nil
}
