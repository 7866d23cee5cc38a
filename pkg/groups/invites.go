package groups

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"buy-log-backend/pkg/apperrors"
	"buy-log-backend/pkg/database"
	"buy-log-backend/pkg/models"
)

// SendInvite 发送邀请；对方已经邀请过自己时直接组成（或扩展）组
func (s *Service) SendInvite(ctx context.Context, fromUserID int64, toLogin string) (*models.InviteResult, error) {
	toLogin = strings.TrimSpace(toLogin)
	if toLogin == "" {
		return nil, apperrors.Validation("login is required")
	}

	target, err := s.db.GetUserByLogin(ctx, toLogin)
	if err != nil {
		if errors.Is(err, database.ErrNotFound) {
			return nil, apperrors.NotFound("user not found")
		}
		return nil, err
	}
	if target.ID == fromUserID {
		return nil, apperrors.Validation("cannot invite yourself")
	}

	var result *models.InviteResult
	err = s.withMembershipLocks(ctx, []int64{fromUserID, target.ID}, func(m *membershipTx) error {
		fromGroup, err := m.groupOf(ctx, fromUserID)
		if err != nil {
			return err
		}
		toGroup, err := m.groupOf(ctx, target.ID)
		if err != nil {
			return err
		}

		if fromGroup != nil && toGroup != nil {
			if fromGroup.ID != toGroup.ID {
				return apperrors.InvalidState("cannot invite users who are in different groups")
			}
			result = &models.InviteResult{Message: "already in the same group", Group: fromGroup}
			return nil
		}

		reverse, err := m.tx.GetInvite(ctx, target.ID, fromUserID)
		if err != nil {
			return err
		}
		if reverse == nil {
			invite, err := m.tx.UpsertInvite(ctx, fromUserID, target.ID)
			if err != nil {
				return err
			}
			result = &models.InviteResult{Message: "invite sent", InviteID: invite.ID}
			return nil
		}

		fmt.Printf("🤝 Mutual invite between users %d and %d\n", fromUserID, target.ID)
		group, err := s.formOrExpand(ctx, m, fromUserID, target.ID)
		if err != nil {
			return err
		}
		if err := m.tx.DeleteInvitesBetween(ctx, fromUserID, target.ID); err != nil {
			return err
		}
		message := "group created"
		if len(group.Members) > models.MinGroupMembers {
			message = "joined group"
		}
		result = &models.InviteResult{Message: message, MutualInvite: true, Group: group}
		return nil
	})
	if err != nil {
		return nil, err
	}
	return result, nil
}

// ListIncoming 列出发给用户的待处理邀请
func (s *Service) ListIncoming(ctx context.Context, userID int64) ([]models.Invite, error) {
	return s.db.ListIncomingInvites(ctx, userID)
}

// CleanupExpired 删除创建时间早于 now-ttl 的邀请
func (s *Service) CleanupExpired(ctx context.Context, ttl time.Duration) (int64, error) {
	cutoff := time.Now().Add(-ttl)
	deleted, err := s.db.DeleteInvitesOlderThan(ctx, cutoff)
	if err != nil {
		return 0, fmt.Errorf("cleanup expired invites: %w", err)
	}
	return deleted, nil
}
