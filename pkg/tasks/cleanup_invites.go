package tasks

import (
	"context"
	"fmt"
	"time"
)

// InviteCleaner 删除过期邀请的能力
type InviteCleaner interface {
	CleanupExpired(ctx context.Context, ttl time.Duration) (int64, error)
}

// CleanupInvitesTask 定期删除超过 ttl 的待处理邀请
func CleanupInvitesTask(cleaner InviteCleaner, ttl, interval time.Duration) Task {
	return Task{
		Name:     "cleanup_invites",
		Interval: interval,
		Run: func(ctx context.Context) {
			removed, err := cleaner.CleanupExpired(ctx, ttl)
			if err != nil {
				fmt.Printf("❌ Failed to cleanup old invites: %v\n", err)
				return
			}
			if removed > 0 {
				fmt.Printf("🧹 Cleaned up %d invite(s) older than %s\n", removed, ttl)
			}
		},
	}
}
