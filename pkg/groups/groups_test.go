package groups

import (
	"context"
	"fmt"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"buy-log-backend/pkg/apperrors"
	"buy-log-backend/pkg/database"
	"buy-log-backend/pkg/models"
)

func newTestService(t *testing.T) (*Service, database.DatabaseInterface) {
	t.Helper()
	db, err := database.NewSQLiteDatabase(filepath.Join(t.TempDir(), "groups.db"))
	require.NoError(t, err)
	t.Cleanup(func() { db.Close() })
	return NewService(db), db
}

func mustUser(t *testing.T, db database.DatabaseInterface, login string) *models.User {
	t.Helper()
	user := &models.User{Login: login, Password: "hash"}
	require.NoError(t, db.CreateUser(context.Background(), user))
	return user
}

// makeGroup 通过互相邀请把 users 依次加入 users[0] 所在的组
func makeGroup(t *testing.T, svc *Service, users ...*models.User) {
	t.Helper()
	ctx := context.Background()
	for _, u := range users[1:] {
		_, err := svc.SendInvite(ctx, users[0].ID, u.Login)
		require.NoError(t, err)
		result, err := svc.SendInvite(ctx, u.ID, users[0].Login)
		require.NoError(t, err)
		require.True(t, result.MutualInvite)
	}
}

func memberNumbers(t *testing.T, svc *Service, userID int64) map[string]int {
	t.Helper()
	members, err := svc.GetGroup(context.Background(), userID)
	require.NoError(t, err)
	numbers := make(map[string]int, len(members))
	for _, m := range members {
		numbers[m.Login] = m.MemberNumber
	}
	return numbers
}

// assertDense 检查组内编号正好是 1..N 且人数在 2..5 之间
func assertDense(t *testing.T, members []models.GroupMember) {
	t.Helper()
	if len(members) == 0 {
		return
	}
	assert.GreaterOrEqual(t, len(members), models.MinGroupMembers)
	assert.LessOrEqual(t, len(members), models.MaxGroupMembers)
	for i, m := range members {
		assert.Equal(t, i+1, m.MemberNumber)
	}
}

func TestSendInviteCreatesPendingInvite(t *testing.T) {
	svc, db := newTestService(t)
	ctx := context.Background()
	alice := mustUser(t, db, "alice")
	bob := mustUser(t, db, "bob")

	first, err := svc.SendInvite(ctx, alice.ID, "bob")
	require.NoError(t, err)
	assert.Equal(t, "invite sent", first.Message)
	assert.NotZero(t, first.InviteID)
	assert.False(t, first.MutualInvite)

	again, err := svc.SendInvite(ctx, alice.ID, "bob")
	require.NoError(t, err)
	assert.Equal(t, first.InviteID, again.InviteID)

	invites, err := svc.ListIncoming(ctx, bob.ID)
	require.NoError(t, err)
	require.Len(t, invites, 1)
	assert.Equal(t, "alice", invites[0].FromLogin)
}

func TestSendInviteValidation(t *testing.T) {
	svc, db := newTestService(t)
	ctx := context.Background()
	alice := mustUser(t, db, "alice")

	_, err := svc.SendInvite(ctx, alice.ID, "ghost")
	assert.Equal(t, apperrors.CodeNotFound, apperrors.CodeOf(err))

	_, err = svc.SendInvite(ctx, alice.ID, "alice")
	assert.Equal(t, apperrors.CodeValidation, apperrors.CodeOf(err))

	_, err = svc.SendInvite(ctx, alice.ID, "  ")
	assert.Equal(t, apperrors.CodeValidation, apperrors.CodeOf(err))
}

func TestMutualInviteFormsGroup(t *testing.T) {
	svc, db := newTestService(t)
	ctx := context.Background()
	alice := mustUser(t, db, "alice")
	bob := mustUser(t, db, "bob")

	_, err := svc.SendInvite(ctx, bob.ID, "alice")
	require.NoError(t, err)
	result, err := svc.SendInvite(ctx, alice.ID, "bob")
	require.NoError(t, err)

	assert.True(t, result.MutualInvite)
	assert.Equal(t, "group created", result.Message)
	require.NotNil(t, result.Group)
	assert.Len(t, result.Group.Members, 2)

	// ID 小的用户编号为 1
	assert.Equal(t, map[string]int{"alice": 1, "bob": 2}, memberNumbers(t, svc, bob.ID))

	// 两个方向的邀请都被消耗
	for _, u := range []*models.User{alice, bob} {
		invites, err := svc.ListIncoming(ctx, u.ID)
		require.NoError(t, err)
		assert.Empty(t, invites)
	}

	// 已在同一组：无操作
	same, err := svc.SendInvite(ctx, alice.ID, "bob")
	require.NoError(t, err)
	assert.False(t, same.MutualInvite)
	assert.Zero(t, same.InviteID)
}

func TestGroupExpandsUpToFiveMembers(t *testing.T) {
	svc, db := newTestService(t)
	ctx := context.Background()

	users := make([]*models.User, 6)
	for i := range users {
		users[i] = mustUser(t, db, fmt.Sprintf("user%d", i))
	}
	makeGroup(t, svc, users[:5]...)

	members, err := svc.GetGroup(ctx, users[4].ID)
	require.NoError(t, err)
	require.Len(t, members, 5)
	assertDense(t, members)
	assert.Equal(t, "user4", members[4].Login)

	_, err = svc.SendInvite(ctx, users[0].ID, users[5].Login)
	require.NoError(t, err)
	_, err = svc.SendInvite(ctx, users[5].ID, users[0].Login)
	require.Error(t, err)
	assert.Equal(t, apperrors.CodeCapacityExceeded, apperrors.CodeOf(err))
	assert.Contains(t, err.Error(), "maximum size of 5")

	// 失败的事务不会留下任何改动
	members, err = svc.GetGroup(ctx, users[5].ID)
	require.NoError(t, err)
	assert.Empty(t, members)
	invites, err := svc.ListIncoming(ctx, users[5].ID)
	require.NoError(t, err)
	assert.Len(t, invites, 1)
}

func TestInviteAcrossDifferentGroupsRejected(t *testing.T) {
	svc, db := newTestService(t)
	ctx := context.Background()
	a := mustUser(t, db, "a")
	b := mustUser(t, db, "b")
	c := mustUser(t, db, "c")
	d := mustUser(t, db, "d")
	makeGroup(t, svc, a, b)
	makeGroup(t, svc, c, d)

	_, err := svc.SendInvite(ctx, a.ID, "c")
	require.Error(t, err)
	assert.Equal(t, apperrors.CodeInvalidState, apperrors.CodeOf(err))
	assert.Contains(t, err.Error(), "different groups")
}

func TestLeaveRenumbersSurvivors(t *testing.T) {
	svc, db := newTestService(t)
	ctx := context.Background()
	a := mustUser(t, db, "a")
	b := mustUser(t, db, "b")
	c := mustUser(t, db, "c")
	d := mustUser(t, db, "d")
	makeGroup(t, svc, a, b, c, d)

	require.NoError(t, svc.Leave(ctx, b.ID))

	assert.Equal(t, map[string]int{"a": 1, "c": 2, "d": 3}, memberNumbers(t, svc, a.ID))
	members, err := svc.GetGroup(ctx, b.ID)
	require.NoError(t, err)
	assert.Empty(t, members)

	require.NoError(t, svc.Leave(ctx, a.ID))
	assert.Equal(t, map[string]int{"c": 1, "d": 2}, memberNumbers(t, svc, d.ID))
}

func TestLeaveDissolvesGroupOfTwo(t *testing.T) {
	svc, db := newTestService(t)
	ctx := context.Background()
	a := mustUser(t, db, "a")
	b := mustUser(t, db, "b")
	makeGroup(t, svc, a, b)

	require.NoError(t, svc.Leave(ctx, a.ID))

	for _, u := range []*models.User{a, b} {
		members, err := svc.GetGroup(ctx, u.ID)
		require.NoError(t, err)
		assert.Empty(t, members)

		owners, err := svc.ResolveOwnerSet(ctx, u.ID)
		require.NoError(t, err)
		assert.Equal(t, []int64{u.ID}, owners)
	}

	err := svc.Leave(ctx, b.ID)
	require.Error(t, err)
	assert.Equal(t, apperrors.CodeInvalidState, apperrors.CodeOf(err))
}

func TestResolveOwnerSet(t *testing.T) {
	svc, db := newTestService(t)
	ctx := context.Background()
	a := mustUser(t, db, "a")
	b := mustUser(t, db, "b")
	c := mustUser(t, db, "c")

	owners, err := svc.ResolveOwnerSet(ctx, a.ID)
	require.NoError(t, err)
	assert.Equal(t, []int64{a.ID}, owners)

	makeGroup(t, svc, a, b)

	owners, err = svc.ResolveOwnerSet(ctx, b.ID)
	require.NoError(t, err)
	assert.ElementsMatch(t, []int64{a.ID, b.ID}, owners)

	visible, err := svc.CanSee(ctx, b.ID, a.ID)
	require.NoError(t, err)
	assert.True(t, visible)

	visible, err = svc.CanSee(ctx, c.ID, a.ID)
	require.NoError(t, err)
	assert.False(t, visible)

	visible, err = svc.CanSee(ctx, a.ID, c.ID)
	require.NoError(t, err)
	assert.False(t, visible)

	visible, err = svc.CanSee(ctx, c.ID, c.ID)
	require.NoError(t, err)
	assert.True(t, visible)
}

func TestCleanupExpired(t *testing.T) {
	svc, db := newTestService(t)
	ctx := context.Background()
	a := mustUser(t, db, "a")
	b := mustUser(t, db, "b")

	_, err := svc.SendInvite(ctx, a.ID, "b")
	require.NoError(t, err)

	deleted, err := svc.CleanupExpired(ctx, time.Hour)
	require.NoError(t, err)
	assert.Zero(t, deleted)

	deleted, err = svc.CleanupExpired(ctx, -time.Minute)
	require.NoError(t, err)
	assert.Equal(t, int64(1), deleted)

	invites, err := svc.ListIncoming(ctx, b.ID)
	require.NoError(t, err)
	assert.Empty(t, invites)
}

func TestConcurrentJoinsAndLeavesKeepNumbersDense(t *testing.T) {
	svc, db := newTestService(t)
	ctx := context.Background()

	users := make([]*models.User, 9)
	for i := range users {
		users[i] = mustUser(t, db, fmt.Sprintf("user%d", i))
	}
	hub := users[0]

	var wg sync.WaitGroup
	for _, u := range users[1:] {
		wg.Add(2)
		go func(u *models.User) {
			defer wg.Done()
			_, err := svc.SendInvite(ctx, hub.ID, u.Login)
			assertAllowed(t, err)
		}(u)
		go func(u *models.User) {
			defer wg.Done()
			_, err := svc.SendInvite(ctx, u.ID, hub.Login)
			assertAllowed(t, err)
		}(u)
	}
	wg.Wait()

	members, err := svc.GetGroup(ctx, hub.ID)
	require.NoError(t, err)
	require.NotEmpty(t, members)
	assertDense(t, members)

	for _, m := range members {
		wg.Add(1)
		go func(userID int64) {
			defer wg.Done()
			assertAllowed(t, svc.Leave(ctx, userID))
		}(m.UserID)
	}
	wg.Wait()

	for _, u := range users {
		members, err := svc.GetGroup(ctx, u.ID)
		require.NoError(t, err)
		assertDense(t, members)
	}
}

// assertAllowed 并发下可以出现的业务错误
func assertAllowed(t *testing.T, err error) {
	if err == nil {
		return
	}
	switch apperrors.CodeOf(err) {
	case apperrors.CodeCapacityExceeded, apperrors.CodeInvalidState, apperrors.CodeConflict:
	default:
		t.Errorf("unexpected error: %v", err)
	}
}

func TestKeyedMutexReleasesEntries(t *testing.T) {
	k := newKeyedMutex()
	release := k.lockAll(3, 1, 3, 2)
	assert.Len(t, k.locks, 3)
	release()
	assert.Empty(t, k.locks)
}
