package database

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"buy-log-backend/pkg/models"
)

var (
	// ErrNotFound 记录不存在，或不属于调用方
	ErrNotFound = errors.New("not found")
	// ErrAlreadyExists 违反唯一约束
	ErrAlreadyExists = errors.New("already exists")
	// ErrReferenced 记录仍被其他记录引用，无法删除
	ErrReferenced = errors.New("still referenced")
)

// DatabaseInterface 定义数据库访问接口
type DatabaseInterface interface {
	// 用户管理
	CreateUser(ctx context.Context, user *models.User) error
	GetUserByLogin(ctx context.Context, login string) (*models.User, error)
	GetUserByID(ctx context.Context, id int64) (*models.User, error)

	// 邀请
	ListIncomingInvites(ctx context.Context, userID int64) ([]models.Invite, error)
	DeleteInvitesOlderThan(ctx context.Context, cutoff time.Time) (int64, error)

	// 组（只读）；未加入组时返回 nil, nil
	GetGroupByUser(ctx context.Context, userID int64) (*models.Group, error)

	// RunInTx 在一个事务中执行 fn，fn 返回错误时回滚
	RunInTx(ctx context.Context, fn func(tx GroupTx) error) error

	// 商品
	ListProductsByOwners(ctx context.Context, ownerIDs []int64) ([]models.Product, error)
	GetProduct(ctx context.Context, id int64) (*models.Product, error)
	CreateProduct(ctx context.Context, p *models.Product) error
	// UpdateProduct 只更新 p.UserID 拥有的商品，否则返回 ErrNotFound
	UpdateProduct(ctx context.Context, p *models.Product) error
	DeleteProduct(ctx context.Context, id, userID int64) error

	// 购买记录
	ListPurchasesByOwners(ctx context.Context, ownerIDs []int64) ([]models.Purchase, error)
	CreatePurchase(ctx context.Context, p *models.Purchase) error
	DeletePurchase(ctx context.Context, id, userID int64) error

	// 健康检查
	HealthCheck() error

	// 关闭连接
	Close() error
}

// GroupTx 组和邀请的事务内操作
type GroupTx interface {
	// AdvisoryLock 获取事务级的跨进程锁，事务结束自动释放
	AdvisoryLock(ctx context.Context, key string) error

	// GroupOf 读取用户所在组（按成员编号排序）；未加入组时返回 nil, nil
	GroupOf(ctx context.Context, userID int64) (*models.Group, error)
	CreateGroup(ctx context.Context) (int64, error)
	DeleteGroup(ctx context.Context, groupID int64) error
	AddMember(ctx context.Context, groupID, userID int64, memberNumber int) error
	RemoveMember(ctx context.Context, groupID, userID int64) error
	SetMemberNumber(ctx context.Context, groupID, userID int64, memberNumber int) error

	// GetInvite 读取 from -> to 的邀请；不存在时返回 nil, nil
	GetInvite(ctx context.Context, fromUserID, toUserID int64) (*models.Invite, error)
	// UpsertInvite 创建邀请；已存在时返回原有记录
	UpsertInvite(ctx context.Context, fromUserID, toUserID int64) (*models.Invite, error)
	// DeleteInvitesBetween 删除两个用户之间两个方向的邀请
	DeleteInvitesBetween(ctx context.Context, a, b int64) error
}

// DatabaseConfig 数据库配置
type DatabaseConfig struct {
	UseLocalDB  bool
	SQLitePath  string
	PostgresDSN string
}

// NewDatabase 根据配置选择数据库实现：USE_LOCAL_DB 用 SQLite，否则 PostgreSQL
func NewDatabase(config DatabaseConfig) (DatabaseInterface, error) {
	if config.UseLocalDB {
		fmt.Printf("🗂️  Using local SQLite database at %s\n", config.SQLitePath)
		db, err := NewSQLiteDatabase(config.SQLitePath)
		if err != nil {
			return nil, err
		}
		return db, nil
	}

	if config.PostgresDSN != "" {
		fmt.Printf("🗄️  Using PostgreSQL database\n")
		db, err := NewPostgresDatabase(config.PostgresDSN)
		if err != nil {
			return nil, err
		}
		return db, nil
	}

	return nil, fmt.Errorf("no valid database configuration found: set POSTGRES_DSN or USE_LOCAL_DB=true")
}

// queryer 由 *sql.DB 和 *sql.Tx 共同实现
type queryer interface {
	ExecContext(ctx context.Context, query string, args ...any) (sql.Result, error)
	QueryContext(ctx context.Context, query string, args ...any) (*sql.Rows, error)
	QueryRowContext(ctx context.Context, query string, args ...any) *sql.Row
}

// runInTx 开启事务并执行 fn，按结果提交或回滚
func runInTx(ctx context.Context, db *sql.DB, fn func(tx *sql.Tx) error) error {
	tx, err := db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback()

	if err := fn(tx); err != nil {
		return err
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("failed to commit transaction: %w", err)
	}
	return nil
}

// expectOneRow 检查 UPDATE/DELETE 是否命中一行，未命中返回 ErrNotFound
func expectOneRow(result sql.Result, what string) error {
	affected, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("failed to read affected rows for %s: %w", what, err)
	}
	if affected == 0 {
		return fmt.Errorf("%s: %w", what, ErrNotFound)
	}
	return nil
}

// scanGroupMembers 把成员行组装成组；没有行时返回 nil
func scanGroupMembers(rows *sql.Rows, scan func(rows *sql.Rows, m *models.GroupMember) error) (*models.Group, error) {
	defer rows.Close()

	var group *models.Group
	for rows.Next() {
		var m models.GroupMember
		if err := scan(rows, &m); err != nil {
			return nil, fmt.Errorf("failed to scan group member: %w", err)
		}
		if group == nil {
			group = &models.Group{ID: m.GroupID}
		}
		group.Members = append(group.Members, m)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to iterate group members: %w", err)
	}
	return group, nil
}

// normalizeTags 保证标签切片非 nil
func normalizeTags(tags []string) []string {
	if tags == nil {
		return []string{}
	}
	return tags
}
