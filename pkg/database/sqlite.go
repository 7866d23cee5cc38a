package database

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"buy-log-backend/pkg/database/schema"
	"buy-log-backend/pkg/models"

	msqlite "modernc.org/sqlite"
	sqlite3lib "modernc.org/sqlite/lib"
)

// SQLiteDatabase 本地 SQLite 数据库实现（USE_LOCAL_DB=true）
type SQLiteDatabase struct {
	db *sql.DB
}

func toMillis(t time.Time) int64 {
	return t.UTC().UnixMilli()
}

func fromMillis(value int64) time.Time {
	return time.UnixMilli(value).UTC()
}

// NewSQLiteDatabase 打开 SQLite 数据库并建表
func NewSQLiteDatabase(path string) (*SQLiteDatabase, error) {
	if strings.TrimSpace(path) == "" {
		return nil, fmt.Errorf("sqlite path is required")
	}
	cleanPath := filepath.Clean(path)
	if dir := filepath.Dir(cleanPath); dir != "." {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return nil, fmt.Errorf("create sqlite dir: %w", err)
		}
	}

	dsn := cleanPath + "?_pragma=foreign_keys(1)&_pragma=journal_mode(WAL)&_pragma=busy_timeout(5000)&_pragma=synchronous(NORMAL)"
	sqlDB, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, fmt.Errorf("open sqlite db: %w", err)
	}
	// 单连接：写事务天然串行
	sqlDB.SetMaxOpenConns(1)

	if err := sqlDB.Ping(); err != nil {
		_ = sqlDB.Close()
		return nil, fmt.Errorf("ping sqlite db: %w", err)
	}
	if _, err := sqlDB.Exec(schema.SQLite); err != nil {
		_ = sqlDB.Close()
		return nil, fmt.Errorf("apply sqlite schema: %w", err)
	}

	fmt.Printf("✅ SQLite database ready at %s\n", cleanPath)
	return &SQLiteDatabase{db: sqlDB}, nil
}

// mapSQLiteError 把约束冲突转换为包内错误
func mapSQLiteError(err error, what string) error {
	var sqliteErr *msqlite.Error
	if errors.As(err, &sqliteErr) {
		switch sqliteErr.Code() {
		case sqlite3lib.SQLITE_CONSTRAINT_PRIMARYKEY, sqlite3lib.SQLITE_CONSTRAINT_UNIQUE:
			return fmt.Errorf("%s: %w", what, ErrAlreadyExists)
		case sqlite3lib.SQLITE_CONSTRAINT_FOREIGNKEY, sqlite3lib.SQLITE_CONSTRAINT_TRIGGER:
			// ON DELETE RESTRICT 报的是 TRIGGER 扩展码
			return fmt.Errorf("%s: %w", what, ErrReferenced)
		}
		if sqliteErr.Code()&0xff == sqlite3lib.SQLITE_CONSTRAINT && strings.Contains(sqliteErr.Error(), "FOREIGN KEY") {
			return fmt.Errorf("%s: %w", what, ErrReferenced)
		}
	}
	return fmt.Errorf("failed to %s: %w", what, err)
}

func encodeTags(tags []string) (string, error) {
	data, err := json.Marshal(normalizeTags(tags))
	if err != nil {
		return "", fmt.Errorf("encode tags: %w", err)
	}
	return string(data), nil
}

func decodeTags(raw string) ([]string, error) {
	tags := []string{}
	if raw == "" {
		return tags, nil
	}
	if err := json.Unmarshal([]byte(raw), &tags); err != nil {
		return nil, fmt.Errorf("decode tags: %w", err)
	}
	return normalizeTags(tags), nil
}

// inClause 生成 "?, ?, ?" 占位符和参数
func inClause(ids []int64) (string, []any) {
	placeholders := make([]string, len(ids))
	args := make([]any, len(ids))
	for i, id := range ids {
		placeholders[i] = "?"
		args[i] = id
	}
	return strings.Join(placeholders, ", "), args
}

// ===== 用户 =====

// CreateUser 创建用户
func (db *SQLiteDatabase) CreateUser(ctx context.Context, user *models.User) error {
	now := time.Now().UTC()
	result, err := db.db.ExecContext(ctx,
		`INSERT INTO users (login, password_hash, created_at) VALUES (?, ?, ?)`,
		user.Login, user.Password, toMillis(now))
	if err != nil {
		return mapSQLiteError(err, "create user")
	}
	id, err := result.LastInsertId()
	if err != nil {
		return fmt.Errorf("failed to read user id: %w", err)
	}
	user.ID = id
	user.CreatedAt = fromMillis(toMillis(now))
	return nil
}

// GetUserByLogin 根据登录名获取用户
func (db *SQLiteDatabase) GetUserByLogin(ctx context.Context, login string) (*models.User, error) {
	return db.getUser(ctx, `SELECT id, login, password_hash, created_at FROM users WHERE login = ?`, login)
}

// GetUserByID 根据ID获取用户
func (db *SQLiteDatabase) GetUserByID(ctx context.Context, id int64) (*models.User, error) {
	return db.getUser(ctx, `SELECT id, login, password_hash, created_at FROM users WHERE id = ?`, id)
}

func (db *SQLiteDatabase) getUser(ctx context.Context, query string, arg any) (*models.User, error) {
	var u models.User
	var createdAt int64
	err := db.db.QueryRowContext(ctx, query, arg).Scan(&u.ID, &u.Login, &u.Password, &createdAt)
	if err != nil {
		if err == sql.ErrNoRows {
			return nil, fmt.Errorf("user: %w", ErrNotFound)
		}
		return nil, fmt.Errorf("failed to get user: %w", err)
	}
	u.CreatedAt = fromMillis(createdAt)
	return &u, nil
}

// ===== 邀请 =====

// ListIncomingInvites 列出发给用户的待处理邀请
func (db *SQLiteDatabase) ListIncomingInvites(ctx context.Context, userID int64) ([]models.Invite, error) {
	rows, err := db.db.QueryContext(ctx, `
		SELECT i.id, i.from_user_id, i.to_user_id, u.login, i.created_at
		FROM invites i
		JOIN users u ON u.id = i.from_user_id
		WHERE i.to_user_id = ?
		ORDER BY i.created_at, i.id
	`, userID)
	if err != nil {
		return nil, fmt.Errorf("failed to list invites: %w", err)
	}
	defer rows.Close()

	invites := []models.Invite{}
	for rows.Next() {
		var inv models.Invite
		var createdAt int64
		if err := rows.Scan(&inv.ID, &inv.FromUserID, &inv.ToUserID, &inv.FromLogin, &createdAt); err != nil {
			return nil, fmt.Errorf("failed to scan invite: %w", err)
		}
		inv.CreatedAt = fromMillis(createdAt)
		invites = append(invites, inv)
	}
	return invites, rows.Err()
}

// DeleteInvitesOlderThan 删除早于 cutoff 的邀请，返回删除条数
func (db *SQLiteDatabase) DeleteInvitesOlderThan(ctx context.Context, cutoff time.Time) (int64, error) {
	result, err := db.db.ExecContext(ctx, `DELETE FROM invites WHERE created_at < ?`, toMillis(cutoff))
	if err != nil {
		return 0, fmt.Errorf("failed to delete expired invites: %w", err)
	}
	return result.RowsAffected()
}

// ===== 组 =====

func sqliteGroupOf(ctx context.Context, q queryer, userID int64) (*models.Group, error) {
	rows, err := q.QueryContext(ctx, `
		SELECT gm.group_id, gm.user_id, u.login, gm.member_number, gm.joined_at
		FROM group_members gm
		JOIN users u ON u.id = gm.user_id
		WHERE gm.group_id = (SELECT group_id FROM group_members WHERE user_id = ?)
		ORDER BY gm.member_number
	`, userID)
	if err != nil {
		return nil, fmt.Errorf("failed to load group: %w", err)
	}
	return scanGroupMembers(rows, func(rows *sql.Rows, m *models.GroupMember) error {
		var joinedAt int64
		if err := rows.Scan(&m.GroupID, &m.UserID, &m.Login, &m.MemberNumber, &joinedAt); err != nil {
			return err
		}
		m.JoinedAt = fromMillis(joinedAt)
		return nil
	})
}

// GetGroupByUser 读取用户所在组
func (db *SQLiteDatabase) GetGroupByUser(ctx context.Context, userID int64) (*models.Group, error) {
	return sqliteGroupOf(ctx, db.db, userID)
}

// RunInTx 在事务中执行组/邀请操作
func (db *SQLiteDatabase) RunInTx(ctx context.Context, fn func(tx GroupTx) error) error {
	return runInTx(ctx, db.db, func(tx *sql.Tx) error {
		return fn(&sqliteGroupTx{tx: tx})
	})
}

// sqliteGroupTx GroupTx 的 SQLite 实现
type sqliteGroupTx struct {
	tx *sql.Tx
}

// AdvisoryLock SQLite 只有一个连接，事务本身已经串行
func (t *sqliteGroupTx) AdvisoryLock(ctx context.Context, key string) error {
	return nil
}

func (t *sqliteGroupTx) GroupOf(ctx context.Context, userID int64) (*models.Group, error) {
	return sqliteGroupOf(ctx, t.tx, userID)
}

func (t *sqliteGroupTx) CreateGroup(ctx context.Context) (int64, error) {
	result, err := t.tx.ExecContext(ctx, `INSERT INTO shopping_groups (created_at) VALUES (?)`, toMillis(time.Now()))
	if err != nil {
		return 0, fmt.Errorf("failed to create group: %w", err)
	}
	return result.LastInsertId()
}

func (t *sqliteGroupTx) DeleteGroup(ctx context.Context, groupID int64) error {
	result, err := t.tx.ExecContext(ctx, `DELETE FROM shopping_groups WHERE id = ?`, groupID)
	if err != nil {
		return fmt.Errorf("failed to delete group: %w", err)
	}
	return expectOneRow(result, "delete group")
}

func (t *sqliteGroupTx) AddMember(ctx context.Context, groupID, userID int64, memberNumber int) error {
	_, err := t.tx.ExecContext(ctx, `
		INSERT INTO group_members (group_id, user_id, member_number, joined_at) VALUES (?, ?, ?, ?)
	`, groupID, userID, memberNumber, toMillis(time.Now()))
	if err != nil {
		return mapSQLiteError(err, "add group member")
	}
	return nil
}

func (t *sqliteGroupTx) RemoveMember(ctx context.Context, groupID, userID int64) error {
	result, err := t.tx.ExecContext(ctx, `DELETE FROM group_members WHERE group_id = ? AND user_id = ?`, groupID, userID)
	if err != nil {
		return fmt.Errorf("failed to remove group member: %w", err)
	}
	return expectOneRow(result, "remove group member")
}

func (t *sqliteGroupTx) SetMemberNumber(ctx context.Context, groupID, userID int64, memberNumber int) error {
	result, err := t.tx.ExecContext(ctx,
		`UPDATE group_members SET member_number = ? WHERE group_id = ? AND user_id = ?`,
		memberNumber, groupID, userID)
	if err != nil {
		return mapSQLiteError(err, "renumber group member")
	}
	return expectOneRow(result, "renumber group member")
}

func (t *sqliteGroupTx) GetInvite(ctx context.Context, fromUserID, toUserID int64) (*models.Invite, error) {
	var inv models.Invite
	var createdAt int64
	err := t.tx.QueryRowContext(ctx, `
		SELECT id, from_user_id, to_user_id, created_at
		FROM invites WHERE from_user_id = ? AND to_user_id = ?
	`, fromUserID, toUserID).Scan(&inv.ID, &inv.FromUserID, &inv.ToUserID, &createdAt)
	if err != nil {
		if err == sql.ErrNoRows {
			return nil, nil
		}
		return nil, fmt.Errorf("failed to get invite: %w", err)
	}
	inv.CreatedAt = fromMillis(createdAt)
	return &inv, nil
}

func (t *sqliteGroupTx) UpsertInvite(ctx context.Context, fromUserID, toUserID int64) (*models.Invite, error) {
	var inv models.Invite
	var createdAt int64
	err := t.tx.QueryRowContext(ctx, `
		INSERT INTO invites (from_user_id, to_user_id, created_at) VALUES (?, ?, ?)
		ON CONFLICT (from_user_id, to_user_id) DO UPDATE SET from_user_id = excluded.from_user_id
		RETURNING id, from_user_id, to_user_id, created_at
	`, fromUserID, toUserID, toMillis(time.Now())).Scan(&inv.ID, &inv.FromUserID, &inv.ToUserID, &createdAt)
	if err != nil {
		return nil, mapSQLiteError(err, "create invite")
	}
	inv.CreatedAt = fromMillis(createdAt)
	return &inv, nil
}

func (t *sqliteGroupTx) DeleteInvitesBetween(ctx context.Context, a, b int64) error {
	_, err := t.tx.ExecContext(ctx, `
		DELETE FROM invites
		WHERE (from_user_id = ? AND to_user_id = ?) OR (from_user_id = ? AND to_user_id = ?)
	`, a, b, b, a)
	if err != nil {
		return fmt.Errorf("failed to delete invites: %w", err)
	}
	return nil
}

// ===== 商品 =====

// ListProductsByOwners 列出属于 ownerIDs 中任一用户的商品
func (db *SQLiteDatabase) ListProductsByOwners(ctx context.Context, ownerIDs []int64) ([]models.Product, error) {
	products := []models.Product{}
	if len(ownerIDs) == 0 {
		return products, nil
	}

	placeholders, args := inClause(ownerIDs)
	rows, err := db.db.QueryContext(ctx, `
		SELECT id, name, volume, brand, default_tags, user_id
		FROM products
		WHERE user_id IN (`+placeholders+`)
		ORDER BY id
	`, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to list products: %w", err)
	}
	defer rows.Close()

	for rows.Next() {
		p, err := scanSQLiteProduct(rows)
		if err != nil {
			return nil, err
		}
		products = append(products, *p)
	}
	return products, rows.Err()
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanSQLiteProduct(row rowScanner) (*models.Product, error) {
	var p models.Product
	var tags string
	if err := row.Scan(&p.ID, &p.Name, &p.Volume, &p.Brand, &tags, &p.UserID); err != nil {
		return nil, err
	}
	decoded, err := decodeTags(tags)
	if err != nil {
		return nil, err
	}
	p.DefaultTags = decoded
	return &p, nil
}

// GetProduct 根据ID获取商品
func (db *SQLiteDatabase) GetProduct(ctx context.Context, id int64) (*models.Product, error) {
	row := db.db.QueryRowContext(ctx, `SELECT id, name, volume, brand, default_tags, user_id FROM products WHERE id = ?`, id)
	p, err := scanSQLiteProduct(row)
	if err != nil {
		if err == sql.ErrNoRows {
			return nil, fmt.Errorf("product: %w", ErrNotFound)
		}
		return nil, fmt.Errorf("failed to get product: %w", err)
	}
	return p, nil
}

// CreateProduct 创建商品
func (db *SQLiteDatabase) CreateProduct(ctx context.Context, p *models.Product) error {
	p.DefaultTags = normalizeTags(p.DefaultTags)
	tags, err := encodeTags(p.DefaultTags)
	if err != nil {
		return err
	}
	result, err := db.db.ExecContext(ctx, `
		INSERT INTO products (name, volume, brand, default_tags, user_id, created_at) VALUES (?, ?, ?, ?, ?, ?)
	`, p.Name, p.Volume, p.Brand, tags, p.UserID, toMillis(time.Now()))
	if err != nil {
		return mapSQLiteError(err, "create product")
	}
	p.ID, err = result.LastInsertId()
	return err
}

// UpdateProduct 更新商品（id 和 user_id 同时匹配）
func (db *SQLiteDatabase) UpdateProduct(ctx context.Context, p *models.Product) error {
	p.DefaultTags = normalizeTags(p.DefaultTags)
	tags, err := encodeTags(p.DefaultTags)
	if err != nil {
		return err
	}
	result, err := db.db.ExecContext(ctx, `
		UPDATE products SET name = ?, volume = ?, brand = ?, default_tags = ?
		WHERE id = ? AND user_id = ?
	`, p.Name, p.Volume, p.Brand, tags, p.ID, p.UserID)
	if err != nil {
		return fmt.Errorf("failed to update product: %w", err)
	}
	return expectOneRow(result, "update product")
}

// DeleteProduct 删除商品（id 和 user_id 同时匹配）
func (db *SQLiteDatabase) DeleteProduct(ctx context.Context, id, userID int64) error {
	result, err := db.db.ExecContext(ctx, `DELETE FROM products WHERE id = ? AND user_id = ?`, id, userID)
	if err != nil {
		return mapSQLiteError(err, "delete product")
	}
	return expectOneRow(result, "delete product")
}

// ===== 购买记录 =====

// ListPurchasesByOwners 列出属于 ownerIDs 中任一用户的购买记录
func (db *SQLiteDatabase) ListPurchasesByOwners(ctx context.Context, ownerIDs []int64) ([]models.Purchase, error) {
	purchases := []models.Purchase{}
	if len(ownerIDs) == 0 {
		return purchases, nil
	}

	placeholders, args := inClause(ownerIDs)
	rows, err := db.db.QueryContext(ctx, `
		SELECT id, product_id, quantity, price, date, store, tags, receipt_id, user_id
		FROM purchases
		WHERE user_id IN (`+placeholders+`)
		ORDER BY date DESC, id DESC
	`, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to list purchases: %w", err)
	}
	defer rows.Close()

	for rows.Next() {
		var p models.Purchase
		var date int64
		var tags string
		var receiptID sql.NullInt64
		if err := rows.Scan(&p.ID, &p.ProductID, &p.Quantity, &p.Price, &date, &p.Store, &tags, &receiptID, &p.UserID); err != nil {
			return nil, fmt.Errorf("failed to scan purchase: %w", err)
		}
		if p.Tags, err = decodeTags(tags); err != nil {
			return nil, err
		}
		p.Date = fromMillis(date)
		p.ReceiptID = receiptID.Int64
		purchases = append(purchases, p)
	}
	return purchases, rows.Err()
}

// CreatePurchase 创建购买记录
func (db *SQLiteDatabase) CreatePurchase(ctx context.Context, p *models.Purchase) error {
	p.Tags = normalizeTags(p.Tags)
	tags, err := encodeTags(p.Tags)
	if err != nil {
		return err
	}
	result, err := db.db.ExecContext(ctx, `
		INSERT INTO purchases (product_id, quantity, price, date, store, tags, receipt_id, user_id, created_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)
	`, p.ProductID, p.Quantity, p.Price, toMillis(p.Date), p.Store, tags, nullableID(p.ReceiptID), p.UserID, toMillis(time.Now()))
	if err != nil {
		return mapSQLiteError(err, "create purchase")
	}
	p.ID, err = result.LastInsertId()
	return err
}

// DeletePurchase 删除购买记录（id 和 user_id 同时匹配）
func (db *SQLiteDatabase) DeletePurchase(ctx context.Context, id, userID int64) error {
	result, err := db.db.ExecContext(ctx, `DELETE FROM purchases WHERE id = ? AND user_id = ?`, id, userID)
	if err != nil {
		return fmt.Errorf("failed to delete purchase: %w", err)
	}
	return expectOneRow(result, "delete purchase")
}

// HealthCheck 健康检查
func (db *SQLiteDatabase) HealthCheck() error {
	return db.db.Ping()
}

// Close 关闭连接
func (db *SQLiteDatabase) Close() error {
	if db == nil || db.db == nil {
		return nil
	}
	return db.db.Close()
}

var (
	_ DatabaseInterface = (*SQLiteDatabase)(nil)
	_ DatabaseInterface = (*PostgresDatabase)(nil)
)
