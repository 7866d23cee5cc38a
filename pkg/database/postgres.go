package database

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"
	"time"

	"buy-log-backend/pkg/database/schema"
	"buy-log-backend/pkg/models"

	"github.com/lib/pq"
)

// PostgreSQL 错误代码
const (
	pgUniqueViolation     = "23505"
	pgForeignKeyViolation = "23503"
	pgRestrictViolation   = "23001"
)

// PostgresDatabase PostgreSQL数据库实现
type PostgresDatabase struct {
	db *sql.DB
}

// NewPostgresDatabase 创建PostgreSQL数据库实例
func NewPostgresDatabase(dsn string) (*PostgresDatabase, error) {
	// Sanitize DSN to avoid stray CR/LF from env values
	dsn = strings.TrimSpace(dsn)
	strategies := []string{
		dsn,
		addConnectionParams(dsn, "connect_timeout=10"),
	}

	var lastErr error
	for i, strategy := range strategies {
		fmt.Printf("🔄 Trying connection strategy %d...\n", i+1)

		db, err := sql.Open("postgres", strategy)
		if err != nil {
			fmt.Printf("❌ Strategy %d failed to open: %v\n", i+1, err)
			lastErr = err
			continue
		}

		if err = db.Ping(); err != nil {
			fmt.Printf("❌ Strategy %d failed to ping: %v\n", i+1, err)
			db.Close()
			lastErr = err
			continue
		}

		fmt.Printf("✅ PostgreSQL connection established successfully with strategy %d\n", i+1)
		pg := NewPostgresDatabaseFromDB(db)
		pg.tunePoolParams()
		return pg, nil
	}

	return nil, fmt.Errorf("failed to connect to PostgreSQL with all strategies: %w", lastErr)
}

// NewPostgresDatabaseFromDB 使用已打开的连接（测试里传入 sqlmock）
func NewPostgresDatabaseFromDB(db *sql.DB) *PostgresDatabase {
	return &PostgresDatabase{db: db}
}

// ApplySchema 执行建表脚本（脚本本身可重复执行）
func (db *PostgresDatabase) ApplySchema(ctx context.Context) error {
	if _, err := db.db.ExecContext(ctx, schema.Postgres); err != nil {
		return fmt.Errorf("apply schema: %w", err)
	}
	return nil
}

// CountRows 返回表中的行数，仅供初始化脚本校验使用
func (db *PostgresDatabase) CountRows(ctx context.Context, table string) (int64, error) {
	var count int64
	err := db.db.QueryRowContext(ctx, "SELECT COUNT(*) FROM "+pq.QuoteIdentifier(table)).Scan(&count)
	return count, err
}

// addConnectionParams 添加连接参数到DSN
func addConnectionParams(dsn, params string) string {
	if params == "" {
		return dsn
	}

	separator := "?"
	if strings.Contains(dsn, "?") {
		separator = "&"
	}

	return dsn + separator + params
}

// tunePoolParams 调整应用侧连接池参数
func (db *PostgresDatabase) tunePoolParams() {
	db.db.SetMaxOpenConns(20)
	db.db.SetMaxIdleConns(10)
	db.db.SetConnMaxLifetime(5 * time.Minute)
	db.db.SetConnMaxIdleTime(2 * time.Minute)
}

// mapPostgresError 把约束冲突转换为包内错误
func mapPostgresError(err error, what string) error {
	var pqErr *pq.Error
	if errors.As(err, &pqErr) {
		switch pqErr.Code {
		case pgUniqueViolation:
			return fmt.Errorf("%s: %w", what, ErrAlreadyExists)
		case pgForeignKeyViolation, pgRestrictViolation:
			return fmt.Errorf("%s: %w", what, ErrReferenced)
		}
	}
	return fmt.Errorf("failed to %s: %w", what, err)
}

// ===== 用户 =====

// CreateUser 创建用户
func (db *PostgresDatabase) CreateUser(ctx context.Context, user *models.User) error {
	query := `
		INSERT INTO users (login, password_hash, created_at)
		VALUES ($1, $2, NOW())
		RETURNING id, created_at
	`
	err := db.db.QueryRowContext(ctx, query, user.Login, user.Password).Scan(&user.ID, &user.CreatedAt)
	if err != nil {
		return mapPostgresError(err, "create user")
	}
	return nil
}

// GetUserByLogin 根据登录名获取用户
func (db *PostgresDatabase) GetUserByLogin(ctx context.Context, login string) (*models.User, error) {
	query := `SELECT id, login, password_hash, created_at FROM users WHERE login = $1`
	return db.getUser(ctx, query, login)
}

// GetUserByID 根据ID获取用户
func (db *PostgresDatabase) GetUserByID(ctx context.Context, id int64) (*models.User, error) {
	query := `SELECT id, login, password_hash, created_at FROM users WHERE id = $1`
	return db.getUser(ctx, query, id)
}

func (db *PostgresDatabase) getUser(ctx context.Context, query string, arg any) (*models.User, error) {
	var u models.User
	err := db.db.QueryRowContext(ctx, query, arg).Scan(&u.ID, &u.Login, &u.Password, &u.CreatedAt)
	if err != nil {
		if err == sql.ErrNoRows {
			return nil, fmt.Errorf("user: %w", ErrNotFound)
		}
		return nil, fmt.Errorf("failed to get user: %w", err)
	}
	return &u, nil
}

// ===== 邀请 =====

// ListIncomingInvites 列出发给用户的待处理邀请
func (db *PostgresDatabase) ListIncomingInvites(ctx context.Context, userID int64) ([]models.Invite, error) {
	query := `
		SELECT i.id, i.from_user_id, i.to_user_id, u.login, i.created_at
		FROM invites i
		JOIN users u ON u.id = i.from_user_id
		WHERE i.to_user_id = $1
		ORDER BY i.created_at, i.id
	`
	rows, err := db.db.QueryContext(ctx, query, userID)
	if err != nil {
		return nil, fmt.Errorf("failed to list invites: %w", err)
	}
	defer rows.Close()

	invites := []models.Invite{}
	for rows.Next() {
		var inv models.Invite
		if err := rows.Scan(&inv.ID, &inv.FromUserID, &inv.ToUserID, &inv.FromLogin, &inv.CreatedAt); err != nil {
			return nil, fmt.Errorf("failed to scan invite: %w", err)
		}
		invites = append(invites, inv)
	}
	return invites, rows.Err()
}

// DeleteInvitesOlderThan 删除早于 cutoff 的邀请，返回删除条数
func (db *PostgresDatabase) DeleteInvitesOlderThan(ctx context.Context, cutoff time.Time) (int64, error) {
	result, err := db.db.ExecContext(ctx, `DELETE FROM invites WHERE created_at < $1`, cutoff)
	if err != nil {
		return 0, fmt.Errorf("failed to delete expired invites: %w", err)
	}
	return result.RowsAffected()
}

// ===== 组 =====

const pgGroupOfQuery = `
	SELECT gm.group_id, gm.user_id, u.login, gm.member_number, gm.joined_at
	FROM group_members gm
	JOIN users u ON u.id = gm.user_id
	WHERE gm.group_id = (SELECT group_id FROM group_members WHERE user_id = $1)
	ORDER BY gm.member_number
`

func pgGroupOf(ctx context.Context, q queryer, userID int64) (*models.Group, error) {
	rows, err := q.QueryContext(ctx, pgGroupOfQuery, userID)
	if err != nil {
		return nil, fmt.Errorf("failed to load group: %w", err)
	}
	return scanGroupMembers(rows, func(rows *sql.Rows, m *models.GroupMember) error {
		return rows.Scan(&m.GroupID, &m.UserID, &m.Login, &m.MemberNumber, &m.JoinedAt)
	})
}

// GetGroupByUser 读取用户所在组
func (db *PostgresDatabase) GetGroupByUser(ctx context.Context, userID int64) (*models.Group, error) {
	return pgGroupOf(ctx, db.db, userID)
}

// RunInTx 在事务中执行组/邀请操作
func (db *PostgresDatabase) RunInTx(ctx context.Context, fn func(tx GroupTx) error) error {
	return runInTx(ctx, db.db, func(tx *sql.Tx) error {
		return fn(&postgresGroupTx{tx: tx})
	})
}

// postgresGroupTx GroupTx 的 PostgreSQL 实现
type postgresGroupTx struct {
	tx *sql.Tx
}

// AdvisoryLock 使用 pg_advisory_xact_lock，多实例部署时按 key 串行
func (t *postgresGroupTx) AdvisoryLock(ctx context.Context, key string) error {
	if _, err := t.tx.ExecContext(ctx, `SELECT pg_advisory_xact_lock(hashtextextended($1, 0))`, key); err != nil {
		return fmt.Errorf("failed to acquire advisory lock %s: %w", key, err)
	}
	return nil
}

func (t *postgresGroupTx) GroupOf(ctx context.Context, userID int64) (*models.Group, error) {
	return pgGroupOf(ctx, t.tx, userID)
}

func (t *postgresGroupTx) CreateGroup(ctx context.Context) (int64, error) {
	var id int64
	if err := t.tx.QueryRowContext(ctx, `INSERT INTO shopping_groups (created_at) VALUES (NOW()) RETURNING id`).Scan(&id); err != nil {
		return 0, fmt.Errorf("failed to create group: %w", err)
	}
	return id, nil
}

func (t *postgresGroupTx) DeleteGroup(ctx context.Context, groupID int64) error {
	result, err := t.tx.ExecContext(ctx, `DELETE FROM shopping_groups WHERE id = $1`, groupID)
	if err != nil {
		return fmt.Errorf("failed to delete group: %w", err)
	}
	return expectOneRow(result, "delete group")
}

func (t *postgresGroupTx) AddMember(ctx context.Context, groupID, userID int64, memberNumber int) error {
	_, err := t.tx.ExecContext(ctx, `
		INSERT INTO group_members (group_id, user_id, member_number, joined_at)
		VALUES ($1, $2, $3, NOW())
	`, groupID, userID, memberNumber)
	if err != nil {
		return mapPostgresError(err, "add group member")
	}
	return nil
}

func (t *postgresGroupTx) RemoveMember(ctx context.Context, groupID, userID int64) error {
	result, err := t.tx.ExecContext(ctx, `DELETE FROM group_members WHERE group_id = $1 AND user_id = $2`, groupID, userID)
	if err != nil {
		return fmt.Errorf("failed to remove group member: %w", err)
	}
	return expectOneRow(result, "remove group member")
}

func (t *postgresGroupTx) SetMemberNumber(ctx context.Context, groupID, userID int64, memberNumber int) error {
	result, err := t.tx.ExecContext(ctx, `
		UPDATE group_members SET member_number = $3 WHERE group_id = $1 AND user_id = $2
	`, groupID, userID, memberNumber)
	if err != nil {
		return mapPostgresError(err, "renumber group member")
	}
	return expectOneRow(result, "renumber group member")
}

func (t *postgresGroupTx) GetInvite(ctx context.Context, fromUserID, toUserID int64) (*models.Invite, error) {
	var inv models.Invite
	err := t.tx.QueryRowContext(ctx, `
		SELECT id, from_user_id, to_user_id, created_at
		FROM invites WHERE from_user_id = $1 AND to_user_id = $2
	`, fromUserID, toUserID).Scan(&inv.ID, &inv.FromUserID, &inv.ToUserID, &inv.CreatedAt)
	if err != nil {
		if err == sql.ErrNoRows {
			return nil, nil
		}
		return nil, fmt.Errorf("failed to get invite: %w", err)
	}
	return &inv, nil
}

func (t *postgresGroupTx) UpsertInvite(ctx context.Context, fromUserID, toUserID int64) (*models.Invite, error) {
	var inv models.Invite
	err := t.tx.QueryRowContext(ctx, `
		INSERT INTO invites (from_user_id, to_user_id, created_at)
		VALUES ($1, $2, NOW())
		ON CONFLICT (from_user_id, to_user_id) DO UPDATE SET from_user_id = EXCLUDED.from_user_id
		RETURNING id, from_user_id, to_user_id, created_at
	`, fromUserID, toUserID).Scan(&inv.ID, &inv.FromUserID, &inv.ToUserID, &inv.CreatedAt)
	if err != nil {
		return nil, mapPostgresError(err, "create invite")
	}
	return &inv, nil
}

func (t *postgresGroupTx) DeleteInvitesBetween(ctx context.Context, a, b int64) error {
	_, err := t.tx.ExecContext(ctx, `
		DELETE FROM invites
		WHERE (from_user_id = $1 AND to_user_id = $2) OR (from_user_id = $2 AND to_user_id = $1)
	`, a, b)
	if err != nil {
		return fmt.Errorf("failed to delete invites: %w", err)
	}
	return nil
}

// ===== 商品 =====

// ListProductsByOwners 列出属于 ownerIDs 中任一用户的商品
func (db *PostgresDatabase) ListProductsByOwners(ctx context.Context, ownerIDs []int64) ([]models.Product, error) {
	query := `
		SELECT id, name, volume, brand, default_tags, user_id
		FROM products
		WHERE user_id = ANY($1)
		ORDER BY id
	`
	rows, err := db.db.QueryContext(ctx, query, pq.Array(ownerIDs))
	if err != nil {
		return nil, fmt.Errorf("failed to list products: %w", err)
	}
	defer rows.Close()

	products := []models.Product{}
	for rows.Next() {
		var p models.Product
		if err := rows.Scan(&p.ID, &p.Name, &p.Volume, &p.Brand, pq.Array(&p.DefaultTags), &p.UserID); err != nil {
			return nil, fmt.Errorf("failed to scan product: %w", err)
		}
		p.DefaultTags = normalizeTags(p.DefaultTags)
		products = append(products, p)
	}
	return products, rows.Err()
}

// GetProduct 根据ID获取商品
func (db *PostgresDatabase) GetProduct(ctx context.Context, id int64) (*models.Product, error) {
	var p models.Product
	err := db.db.QueryRowContext(ctx, `
		SELECT id, name, volume, brand, default_tags, user_id FROM products WHERE id = $1
	`, id).Scan(&p.ID, &p.Name, &p.Volume, &p.Brand, pq.Array(&p.DefaultTags), &p.UserID)
	if err != nil {
		if err == sql.ErrNoRows {
			return nil, fmt.Errorf("product: %w", ErrNotFound)
		}
		return nil, fmt.Errorf("failed to get product: %w", err)
	}
	p.DefaultTags = normalizeTags(p.DefaultTags)
	return &p, nil
}

// CreateProduct 创建商品
func (db *PostgresDatabase) CreateProduct(ctx context.Context, p *models.Product) error {
	p.DefaultTags = normalizeTags(p.DefaultTags)
	err := db.db.QueryRowContext(ctx, `
		INSERT INTO products (name, volume, brand, default_tags, user_id, created_at)
		VALUES ($1, $2, $3, $4, $5, NOW())
		RETURNING id
	`, p.Name, p.Volume, p.Brand, pq.Array(p.DefaultTags), p.UserID).Scan(&p.ID)
	if err != nil {
		return mapPostgresError(err, "create product")
	}
	return nil
}

// UpdateProduct 更新商品（id 和 user_id 同时匹配）
func (db *PostgresDatabase) UpdateProduct(ctx context.Context, p *models.Product) error {
	p.DefaultTags = normalizeTags(p.DefaultTags)
	result, err := db.db.ExecContext(ctx, `
		UPDATE products SET name = $1, volume = $2, brand = $3, default_tags = $4
		WHERE id = $5 AND user_id = $6
	`, p.Name, p.Volume, p.Brand, pq.Array(p.DefaultTags), p.ID, p.UserID)
	if err != nil {
		return fmt.Errorf("failed to update product: %w", err)
	}
	return expectOneRow(result, "update product")
}

// DeleteProduct 删除商品（id 和 user_id 同时匹配）
func (db *PostgresDatabase) DeleteProduct(ctx context.Context, id, userID int64) error {
	result, err := db.db.ExecContext(ctx, `DELETE FROM products WHERE id = $1 AND user_id = $2`, id, userID)
	if err != nil {
		return mapPostgresError(err, "delete product")
	}
	return expectOneRow(result, "delete product")
}

// ===== 购买记录 =====

// ListPurchasesByOwners 列出属于 ownerIDs 中任一用户的购买记录
func (db *PostgresDatabase) ListPurchasesByOwners(ctx context.Context, ownerIDs []int64) ([]models.Purchase, error) {
	query := `
		SELECT id, product_id, quantity, price, date, store, tags, receipt_id, user_id
		FROM purchases
		WHERE user_id = ANY($1)
		ORDER BY date DESC, id DESC
	`
	rows, err := db.db.QueryContext(ctx, query, pq.Array(ownerIDs))
	if err != nil {
		return nil, fmt.Errorf("failed to list purchases: %w", err)
	}
	defer rows.Close()

	purchases := []models.Purchase{}
	for rows.Next() {
		var p models.Purchase
		var receiptID sql.NullInt64
		if err := rows.Scan(&p.ID, &p.ProductID, &p.Quantity, &p.Price, &p.Date, &p.Store,
			pq.Array(&p.Tags), &receiptID, &p.UserID); err != nil {
			return nil, fmt.Errorf("failed to scan purchase: %w", err)
		}
		p.Tags = normalizeTags(p.Tags)
		p.ReceiptID = receiptID.Int64
		purchases = append(purchases, p)
	}
	return purchases, rows.Err()
}

// CreatePurchase 创建购买记录
func (db *PostgresDatabase) CreatePurchase(ctx context.Context, p *models.Purchase) error {
	p.Tags = normalizeTags(p.Tags)
	err := db.db.QueryRowContext(ctx, `
		INSERT INTO purchases (product_id, quantity, price, date, store, tags, receipt_id, user_id, created_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, NOW())
		RETURNING id
	`, p.ProductID, p.Quantity, p.Price, p.Date, p.Store, pq.Array(p.Tags), nullableID(p.ReceiptID), p.UserID).Scan(&p.ID)
	if err != nil {
		return mapPostgresError(err, "create purchase")
	}
	return nil
}

// DeletePurchase 删除购买记录（id 和 user_id 同时匹配）
func (db *PostgresDatabase) DeletePurchase(ctx context.Context, id, userID int64) error {
	result, err := db.db.ExecContext(ctx, `DELETE FROM purchases WHERE id = $1 AND user_id = $2`, id, userID)
	if err != nil {
		return fmt.Errorf("failed to delete purchase: %w", err)
	}
	return expectOneRow(result, "delete purchase")
}

// HealthCheck 健康检查
func (db *PostgresDatabase) HealthCheck() error {
	return db.db.Ping()
}

// Close 关闭连接
func (db *PostgresDatabase) Close() error {
	return db.db.Close()
}

// nullableID 0 写入为 NULL
func nullableID(id int64) any {
	if id == 0 {
		return nil
	}
	return id
}
