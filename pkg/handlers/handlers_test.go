package handlers

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"buy-log-backend/pkg/config"
	"buy-log-backend/pkg/database"
	"buy-log-backend/pkg/groups"
	"buy-log-backend/pkg/middleware"
	"buy-log-backend/pkg/models"
	"buy-log-backend/pkg/utils"
)

type testEnv struct {
	db        database.DatabaseInterface
	groups    *groups.Service
	auth      *AuthHandler
	products  *ProductsHandler
	purchases *PurchasesHandler
	group     *GroupHandler
	invite    *InviteHandler
}

func newTestEnv(t *testing.T) *testEnv {
	t.Helper()
	db, err := database.NewSQLiteDatabase(filepath.Join(t.TempDir(), "handlers.db"))
	require.NoError(t, err)
	t.Cleanup(func() { db.Close() })

	cfg := &config.Config{Environment: "development", UseLocalDB: true}
	svc := groups.NewService(db)
	return &testEnv{
		db:        db,
		groups:    svc,
		auth:      NewAuthHandler(cfg, db, utils.NewJWTService("test-secret", time.Hour)),
		products:  NewProductsHandler(db, svc),
		purchases: NewPurchasesHandler(db, svc),
		group:     NewGroupHandler(svc),
		invite:    NewInviteHandler(svc),
	}
}

func (e *testEnv) user(t *testing.T, login string) *models.User {
	t.Helper()
	u := &models.User{Login: login, Password: "hash"}
	require.NoError(t, e.db.CreateUser(context.Background(), u))
	return u
}

func (e *testEnv) pair(t *testing.T, a, b *models.User) {
	t.Helper()
	ctx := context.Background()
	_, err := e.groups.SendInvite(ctx, a.ID, b.Login)
	require.NoError(t, err)
	_, err = e.groups.SendInvite(ctx, b.ID, a.Login)
	require.NoError(t, err)
}

// call 以 user 身份调用 h；user 为 nil 时模拟未认证请求
func call(t *testing.T, h http.HandlerFunc, method string, user *models.User, body any) *httptest.ResponseRecorder {
	t.Helper()
	var buf bytes.Buffer
	switch v := body.(type) {
	case nil:
	case string:
		buf.WriteString(v)
	default:
		require.NoError(t, json.NewEncoder(&buf).Encode(v))
	}
	req := httptest.NewRequest(method, "/", &buf)
	if user != nil {
		req = req.WithContext(middleware.WithUser(req.Context(), user))
	}
	rec := httptest.NewRecorder()
	h(rec, req)
	return rec
}

func decode[T any](t *testing.T, rec *httptest.ResponseRecorder) T {
	t.Helper()
	var v T
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &v))
	return v
}

func errorCode(t *testing.T, rec *httptest.ResponseRecorder) string {
	t.Helper()
	resp := decode[utils.APIResponse](t, rec)
	require.NotNil(t, resp.Error)
	assert.False(t, resp.Success)
	return resp.Error.Code
}

func TestRegisterAndLogin(t *testing.T) {
	env := newTestEnv(t)
	creds := models.UserRegisterRequest{Login: "alice", Password: "secret"}

	rec := call(t, env.auth.Register, http.MethodPost, nil, creds)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.NotEmpty(t, decode[models.TokenResponse](t, rec).Token)

	rec = call(t, env.auth.Register, http.MethodPost, nil, creds)
	assert.Equal(t, http.StatusConflict, rec.Code)
	assert.Equal(t, "CONFLICT", errorCode(t, rec))

	rec = call(t, env.auth.Login, http.MethodPost, nil, models.UserLoginRequest{Login: "alice", Password: "secret"})
	require.Equal(t, http.StatusOK, rec.Code)
	assert.NotEmpty(t, decode[models.TokenResponse](t, rec).Token)

	rec = call(t, env.auth.Login, http.MethodPost, nil, models.UserLoginRequest{Login: "alice", Password: "wrong"})
	assert.Equal(t, http.StatusUnauthorized, rec.Code)

	rec = call(t, env.auth.Login, http.MethodPost, nil, models.UserLoginRequest{Login: "nobody", Password: "secret"})
	assert.Equal(t, http.StatusUnauthorized, rec.Code)
}

func TestRegisterValidation(t *testing.T) {
	env := newTestEnv(t)

	rec := call(t, env.auth.Register, http.MethodPost, nil, "{broken")
	assert.Equal(t, http.StatusBadRequest, rec.Code)

	rec = call(t, env.auth.Register, http.MethodPost, nil, models.UserRegisterRequest{Login: "", Password: "x"})
	assert.Equal(t, http.StatusBadRequest, rec.Code)

	rec = call(t, env.auth.Register, http.MethodPost, nil, models.UserRegisterRequest{Login: "bob", Password: ""})
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestHealthCheck(t *testing.T) {
	env := newTestEnv(t)
	rec := call(t, env.auth.HealthCheck, http.MethodGet, nil, nil)
	require.Equal(t, http.StatusOK, rec.Code)

	body := decode[map[string]any](t, rec)
	assert.Equal(t, "healthy", body["db_status"])
	assert.Equal(t, "sqlite", body["database"])
}

func TestProtectedHandlersRequireUser(t *testing.T) {
	env := newTestEnv(t)
	for _, h := range []http.HandlerFunc{
		env.products.List, env.products.Create, env.products.Update, env.products.Delete,
		env.purchases.List, env.purchases.Create, env.purchases.Delete,
		env.group.Get, env.group.Leave, env.invite.List, env.invite.Send,
	} {
		rec := call(t, h, http.MethodGet, nil, nil)
		assert.Equal(t, http.StatusUnauthorized, rec.Code)
	}
}

func validProduct() models.Product {
	return models.Product{Name: "Milk", Volume: "1L", Brand: "Farm", DefaultTags: []string{"dairy"}}
}

func TestProductsCRUD(t *testing.T) {
	env := newTestEnv(t)
	alice := env.user(t, "alice")

	rec := call(t, env.products.Create, http.MethodPost, alice, validProduct())
	require.Equal(t, http.StatusOK, rec.Code)
	created := decode[models.Product](t, rec)
	assert.NotZero(t, created.ID)
	assert.Equal(t, alice.ID, created.UserID)

	update := created
	update.Name = "Oat Milk"
	rec = call(t, env.products.Update, http.MethodPut, alice, update)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "Oat Milk", decode[models.Product](t, rec).Name)

	rec = call(t, env.products.List, http.MethodGet, alice, nil)
	require.Equal(t, http.StatusOK, rec.Code)
	list := decode[models.ProductListResponse](t, rec)
	require.Len(t, list.Products, 1)
	assert.Equal(t, "Oat Milk", list.Products[0].Name)

	rec = call(t, env.products.Delete, http.MethodDelete, alice, models.DeleteRequest{ID: created.ID})
	assert.Equal(t, http.StatusNoContent, rec.Code)

	rec = call(t, env.products.List, http.MethodGet, alice, nil)
	assert.Empty(t, decode[models.ProductListResponse](t, rec).Products)
}

func TestProductValidationAndMissingID(t *testing.T) {
	env := newTestEnv(t)
	alice := env.user(t, "alice")

	bad := validProduct()
	bad.Name = "Milk!!!"
	rec := call(t, env.products.Create, http.MethodPost, alice, bad)
	assert.Equal(t, http.StatusBadRequest, rec.Code)

	rec = call(t, env.products.Update, http.MethodPut, alice, validProduct())
	assert.Equal(t, http.StatusBadRequest, rec.Code)

	rec = call(t, env.products.Delete, http.MethodDelete, alice, "{}")
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestProductOfOtherUserIsNotFound(t *testing.T) {
	env := newTestEnv(t)
	alice := env.user(t, "alice")
	bob := env.user(t, "bob")

	rec := call(t, env.products.Create, http.MethodPost, alice, validProduct())
	require.Equal(t, http.StatusOK, rec.Code)
	created := decode[models.Product](t, rec)

	// 同组成员也只能看，不能改
	env.pair(t, alice, bob)

	rec = call(t, env.products.List, http.MethodGet, bob, nil)
	assert.Len(t, decode[models.ProductListResponse](t, rec).Products, 1)

	rec = call(t, env.products.Update, http.MethodPut, bob, created)
	assert.Equal(t, http.StatusNotFound, rec.Code)
	assert.Equal(t, "NOT_FOUND", errorCode(t, rec))

	rec = call(t, env.products.Delete, http.MethodDelete, bob, models.DeleteRequest{ID: created.ID})
	assert.Equal(t, http.StatusNotFound, rec.Code)
}

func validPurchase(productID int64) models.Purchase {
	return models.Purchase{
		ProductID: productID,
		Quantity:  2,
		Price:     1999,
		Date:      time.Date(2024, 3, 1, 0, 0, 0, 0, time.UTC),
		Store:     "Corner Shop",
		Tags:      []string{"weekly"},
	}
}

func TestPurchasesFlow(t *testing.T) {
	env := newTestEnv(t)
	alice := env.user(t, "alice")
	bob := env.user(t, "bob")
	carol := env.user(t, "carol")

	rec := call(t, env.products.Create, http.MethodPost, alice, validProduct())
	product := decode[models.Product](t, rec)

	// 非组员看不到这个商品
	rec = call(t, env.purchases.Create, http.MethodPost, carol, validPurchase(product.ID))
	assert.Equal(t, http.StatusNotFound, rec.Code)

	env.pair(t, alice, bob)
	rec = call(t, env.purchases.Create, http.MethodPost, bob, validPurchase(product.ID))
	require.Equal(t, http.StatusOK, rec.Code)
	purchase := decode[models.Purchase](t, rec)
	assert.NotZero(t, purchase.ID)
	assert.Equal(t, bob.ID, purchase.UserID)

	rec = call(t, env.purchases.List, http.MethodGet, alice, nil)
	list := decode[models.PurchaseListResponse](t, rec)
	require.Len(t, list.Purchases, 1)
	assert.Equal(t, bob.ID, list.Purchases[0].UserID)

	rec = call(t, env.purchases.List, http.MethodGet, carol, nil)
	assert.Empty(t, decode[models.PurchaseListResponse](t, rec).Purchases)

	// 被购买记录引用的商品不能删除
	rec = call(t, env.products.Delete, http.MethodDelete, alice, models.DeleteRequest{ID: product.ID})
	assert.Equal(t, http.StatusConflict, rec.Code)

	rec = call(t, env.purchases.Delete, http.MethodDelete, alice, models.DeleteRequest{ID: purchase.ID})
	assert.Equal(t, http.StatusNotFound, rec.Code)

	rec = call(t, env.purchases.Delete, http.MethodDelete, bob, models.DeleteRequest{ID: purchase.ID})
	assert.Equal(t, http.StatusNoContent, rec.Code)

	rec = call(t, env.purchases.Delete, http.MethodDelete, bob, models.DeleteRequest{ID: purchase.ID})
	assert.Equal(t, http.StatusNotFound, rec.Code)
}

func TestPurchaseValidation(t *testing.T) {
	env := newTestEnv(t)
	alice := env.user(t, "alice")

	rec := call(t, env.purchases.Create, http.MethodPost, alice, "not json")
	assert.Equal(t, http.StatusBadRequest, rec.Code)

	bad := validPurchase(1)
	bad.Quantity = 0
	rec = call(t, env.purchases.Create, http.MethodPost, alice, bad)
	assert.Equal(t, http.StatusBadRequest, rec.Code)

	rec = call(t, env.purchases.Create, http.MethodPost, alice, validPurchase(999))
	assert.Equal(t, http.StatusNotFound, rec.Code)

	rec = call(t, env.purchases.Delete, http.MethodDelete, alice, models.DeleteRequest{})
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestInviteAndGroupHandlers(t *testing.T) {
	env := newTestEnv(t)
	alice := env.user(t, "alice")
	bob := env.user(t, "bob")

	rec := call(t, env.group.Get, http.MethodGet, alice, nil)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.JSONEq(t, `{"members":[]}`, rec.Body.String())

	rec = call(t, env.invite.Send, http.MethodPost, alice, models.InviteRequest{Login: "bob"})
	require.Equal(t, http.StatusOK, rec.Code)
	sent := decode[models.InviteResult](t, rec)
	assert.NotZero(t, sent.InviteID)
	assert.False(t, sent.MutualInvite)

	rec = call(t, env.invite.List, http.MethodGet, bob, nil)
	incoming := decode[models.InviteListResponse](t, rec)
	require.Len(t, incoming.Invites, 1)
	assert.Equal(t, "alice", incoming.Invites[0].FromLogin)

	rec = call(t, env.invite.Send, http.MethodPost, bob, models.InviteRequest{Login: "alice"})
	require.Equal(t, http.StatusOK, rec.Code)
	mutual := decode[models.InviteResult](t, rec)
	assert.True(t, mutual.MutualInvite)
	require.NotNil(t, mutual.Group)
	assert.Len(t, mutual.Group.Members, 2)

	rec = call(t, env.group.Get, http.MethodGet, bob, nil)
	members := decode[models.GroupMembersResponse](t, rec).Members
	require.Len(t, members, 2)
	assert.Equal(t, 1, members[0].MemberNumber)
	assert.Equal(t, "alice", members[0].Login)

	rec = call(t, env.group.Leave, http.MethodDelete, alice, nil)
	assert.Equal(t, http.StatusOK, rec.Code)

	rec = call(t, env.group.Leave, http.MethodDelete, bob, nil)
	assert.Equal(t, http.StatusBadRequest, rec.Code)
	assert.Equal(t, "INVALID_STATE", errorCode(t, rec))
}

func TestInviteErrors(t *testing.T) {
	env := newTestEnv(t)
	alice := env.user(t, "alice")

	rec := call(t, env.invite.Send, http.MethodPost, alice, models.InviteRequest{Login: "ghost"})
	assert.Equal(t, http.StatusNotFound, rec.Code)

	rec = call(t, env.invite.Send, http.MethodPost, alice, models.InviteRequest{Login: "alice"})
	assert.Equal(t, http.StatusBadRequest, rec.Code)

	rec = call(t, env.invite.Send, http.MethodPost, alice, "[]")
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

// vanishingProductDB 模拟商品在可见性检查之后被删除
type vanishingProductDB struct {
	database.DatabaseInterface
}

func (vanishingProductDB) CreatePurchase(ctx context.Context, p *models.Purchase) error {
	return fmt.Errorf("create purchase: %w", database.ErrReferenced)
}

func TestCreatePurchaseForDeletedProductIsNotFound(t *testing.T) {
	env := newTestEnv(t)
	alice := env.user(t, "alice")

	rec := call(t, env.products.Create, http.MethodPost, alice, validProduct())
	require.Equal(t, http.StatusOK, rec.Code)
	product := decode[models.Product](t, rec)

	h := NewPurchasesHandler(vanishingProductDB{env.db}, env.groups)
	rec = call(t, h.Create, http.MethodPost, alice, validPurchase(product.ID))
	assert.Equal(t, http.StatusNotFound, rec.Code)
	resp := decode[utils.APIResponse](t, rec)
	require.NotNil(t, resp.Error)
	assert.Equal(t, "product not found", resp.Error.Message)
}
