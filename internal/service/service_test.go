package service

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/mmeshcher/storefront-state/internal/catalog"
	"github.com/mmeshcher/storefront-state/internal/model"
	"github.com/mmeshcher/storefront-state/internal/repository"
)

var testNow = time.Date(2026, 5, 10, 12, 0, 0, 0, time.UTC)

type fixedClock struct{ t time.Time }

func (c fixedClock) Now() time.Time { return c.t }

var (
	redM  = model.VariantKey{ProductID: "p1", ColorName: "Red", SizeName: "M"}
	blueL = model.VariantKey{ProductID: "p2", ColorName: "Blue", SizeName: "L"}
)

func newTestService(t *testing.T, repo Repository) *Service {
	t.Helper()
	svc := NewService(repo, catalog.NewEnricher(nil, zap.NewNop()), zap.NewNop(), Settings{
		ShippingFee:  decimal.RequireFromString("5.00"),
		OrderTimeout: time.Second,
	})
	return svc.WithClock(fixedClock{testNow})
}

func mustStock(t *testing.T, repo *repository.MemoryRepository, key model.VariantKey, qty int) {
	t.Helper()
	_, err := repo.SetStock(context.Background(), key, qty)
	require.NoError(t, err)
}

func stockOf(t *testing.T, repo *repository.MemoryRepository, key model.VariantKey) int {
	t.Helper()
	qty, err := repo.AvailableQuantity(context.Background(), key)
	require.NoError(t, err)
	return qty
}

func line(key model.VariantKey, qty int, price string) model.LineItem {
	return model.LineItem{VariantKey: key, Quantity: qty, UnitPrice: decimal.RequireFromString(price)}
}

func mustPromo(t *testing.T, repo *repository.MemoryRepository, p model.PromoCode) *model.PromoCode {
	t.Helper()
	if p.ValidFrom.IsZero() {
		p.ValidFrom = testNow.Add(-24 * time.Hour)
	}
	if p.ValidUntil.IsZero() {
		p.ValidUntil = testNow.Add(24 * time.Hour)
	}
	p.Active = true
	created, err := repo.CreatePromoCode(context.Background(), p)
	require.NoError(t, err)
	return created
}

func ptr[T any](v T) *T { return &v }

func TestSyncCartScenario(t *testing.T) {
	ctx := context.Background()
	svc := newTestService(t, repository.NewMemoryRepository())

	row := model.ClientCartRow{VariantKey: redM, Quantity: 2, Price: decimal.RequireFromString("20.00")}

	_, err := svc.SyncCart(ctx, "u1", []model.ClientCartRow{row})
	require.NoError(t, err)
	got, err := svc.SyncCart(ctx, "u1", []model.ClientCartRow{row})
	require.NoError(t, err)
	require.Len(t, got, 1)
	assert.Equal(t, 2, got[0].Quantity)

	row.Quantity = 5
	got, err = svc.SyncCart(ctx, "u1", []model.ClientCartRow{row})
	require.NoError(t, err)
	require.Len(t, got, 1)
	assert.Equal(t, 5, got[0].Quantity)

	other := model.ClientCartRow{VariantKey: blueL, Quantity: 1, Price: decimal.RequireFromString("9.99")}
	got, err = svc.SyncCart(ctx, "u1", []model.ClientCartRow{other})
	require.NoError(t, err)
	require.Len(t, got, 2)
	assert.Equal(t, redM, got[0].Variant)
	assert.Equal(t, 5, got[0].Quantity)
	assert.Equal(t, blueL, got[1].Variant)

	cart, err := svc.GetCart(ctx, "u1")
	require.NoError(t, err)
	assert.Len(t, cart, 2)
}

func TestSyncRejectsInvalidInput(t *testing.T) {
	svc := newTestService(t, repository.NewMemoryRepository())

	_, err := svc.SyncCart(context.Background(), "", nil)
	assert.ErrorIs(t, err, model.ErrNotAuthenticated)

	_, err = svc.SyncCart(context.Background(), "u1", []model.ClientCartRow{{VariantKey: model.VariantKey{ProductID: "p1"}, Quantity: 1}})
	assert.ErrorIs(t, err, model.ErrValidationFailed)

	_, err = svc.SyncFavorites(context.Background(), "u1", []model.ClientFavoriteRow{{ProductID: ""}})
	assert.ErrorIs(t, err, model.ErrValidationFailed)
}

func TestCartMutations(t *testing.T) {
	ctx := context.Background()
	repo := repository.NewMemoryRepository()
	svc := newTestService(t, repo)
	mustStock(t, repo, redM, 3)
	mustStock(t, repo, blueL, 0)

	item := model.ClientCartRow{VariantKey: redM, Quantity: 2, Price: decimal.RequireFromString("10.00")}
	row, err := svc.AddCartItem(ctx, "u1", item)
	require.NoError(t, err)
	assert.Equal(t, 2, row.Quantity)

	row, err = svc.AddCartItem(ctx, "u1", item)
	require.NoError(t, err)
	assert.Equal(t, 3, row.Quantity, "capped at available stock")

	_, err = svc.AddCartItem(ctx, "u1", model.ClientCartRow{VariantKey: blueL, Quantity: 1})
	var stockErr *model.StockError
	require.ErrorAs(t, err, &stockErr)

	_, err = svc.SetCartItemQuantity(ctx, "u1", redM, 4)
	require.ErrorAs(t, err, &stockErr)
	assert.Equal(t, 3, stockErr.Shortages[0].AvailableQty)

	row, err = svc.SetCartItemQuantity(ctx, "u1", redM, 1)
	require.NoError(t, err)
	assert.Equal(t, 1, row.Quantity)

	_, err = svc.SetCartItemQuantity(ctx, "u1", blueL, 1)
	assert.ErrorIs(t, err, model.ErrNotFound)

	_, err = svc.SetCartItemQuantity(ctx, "u1", redM, 0)
	require.NoError(t, err)
	require.NoError(t, svc.RemoveCartItem(ctx, "u1", redM))

	cart, err := svc.GetCart(ctx, "u1")
	require.NoError(t, err)
	assert.Empty(t, cart)
}

func TestFavoritesToggle(t *testing.T) {
	ctx := context.Background()
	svc := newTestService(t, repository.NewMemoryRepository())

	require.NoError(t, svc.AddFavorite(ctx, "u1", "p1"))
	require.NoError(t, svc.AddFavorite(ctx, "u1", "p1"))

	favs, err := svc.SyncFavorites(ctx, "u1", []model.ClientFavoriteRow{{ProductID: "p2"}})
	require.NoError(t, err)
	require.Len(t, favs, 2)

	require.NoError(t, svc.RemoveFavorite(ctx, "u1", "p1"))
	favs, err = svc.GetFavorites(ctx, "u1")
	require.NoError(t, err)
	require.Len(t, favs, 1)
	assert.Equal(t, "p2", favs[0].ProductID)
}

func TestCreateOrderReservesAndClearsCart(t *testing.T) {
	ctx := context.Background()
	repo := repository.NewMemoryRepository()
	svc := newTestService(t, repo)
	mustStock(t, repo, redM, 5)
	mustStock(t, repo, blueL, 2)

	_, err := svc.SyncCart(ctx, "u1", []model.ClientCartRow{
		{VariantKey: redM, Quantity: 3, Price: decimal.RequireFromString("20.00")},
		{VariantKey: blueL, Quantity: 1, Price: decimal.RequireFromString("7.50")},
	})
	require.NoError(t, err)

	order, err := svc.CreateOrder(ctx, "u1", model.OrderRequest{
		AddressID: "addr-1",
		Items:     []model.LineItem{line(redM, 3, "20.00")},
	})
	require.NoError(t, err)

	assert.Equal(t, model.OrderStatusPending, order.Status)
	assert.Equal(t, "60.00", order.Subtotal.StringFixed(2))
	assert.Equal(t, "5.00", order.ShippingCost.StringFixed(2))
	assert.Equal(t, "65.00", order.Total.StringFixed(2))
	assert.Equal(t, 2, stockOf(t, repo, redM))

	cart, err := svc.GetCart(ctx, "u1")
	require.NoError(t, err)
	require.Len(t, cart, 1, "only the ordered row is removed")
	assert.Equal(t, blueL, cart[0].Variant)

	got, err := svc.GetOrder(ctx, "u1", order.ID)
	require.NoError(t, err)
	assert.Equal(t, order.ID, got.ID)

	_, err = svc.GetOrder(ctx, "u2", order.ID)
	assert.ErrorIs(t, err, model.ErrNotFound)

	orders, err := svc.GetOrders(ctx, "u1")
	require.NoError(t, err)
	assert.Len(t, orders, 1)
}

func TestCreateOrderStockShortageLeavesNoReservation(t *testing.T) {
	ctx := context.Background()
	repo := repository.NewMemoryRepository()
	svc := newTestService(t, repo)
	mustStock(t, repo, redM, 5)
	mustStock(t, repo, blueL, 1)
	missing := model.VariantKey{ProductID: "p9", ColorName: "Green", SizeName: "S"}

	_, err := svc.CreateOrder(ctx, "u1", model.OrderRequest{
		AddressID: "addr-1",
		Items: []model.LineItem{
			line(redM, 2, "1.00"),
			line(blueL, 3, "1.00"),
			line(missing, 1, "1.00"),
		},
	})

	var stockErr *model.StockError
	require.ErrorAs(t, err, &stockErr)
	assert.ErrorIs(t, err, model.ErrStockInsufficient)
	assert.ElementsMatch(t, []model.StockShortage{
		{Variant: blueL, RequestedQty: 3, AvailableQty: 1},
		{Variant: missing, RequestedQty: 1, AvailableQty: 0},
	}, stockErr.Shortages)

	assert.Equal(t, 5, stockOf(t, repo, redM))
	assert.Equal(t, 1, stockOf(t, repo, blueL))
}

func TestCreateOrderMergesDuplicateLines(t *testing.T) {
	ctx := context.Background()
	repo := repository.NewMemoryRepository()
	svc := newTestService(t, repo)
	mustStock(t, repo, redM, 3)

	_, err := svc.CreateOrder(ctx, "u1", model.OrderRequest{
		AddressID: "addr-1",
		Items:     []model.LineItem{line(redM, 2, "1.00"), line(redM, 2, "1.00")},
	})
	var stockErr *model.StockError
	require.ErrorAs(t, err, &stockErr)
	assert.Equal(t, 4, stockErr.Shortages[0].RequestedQty)
}

func TestCreateOrderRejectsConflictingDuplicatePrices(t *testing.T) {
	ctx := context.Background()
	repo := repository.NewMemoryRepository()
	svc := newTestService(t, repo)
	mustStock(t, repo, redM, 10)

	_, err := svc.CreateOrder(ctx, "u1", model.OrderRequest{
		AddressID: "addr-1",
		Items:     []model.LineItem{line(redM, 1, "10.00"), line(blueL, 1, "3.00"), line(redM, 1, "1.00")},
	})
	var inputErr *model.InputError
	require.ErrorAs(t, err, &inputErr)
	assert.Equal(t, "items", inputErr.Fields[0].Field)
	assert.Contains(t, inputErr.Fields[0].Reason, redM.String())
	assert.Equal(t, 10, stockOf(t, repo, redM))

	order, err := svc.CreateOrder(ctx, "u1", model.OrderRequest{
		AddressID: "addr-1",
		Items:     []model.LineItem{line(redM, 1, "10.00"), line(redM, 2, "10.004")},
	})
	require.NoError(t, err)
	require.Len(t, order.Items, 1)
	assert.Equal(t, 3, order.Items[0].Quantity)
	assert.Equal(t, "30.00", order.Subtotal.StringFixed(2))
}

func TestCreateOrderPricing(t *testing.T) {
	tests := []struct {
		name         string
		promo        model.PromoCode
		wantDiscount string
		wantShipping string
		wantTotal    string
	}{
		{
			name:         "percentage",
			promo:        model.PromoCode{Code: "PCT", Type: model.PromoTypePercentage, Value: decimal.NewFromInt(10)},
			wantDiscount: "4.00",
			wantShipping: "5.00",
			wantTotal:    "41.00",
		},
		{
			name:         "fixed capped by subtotal",
			promo:        model.PromoCode{Code: "FIX", Type: model.PromoTypeFixed, Value: decimal.NewFromInt(100)},
			wantDiscount: "40.00",
			wantShipping: "5.00",
			wantTotal:    "5.00",
		},
		{
			name:         "free shipping",
			promo:        model.PromoCode{Code: "SHIP", Type: model.PromoTypeFreeShipping},
			wantDiscount: "0.00",
			wantShipping: "0.00",
			wantTotal:    "40.00",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			repo := repository.NewMemoryRepository()
			svc := newTestService(t, repo)
			mustStock(t, repo, redM, 10)
			mustPromo(t, repo, tt.promo)

			order, err := svc.CreateOrder(context.Background(), "u1", model.OrderRequest{
				AddressID: "addr-1",
				PromoCode: ptr(tt.promo.Code),
				Items:     []model.LineItem{line(redM, 2, "20.00")},
			})
			require.NoError(t, err)

			assert.Equal(t, tt.wantDiscount, order.Discount.StringFixed(2))
			assert.Equal(t, tt.wantShipping, order.ShippingCost.StringFixed(2))
			assert.Equal(t, tt.wantTotal, order.Total.StringFixed(2))
			require.NotNil(t, order.PromoCode)
			assert.Equal(t, tt.promo.Code, *order.PromoCode)
		})
	}
}

func TestCreateOrderPromoRejections(t *testing.T) {
	repo := repository.NewMemoryRepository()
	svc := newTestService(t, repo)
	mustStock(t, repo, redM, 10)

	minAmount := decimal.NewFromInt(100)
	mustPromo(t, repo, model.PromoCode{Code: "BIG", Type: model.PromoTypeFixed, Value: decimal.NewFromInt(5), MinAmount: &minAmount})
	mustPromo(t, repo, model.PromoCode{
		Code: "OLD", Type: model.PromoTypeFixed, Value: decimal.NewFromInt(5),
		ValidFrom: testNow.Add(-48 * time.Hour), ValidUntil: testNow,
	})

	tests := []struct {
		code string
		want model.PromoReason
	}{
		{code: "nope", want: model.PromoReasonNotFound},
		{code: "big", want: model.PromoReasonBelowMinimum},
		{code: "OLD", want: model.PromoReasonExpired},
	}

	for _, tt := range tests {
		t.Run(tt.code, func(t *testing.T) {
			_, err := svc.CreateOrder(context.Background(), "u1", model.OrderRequest{
				AddressID: "addr-1",
				PromoCode: ptr(tt.code),
				Items:     []model.LineItem{line(redM, 1, "10.00")},
			})

			var promoErr *model.PromoError
			require.ErrorAs(t, err, &promoErr)
			assert.Equal(t, tt.want, promoErr.Reason)
			assert.ErrorIs(t, err, model.ErrValidationFailed)
		})
	}

	assert.Equal(t, 10, stockOf(t, repo, redM), "rejected promo reserves nothing")
}

func TestCreateOrderPromoSingleUsePerUser(t *testing.T) {
	ctx := context.Background()
	repo := repository.NewMemoryRepository()
	svc := newTestService(t, repo)
	mustStock(t, repo, redM, 10)
	p := mustPromo(t, repo, model.PromoCode{Code: "ONCE", Type: model.PromoTypePercentage, Value: decimal.NewFromInt(10), MaxUses: ptr(100)})

	req := model.OrderRequest{AddressID: "addr-1", PromoCode: ptr("once"), Items: []model.LineItem{line(redM, 1, "10.00")}}

	_, err := svc.CreateOrder(ctx, "u1", req)
	require.NoError(t, err)

	_, err = svc.ValidatePromo(ctx, "u1", "ONCE", decimal.NewFromInt(10))
	var promoErr *model.PromoError
	require.ErrorAs(t, err, &promoErr)
	assert.Equal(t, model.PromoReasonAlreadyUsed, promoErr.Reason)

	_, err = svc.CreateOrder(ctx, "u1", req)
	require.ErrorAs(t, err, &promoErr)
	assert.Equal(t, model.PromoReasonAlreadyUsed, promoErr.Reason)

	_, err = svc.CreateOrder(ctx, "u2", req)
	require.NoError(t, err)

	stored, err := repo.GetPromoCode(ctx, p.Code)
	require.NoError(t, err)
	assert.Equal(t, 2, stored.UsedCount)
	assert.Equal(t, 8, stockOf(t, repo, redM))
}

func TestCreateOrderPromoExhaustionRace(t *testing.T) {
	ctx := context.Background()
	repo := repository.NewMemoryRepository()
	svc := newTestService(t, repo)
	mustStock(t, repo, redM, 10)
	mustPromo(t, repo, model.PromoCode{Code: "LAST", Type: model.PromoTypeFixed, Value: decimal.NewFromInt(1), MaxUses: ptr(1)})

	var (
		wg       sync.WaitGroup
		mu       sync.Mutex
		created  int
		rejected int
	)
	for _, user := range []string{"u1", "u2"} {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_, err := svc.CreateOrder(ctx, user, model.OrderRequest{
				AddressID: "addr-1",
				PromoCode: ptr("LAST"),
				Items:     []model.LineItem{line(redM, 1, "10.00")},
			})
			mu.Lock()
			defer mu.Unlock()
			var promoErr *model.PromoError
			switch {
			case err == nil:
				created++
			case errors.As(err, &promoErr) && promoErr.Reason == model.PromoReasonExhausted:
				rejected++
			default:
				t.Errorf("unexpected error: %v", err)
			}
		}()
	}
	wg.Wait()

	assert.Equal(t, 1, created)
	assert.Equal(t, 1, rejected)

	stored, err := repo.GetPromoCode(ctx, "LAST")
	require.NoError(t, err)
	assert.Equal(t, 1, stored.UsedCount)
	assert.Equal(t, 9, stockOf(t, repo, redM))
}

func TestCancelOrderReleasesExactlyOnce(t *testing.T) {
	ctx := context.Background()
	repo := repository.NewMemoryRepository()
	svc := newTestService(t, repo)
	mustStock(t, repo, redM, 5)

	order, err := svc.CreateOrder(ctx, "u1", model.OrderRequest{
		AddressID: "addr-1",
		Items:     []model.LineItem{line(redM, 3, "1.00")},
	})
	require.NoError(t, err)
	assert.Equal(t, 2, stockOf(t, repo, redM))

	_, err = svc.CancelOrder(ctx, "u2", order.ID)
	assert.ErrorIs(t, err, model.ErrNotFound)

	cancelled, err := svc.CancelOrder(ctx, "u1", order.ID)
	require.NoError(t, err)
	assert.Equal(t, model.OrderStatusCancelled, cancelled.Status)
	require.NotNil(t, cancelled.CancelledAt)
	assert.Equal(t, 5, stockOf(t, repo, redM))

	_, err = svc.UpdateOrderStatus(ctx, order.ID, model.OrderStatusCancelled)
	require.NoError(t, err)
	assert.Equal(t, 5, stockOf(t, repo, redM))

	_, err = svc.UpdateOrderStatus(ctx, order.ID, model.OrderStatusShipped)
	assert.ErrorIs(t, err, model.ErrInvalidTransition)
}

func TestUpdateOrderStatusLifecycle(t *testing.T) {
	ctx := context.Background()
	repo := repository.NewMemoryRepository()
	svc := newTestService(t, repo)
	mustStock(t, repo, redM, 5)

	order, err := svc.CreateOrder(ctx, "u1", model.OrderRequest{
		AddressID: "addr-1",
		Items:     []model.LineItem{line(redM, 1, "1.00")},
	})
	require.NoError(t, err)

	o, err := svc.UpdateOrderStatus(ctx, order.ID, model.OrderStatusShipped)
	require.NoError(t, err)
	require.NotNil(t, o.ShippedAt)

	o, err = svc.UpdateOrderStatus(ctx, order.ID, model.OrderStatusDelivered)
	require.NoError(t, err)
	require.NotNil(t, o.DeliveredAt)

	o, err = svc.UpdateOrderStatus(ctx, order.ID, model.OrderStatusPending)
	require.NoError(t, err)
	assert.Nil(t, o.ShippedAt)
	assert.Nil(t, o.DeliveredAt)

	_, err = svc.UpdateOrderStatus(ctx, order.ID, model.OrderStatus("LOST"))
	assert.ErrorIs(t, err, model.ErrValidationFailed)

	_, err = svc.UpdateOrderStatus(ctx, uuid.New(), model.OrderStatusShipped)
	assert.ErrorIs(t, err, model.ErrNotFound)

	assert.Equal(t, 4, stockOf(t, repo, redM))
}

func TestValidatePromoDoesNotMutate(t *testing.T) {
	ctx := context.Background()
	repo := repository.NewMemoryRepository()
	svc := newTestService(t, repo)
	mustPromo(t, repo, model.PromoCode{Code: "TEN", Type: model.PromoTypePercentage, Value: decimal.NewFromInt(10), MaxUses: ptr(1)})

	for range 2 {
		quote, err := svc.ValidatePromo(ctx, "u1", " ten ", decimal.RequireFromString("50.00"))
		require.NoError(t, err)
		assert.Equal(t, "5.00", quote.Discount.StringFixed(2))
	}

	stored, err := repo.GetPromoCode(ctx, "TEN")
	require.NoError(t, err)
	assert.Equal(t, 0, stored.UsedCount)
}

func TestCreatePromoCodeValidation(t *testing.T) {
	ctx := context.Background()
	svc := newTestService(t, repository.NewMemoryRepository())

	_, err := svc.CreatePromoCode(ctx, model.PromoCode{Code: "", Type: "BOGUS"})
	var inputErr *model.InputError
	require.ErrorAs(t, err, &inputErr)
	assert.Len(t, inputErr.Fields, 3)

	def := model.PromoCode{
		Code:       "new",
		Type:       model.PromoTypeFixed,
		Value:      decimal.NewFromInt(5),
		ValidFrom:  testNow,
		ValidUntil: testNow.Add(time.Hour),
		Active:     true,
	}
	created, err := svc.CreatePromoCode(ctx, def)
	require.NoError(t, err)
	assert.Equal(t, "NEW", created.Code)

	_, err = svc.CreatePromoCode(ctx, def)
	assert.ErrorIs(t, err, model.ErrAlreadyExists)
}

// stallingRepo задерживает вставку заказа до истечения контекста,
// имитируя зависшее хранилище посреди транзакции.
type stallingRepo struct {
	*repository.MemoryRepository
}

type stallingTx struct {
	repository.Tx
}

func (tx stallingTx) InsertOrder(ctx context.Context, order *model.Order) error {
	<-ctx.Done()
	return ctx.Err()
}

func (r stallingRepo) WithinTx(ctx context.Context, fn func(tx repository.Tx) error) error {
	return r.MemoryRepository.WithinTx(ctx, func(tx repository.Tx) error {
		return fn(stallingTx{tx})
	})
}

func TestCreateOrderTimeoutRollsBack(t *testing.T) {
	repo := repository.NewMemoryRepository()
	mustStock(t, repo, redM, 5)

	svc := NewService(stallingRepo{repo}, catalog.NewEnricher(nil, zap.NewNop()), zap.NewNop(), Settings{
		ShippingFee:  decimal.Zero,
		OrderTimeout: 20 * time.Millisecond,
	})

	_, err := svc.CreateOrder(context.Background(), "u1", model.OrderRequest{
		AddressID: "addr-1",
		Items:     []model.LineItem{line(redM, 3, "1.00")},
	})
	assert.ErrorIs(t, err, model.ErrStoreUnavailable)
	assert.Equal(t, 5, stockOf(t, repo, redM))
}

func TestSetStock(t *testing.T) {
	repo := repository.NewMemoryRepository()
	svc := newTestService(t, repo)
	ctx := context.Background()

	rec, err := svc.SetStock(ctx, redM, 4)
	require.NoError(t, err)
	assert.Equal(t, 4, rec.AvailableQuantity)
	assert.Equal(t, 4, stockOf(t, repo, redM))

	_, err = svc.SetStock(ctx, redM, -1)
	var inputErr *model.InputError
	require.ErrorAs(t, err, &inputErr)
	assert.Equal(t, "availableQuantity", inputErr.Fields[0].Field)

	_, err = svc.SetStock(ctx, model.VariantKey{ProductID: "p1"}, 1)
	assert.ErrorIs(t, err, model.ErrValidationFailed)
	assert.Equal(t, 4, stockOf(t, repo, redM))
}

func TestPing(t *testing.T) {
	svc := newTestService(t, repository.NewMemoryRepository())
	require.NoError(t, svc.Ping(context.Background()))

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	assert.ErrorIs(t, svc.Ping(ctx), model.ErrStoreUnavailable)
}

func TestInputBeyondStorableLimits(t *testing.T) {
	ctx := context.Background()

	tests := []struct {
		name      string
		call      func(svc *Service) error
		wantField string
	}{
		{
			name: "cart quantity over line limit",
			call: func(svc *Service) error {
				_, err := svc.SetCartItemQuantity(ctx, "u1", redM, 3_000_000_000)
				return err
			},
			wantField: "quantity",
		},
		{
			name: "stock over integer column",
			call: func(svc *Service) error {
				_, err := svc.SetStock(ctx, redM, model.MaxCount+1)
				return err
			},
			wantField: "availableQuantity",
		},
		{
			name: "promo max uses over integer column",
			call: func(svc *Service) error {
				_, err := svc.CreatePromoCode(ctx, model.PromoCode{
					Code:       "BIG",
					Type:       model.PromoTypeFreeShipping,
					ValidFrom:  testNow,
					ValidUntil: testNow.Add(time.Hour),
					MaxUses:    ptr(4294967297),
				})
				return err
			},
			wantField: "maxUses",
		},
		{
			name: "promo fixed value over storable amount",
			call: func(svc *Service) error {
				_, err := svc.CreatePromoCode(ctx, model.PromoCode{
					Code:       "HUGE",
					Type:       model.PromoTypeFixed,
					Value:      decimal.RequireFromString("10000000000"),
					ValidFrom:  testNow,
					ValidUntil: testNow.Add(time.Hour),
				})
				return err
			},
			wantField: "value",
		},
		{
			name: "promo min amount over storable amount",
			call: func(svc *Service) error {
				_, err := svc.CreatePromoCode(ctx, model.PromoCode{
					Code:       "MIN",
					Type:       model.PromoTypeFreeShipping,
					MinAmount:  ptr(decimal.RequireFromString("10000000000")),
					ValidFrom:  testNow,
					ValidUntil: testNow.Add(time.Hour),
				})
				return err
			},
			wantField: "minAmount",
		},
		{
			name: "sync cart price over storable amount",
			call: func(svc *Service) error {
				_, err := svc.SyncCart(ctx, "u1", []model.ClientCartRow{
					{VariantKey: blueL, Quantity: 1, Price: decimal.RequireFromString("1.00")},
					{VariantKey: redM, Quantity: 1, Price: decimal.RequireFromString("123456789012345.00")},
				})
				return err
			},
			wantField: "items[1].price",
		},
		{
			name: "order total over storable amount",
			call: func(svc *Service) error {
				_, err := svc.CreateOrder(ctx, "u1", model.OrderRequest{
					AddressID: "addr-1",
					Items:     []model.LineItem{line(redM, 2, "9999999999.99")},
				})
				return err
			},
			wantField: "items",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			repo := repository.NewMemoryRepository()
			mustStock(t, repo, redM, 5)
			svc := newTestService(t, repo)

			err := tt.call(svc)
			require.ErrorIs(t, err, model.ErrValidationFailed)
			assert.NotErrorIs(t, err, model.ErrStoreUnavailable)

			var inputErr *model.InputError
			require.ErrorAs(t, err, &inputErr)
			require.Len(t, inputErr.Fields, 1)
			assert.Equal(t, tt.wantField, inputErr.Fields[0].Field)

			cart, err := repo.ListCartRows(ctx, "u1")
			require.NoError(t, err)
			assert.Empty(t, cart)
			assert.Equal(t, 5, stockOf(t, repo, redM))
		})
	}
}

func TestSetCartItemQuantityWithoutStockRecord(t *testing.T) {
	ctx := context.Background()
	svc := newTestService(t, repository.NewMemoryRepository())

	_, err := svc.AddCartItem(ctx, "u1", model.ClientCartRow{VariantKey: redM, Quantity: 1, Price: decimal.RequireFromString("2.00")})
	require.NoError(t, err)

	row, err := svc.SetCartItemQuantity(ctx, "u1", redM, model.MaxQuantity)
	require.NoError(t, err)
	assert.Equal(t, model.MaxQuantity, row.Quantity)

	_, err = svc.SetCartItemQuantity(ctx, "u1", redM, model.MaxQuantity+1)
	var stockErr *model.StockError
	assert.False(t, errors.As(err, &stockErr))
	var inputErr *model.InputError
	require.ErrorAs(t, err, &inputErr)
	assert.Equal(t, "must be at most 1000", inputErr.Fields[0].Reason)

	row, err = svc.AddCartItem(ctx, "u1", model.ClientCartRow{VariantKey: redM, Quantity: 5, Price: decimal.RequireFromString("2.00")})
	require.NoError(t, err)
	assert.Equal(t, model.MaxQuantity, row.Quantity)
}
