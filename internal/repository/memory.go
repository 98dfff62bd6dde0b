package repository

import (
	"context"
	"maps"
	"slices"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/mmeshcher/storefront-state/internal/model"
)

type cartKey struct {
	userID  string
	variant model.VariantKey
}

type favoriteKey struct {
	userID    string
	productID string
}

type cartEntry struct {
	row model.CartRow
	seq int64
}

type favoriteEntry struct {
	row model.FavoriteRow
	seq int64
}

// memState хранит снимок всех данных in-memory хранилища.
type memState struct {
	seq         int64
	cart        map[cartKey]cartEntry
	favorites   map[favoriteKey]favoriteEntry
	stock       map[model.VariantKey]model.StockRecord
	promos      map[int64]model.PromoCode
	promoByCode map[string]int64
	orders      map[uuid.UUID]model.Order
	nextPromoID int64
}

func newMemState() *memState {
	return &memState{
		cart:        make(map[cartKey]cartEntry),
		favorites:   make(map[favoriteKey]favoriteEntry),
		stock:       make(map[model.VariantKey]model.StockRecord),
		promos:      make(map[int64]model.PromoCode),
		promoByCode: make(map[string]int64),
		orders:      make(map[uuid.UUID]model.Order),
		nextPromoID: 1,
	}
}

// clone копирует состояние. Заказы не изменяются на месте, поэтому копии карт достаточно.
func (s *memState) clone() *memState {
	return &memState{
		seq:         s.seq,
		cart:        maps.Clone(s.cart),
		favorites:   maps.Clone(s.favorites),
		stock:       maps.Clone(s.stock),
		promos:      maps.Clone(s.promos),
		promoByCode: maps.Clone(s.promoByCode),
		orders:      maps.Clone(s.orders),
		nextPromoID: s.nextPromoID,
	}
}

func (s *memState) nextSeq() int64 {
	s.seq++
	return s.seq
}

// MemoryRepository реализует in-memory хранилище для разработки и тестов.
// Транзакции сериализуются и применяются копированием при фиксации.
type MemoryRepository struct {
	mu    sync.Mutex
	state *memState
	now   func() time.Time
}

// NewMemoryRepository создаёт пустое in-memory хранилище.
func NewMemoryRepository() *MemoryRepository {
	return &MemoryRepository{
		state: newMemState(),
		now:   func() time.Time { return time.Now().UTC() },
	}
}

// Close ничего не освобождает и нужен для совместимости с PostgresRepository.
func (m *MemoryRepository) Close() error { return nil }

// Ping сообщает только об отменённом контексте.
func (m *MemoryRepository) Ping(ctx context.Context) error { return ctx.Err() }

func (m *MemoryRepository) upsertCart(row model.CartRow, quantity func(existing *model.CartRow) int) model.CartRow {
	k := cartKey{userID: row.UserID, variant: row.Variant}
	now := m.now()
	entry, ok := m.state.cart[k]
	if ok {
		entry.row.Quantity = quantity(&entry.row)
		entry.row.UnitPrice = row.UnitPrice
		entry.row.UpdatedAt = now
	} else {
		row.Quantity = quantity(nil)
		row.CreatedAt = now
		row.UpdatedAt = now
		entry = cartEntry{row: row, seq: m.state.nextSeq()}
	}
	m.state.cart[k] = entry
	return entry.row
}

// UpsertCartRow создаёт строку корзины или заменяет количество и цену существующей.
func (m *MemoryRepository) UpsertCartRow(ctx context.Context, row model.CartRow) (model.CartRow, error) {
	if err := ctx.Err(); err != nil {
		return model.CartRow{}, err
	}
	m.mu.Lock()
	defer m.mu.Unlock()

	return m.upsertCart(row, func(*model.CartRow) int { return row.Quantity }), nil
}

// AddCartRow увеличивает количество в строке корзины, не превышая maxQty.
func (m *MemoryRepository) AddCartRow(ctx context.Context, row model.CartRow, maxQty int) (model.CartRow, error) {
	if err := ctx.Err(); err != nil {
		return model.CartRow{}, err
	}
	m.mu.Lock()
	defer m.mu.Unlock()

	return m.upsertCart(row, func(existing *model.CartRow) int {
		qty := row.Quantity
		if existing != nil {
			qty += existing.Quantity
		}
		return min(qty, maxQty)
	}), nil
}

// GetCartRow возвращает строку корзины по естественному ключу.
func (m *MemoryRepository) GetCartRow(ctx context.Context, userID string, key model.VariantKey) (model.CartRow, error) {
	if err := ctx.Err(); err != nil {
		return model.CartRow{}, err
	}
	m.mu.Lock()
	defer m.mu.Unlock()

	entry, ok := m.state.cart[cartKey{userID: userID, variant: key}]
	if !ok {
		return model.CartRow{}, ErrNotFound
	}
	return entry.row, nil
}

// ListCartRows возвращает строки корзины пользователя в порядке добавления.
func (m *MemoryRepository) ListCartRows(ctx context.Context, userID string) ([]model.CartRow, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	m.mu.Lock()
	defer m.mu.Unlock()

	var entries []cartEntry
	for k, e := range m.state.cart {
		if k.userID == userID {
			entries = append(entries, e)
		}
	}
	sort.Slice(entries, func(i, j int) bool { return entries[i].seq < entries[j].seq })

	rows := make([]model.CartRow, 0, len(entries))
	for _, e := range entries {
		rows = append(rows, e.row)
	}
	return rows, nil
}

// DeleteCartRow удаляет строку корзины. Отсутствие строки ошибкой не считается.
func (m *MemoryRepository) DeleteCartRow(ctx context.Context, userID string, key model.VariantKey) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	m.mu.Lock()
	defer m.mu.Unlock()

	delete(m.state.cart, cartKey{userID: userID, variant: key})
	return nil
}

// AddFavorite добавляет товар в избранное.
func (m *MemoryRepository) AddFavorite(ctx context.Context, userID, productID string) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	m.mu.Lock()
	defer m.mu.Unlock()

	k := favoriteKey{userID: userID, productID: productID}
	if _, ok := m.state.favorites[k]; ok {
		return nil
	}
	m.state.favorites[k] = favoriteEntry{
		row: model.FavoriteRow{UserID: userID, ProductID: productID, CreatedAt: m.now()},
		seq: m.state.nextSeq(),
	}
	return nil
}

// ListFavorites возвращает избранное пользователя в порядке добавления.
func (m *MemoryRepository) ListFavorites(ctx context.Context, userID string) ([]model.FavoriteRow, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	m.mu.Lock()
	defer m.mu.Unlock()

	var entries []favoriteEntry
	for k, e := range m.state.favorites {
		if k.userID == userID {
			entries = append(entries, e)
		}
	}
	sort.Slice(entries, func(i, j int) bool { return entries[i].seq < entries[j].seq })

	rows := make([]model.FavoriteRow, 0, len(entries))
	for _, e := range entries {
		rows = append(rows, e.row)
	}
	return rows, nil
}

// DeleteFavorite удаляет товар из избранного.
func (m *MemoryRepository) DeleteFavorite(ctx context.Context, userID, productID string) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	m.mu.Lock()
	defer m.mu.Unlock()

	delete(m.state.favorites, favoriteKey{userID: userID, productID: productID})
	return nil
}

func (s *memState) reserve(key model.VariantKey, qty int, now time.Time) bool {
	rec, ok := s.stock[key]
	if !ok || rec.AvailableQuantity < qty {
		return false
	}
	rec.AvailableQuantity -= qty
	rec.UpdatedAt = now
	s.stock[key] = rec
	return true
}

func (s *memState) release(key model.VariantKey, qty int, now time.Time) {
	rec, ok := s.stock[key]
	if !ok {
		rec = model.StockRecord{Variant: key}
	}
	rec.AvailableQuantity += qty
	rec.UpdatedAt = now
	s.stock[key] = rec
}

func (s *memState) available(key model.VariantKey) (int, error) {
	rec, ok := s.stock[key]
	if !ok {
		return 0, ErrNotFound
	}
	return rec.AvailableQuantity, nil
}

// Reserve атомарно уменьшает остаток варианта, если его хватает.
func (m *MemoryRepository) Reserve(ctx context.Context, key model.VariantKey, qty int) (bool, error) {
	if err := ctx.Err(); err != nil {
		return false, err
	}
	m.mu.Lock()
	defer m.mu.Unlock()

	return m.state.reserve(key, qty, m.now()), nil
}

// Release возвращает qty на остаток варианта.
func (m *MemoryRepository) Release(ctx context.Context, key model.VariantKey, qty int) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	m.mu.Lock()
	defer m.mu.Unlock()

	m.state.release(key, qty, m.now())
	return nil
}

// AvailableQuantity возвращает остаток варианта или ErrNotFound.
func (m *MemoryRepository) AvailableQuantity(ctx context.Context, key model.VariantKey) (int, error) {
	if err := ctx.Err(); err != nil {
		return 0, err
	}
	m.mu.Lock()
	defer m.mu.Unlock()

	return m.state.available(key)
}

// SetStock задаёт остаток варианта.
func (m *MemoryRepository) SetStock(ctx context.Context, key model.VariantKey, qty int) (model.StockRecord, error) {
	if err := ctx.Err(); err != nil {
		return model.StockRecord{}, err
	}
	m.mu.Lock()
	defer m.mu.Unlock()

	rec := model.StockRecord{Variant: key, AvailableQuantity: qty, UpdatedAt: m.now()}
	m.state.stock[key] = rec
	return rec, nil
}

// CreatePromoCode сохраняет новый промокод.
func (m *MemoryRepository) CreatePromoCode(ctx context.Context, p model.PromoCode) (*model.PromoCode, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	m.mu.Lock()
	defer m.mu.Unlock()

	p.Code = model.NormalizePromoCode(p.Code)
	if _, ok := m.state.promoByCode[p.Code]; ok {
		return nil, ErrConflict
	}
	p.ID = m.state.nextPromoID
	p.UsedCount = 0
	m.state.nextPromoID++
	m.state.promos[p.ID] = p
	m.state.promoByCode[p.Code] = p.ID
	return &p, nil
}

func (s *memState) promo(code string) (*model.PromoCode, error) {
	id, ok := s.promoByCode[model.NormalizePromoCode(code)]
	if !ok {
		return nil, ErrNotFound
	}
	p := s.promos[id]
	return &p, nil
}

func (s *memState) userHasOrderWithPromo(userID string, promoID int64) bool {
	for _, o := range s.orders {
		if o.UserID == userID && o.PromoCodeID != nil && *o.PromoCodeID == promoID {
			return true
		}
	}
	return false
}

// GetPromoCode возвращает промокод по коду без учёта регистра.
func (m *MemoryRepository) GetPromoCode(ctx context.Context, code string) (*model.PromoCode, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	m.mu.Lock()
	defer m.mu.Unlock()

	return m.state.promo(code)
}

// HasUserUsedPromo сообщает, есть ли у пользователя заказ с этим промокодом.
func (m *MemoryRepository) HasUserUsedPromo(ctx context.Context, userID string, promoID int64) (bool, error) {
	if err := ctx.Err(); err != nil {
		return false, err
	}
	m.mu.Lock()
	defer m.mu.Unlock()

	return m.state.userHasOrderWithPromo(userID, promoID), nil
}

func copyOrder(o model.Order) *model.Order {
	o.Items = slices.Clone(o.Items)
	return &o
}

// GetOrder возвращает копию заказа.
func (m *MemoryRepository) GetOrder(ctx context.Context, id uuid.UUID) (*model.Order, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	m.mu.Lock()
	defer m.mu.Unlock()

	o, ok := m.state.orders[id]
	if !ok {
		return nil, ErrNotFound
	}
	return copyOrder(o), nil
}

// ListOrdersByUser возвращает заказы пользователя, новые первыми.
func (m *MemoryRepository) ListOrdersByUser(ctx context.Context, userID string) ([]model.Order, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	m.mu.Lock()
	defer m.mu.Unlock()

	var orders []model.Order
	for _, o := range m.state.orders {
		if o.UserID == userID {
			orders = append(orders, *copyOrder(o))
		}
	}
	sort.Slice(orders, func(i, j int) bool { return orders[i].CreatedAt.After(orders[j].CreatedAt) })
	return orders, nil
}

// WithinTx выполняет fn над копией состояния и подменяет состояние только при успехе.
// Если контекст истёк к моменту фиксации, изменения отбрасываются.
func (m *MemoryRepository) WithinTx(ctx context.Context, fn func(tx Tx) error) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	m.mu.Lock()
	defer m.mu.Unlock()

	tx := &memTx{state: m.state.clone(), now: m.now}
	if err := fn(tx); err != nil {
		return err
	}
	if err := ctx.Err(); err != nil {
		return err
	}
	m.state = tx.state
	return nil
}

// memTx реализует Tx над копией состояния. Блокировка уже удерживается WithinTx.
type memTx struct {
	state *memState
	now   func() time.Time
}

func (t *memTx) Reserve(ctx context.Context, key model.VariantKey, qty int) (bool, error) {
	if err := ctx.Err(); err != nil {
		return false, err
	}
	return t.state.reserve(key, qty, t.now()), nil
}

func (t *memTx) Release(ctx context.Context, key model.VariantKey, qty int) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	t.state.release(key, qty, t.now())
	return nil
}

func (t *memTx) AvailableQuantity(ctx context.Context, key model.VariantKey) (int, error) {
	if err := ctx.Err(); err != nil {
		return 0, err
	}
	return t.state.available(key)
}

func (t *memTx) LockPromoCode(ctx context.Context, code string) (*model.PromoCode, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	return t.state.promo(code)
}

func (t *memTx) UserHasOrderWithPromo(ctx context.Context, userID string, promoID int64) (bool, error) {
	if err := ctx.Err(); err != nil {
		return false, err
	}
	return t.state.userHasOrderWithPromo(userID, promoID), nil
}

func (t *memTx) IncrementPromoUsage(ctx context.Context, promoID int64) (bool, error) {
	if err := ctx.Err(); err != nil {
		return false, err
	}
	p, ok := t.state.promos[promoID]
	if !ok || (p.MaxUses != nil && p.UsedCount >= *p.MaxUses) {
		return false, nil
	}
	p.UsedCount++
	t.state.promos[promoID] = p
	return true, nil
}

func (t *memTx) InsertOrder(ctx context.Context, order *model.Order) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	if _, ok := t.state.orders[order.ID]; ok {
		return ErrConflict
	}
	if order.PromoCodeID != nil && t.state.userHasOrderWithPromo(order.UserID, *order.PromoCodeID) {
		return ErrConflict
	}
	now := t.now()
	order.CreatedAt = now
	order.UpdatedAt = now
	t.state.orders[order.ID] = *copyOrder(*order)
	return nil
}

func (t *memTx) LockOrder(ctx context.Context, orderID uuid.UUID) (*model.Order, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	o, ok := t.state.orders[orderID]
	if !ok {
		return nil, ErrNotFound
	}
	return copyOrder(o), nil
}

func (t *memTx) SaveOrderStatus(ctx context.Context, order *model.Order) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	stored, ok := t.state.orders[order.ID]
	if !ok {
		return ErrNotFound
	}
	stored.Status = order.Status
	stored.ShippedAt = order.ShippedAt
	stored.DeliveredAt = order.DeliveredAt
	stored.CancelledAt = order.CancelledAt
	stored.UpdatedAt = t.now()
	order.UpdatedAt = stored.UpdatedAt
	t.state.orders[order.ID] = stored
	return nil
}

func (t *memTx) DeleteCartRows(ctx context.Context, userID string, keys []model.VariantKey) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	for _, key := range keys {
		delete(t.state.cart, cartKey{userID: userID, variant: key})
	}
	return nil
}
