package service

import (
	"context"
	"errors"
	"maps"
	"slices"
	"sync"

	"github.com/rl1809/stock-ledger/internal/core/domain"
	"github.com/rl1809/stock-ledger/internal/port"
)

var errInjected = errors.New("injected failure")

type memState struct {
	items     map[int64]domain.Item
	movements map[int64]domain.Movement
	orders    map[string]domain.Order
	seq       int64
}

func (s memState) clone() memState {
	return memState{
		items:     maps.Clone(s.items),
		movements: maps.Clone(s.movements),
		orders:    maps.Clone(s.orders),
		seq:       s.seq,
	}
}

func (s memState) remaining(itemID int64) int {
	total := 0
	for _, m := range s.movements {
		if m.ItemID == itemID {
			total += m.Impact()
		}
	}
	for _, o := range s.orders {
		if o.ItemID == itemID {
			total -= o.Quantity
		}
	}
	return total
}

// mockRepo is an in-memory DatabaseRepository. Transactions run one at a time
// against a copy of the state that replaces the original on commit.
type mockRepo struct {
	mu    sync.Mutex
	state memState

	failCommit bool
	txCount    int
}

func newMockRepo() *mockRepo {
	return &mockRepo{state: memState{
		items:     map[int64]domain.Item{},
		movements: map[int64]domain.Movement{},
		orders:    map[string]domain.Order{},
	}}
}

func (r *mockRepo) WithinTx(ctx context.Context, fn func(ctx context.Context, tx port.Tx) error) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	r.txCount++
	tx := &mockTx{state: r.state.clone()}
	if err := fn(ctx, tx); err != nil {
		return err
	}
	if r.failCommit {
		return errInjected
	}
	r.state = tx.state
	return nil
}

func (r *mockRepo) Ping(context.Context) error { return nil }
func (r *mockRepo) Close() error               { return nil }

func (r *mockRepo) GetItem(_ context.Context, id int64) (*domain.Item, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if item, ok := r.state.items[id]; ok {
		return &item, nil
	}
	return nil, nil
}

func (r *mockRepo) ListItems(_ context.Context, page domain.Page) (domain.PageResult[domain.Item], error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	return paginate(slices.Collect(maps.Values(r.state.items)), page, func(i domain.Item) int64 { return i.ID }), nil
}

func (r *mockRepo) GetMovement(_ context.Context, id int64) (*domain.Movement, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if m, ok := r.state.movements[id]; ok {
		m.ItemName = r.state.items[m.ItemID].Name
		return &m, nil
	}
	return nil, nil
}

func (r *mockRepo) ListMovements(_ context.Context, page domain.Page) (domain.PageResult[domain.Movement], error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	return paginate(slices.Collect(maps.Values(r.state.movements)), page, func(m domain.Movement) int64 { return m.ID }), nil
}

func (r *mockRepo) GetOrder(_ context.Context, orderNo string) (*domain.Order, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if o, ok := r.state.orders[orderNo]; ok {
		o.ItemName = r.state.items[o.ItemID].Name
		return &o, nil
	}
	return nil, nil
}

func (r *mockRepo) ListOrders(_ context.Context, page domain.Page) (domain.PageResult[domain.Order], error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	return paginate(slices.Collect(maps.Values(r.state.orders)), page, func(o domain.Order) int64 { return o.ID }), nil
}

func (r *mockRepo) RemainingStock(_ context.Context, itemID int64) (int, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.state.remaining(itemID), nil
}

func paginate[T any](rows []T, page domain.Page, id func(T) int64) domain.PageResult[T] {
	slices.SortFunc(rows, func(a, b T) int { return int(id(a) - id(b)) })
	res := domain.PageResult[T]{Page: page.Number, Size: page.Size, TotalElements: int64(len(rows))}
	start := min(page.Offset(), len(rows))
	end := min(start+page.Size, len(rows))
	res.Content = rows[start:end]
	return res
}

type mockTx struct {
	state memState
}

func (t *mockTx) next() int64 {
	t.state.seq++
	return t.state.seq
}

func (t *mockTx) LockItem(_ context.Context, id int64) (*domain.Item, error) {
	if item, ok := t.state.items[id]; ok {
		return &item, nil
	}
	return nil, nil
}

func (t *mockTx) FindItemByName(_ context.Context, name string) (*domain.Item, error) {
	for _, item := range t.state.items {
		if item.Name == name {
			return &item, nil
		}
	}
	return nil, nil
}

func (t *mockTx) InsertItem(_ context.Context, item *domain.Item) error {
	item.ID = t.next()
	t.state.items[item.ID] = *item
	return nil
}

func (t *mockTx) UpdateItem(_ context.Context, item *domain.Item) error {
	t.state.items[item.ID] = *item
	return nil
}

func (t *mockTx) DeleteItem(_ context.Context, id int64) error {
	delete(t.state.items, id)
	return nil
}

func (t *mockTx) CountItemReferences(_ context.Context, itemID int64) (int, error) {
	refs := 0
	for _, m := range t.state.movements {
		if m.ItemID == itemID {
			refs++
		}
	}
	for _, o := range t.state.orders {
		if o.ItemID == itemID {
			refs++
		}
	}
	return refs, nil
}

func (t *mockTx) RemainingStock(_ context.Context, itemID int64) (int, error) {
	return t.state.remaining(itemID), nil
}

func (t *mockTx) LockMovement(_ context.Context, id int64) (*domain.Movement, error) {
	if m, ok := t.state.movements[id]; ok {
		return &m, nil
	}
	return nil, nil
}

func (t *mockTx) InsertMovement(_ context.Context, m *domain.Movement) error {
	m.ID = t.next()
	t.state.movements[m.ID] = *m
	return nil
}

func (t *mockTx) UpdateMovement(_ context.Context, m *domain.Movement) error {
	t.state.movements[m.ID] = *m
	return nil
}

func (t *mockTx) DeleteMovement(_ context.Context, id int64) error {
	delete(t.state.movements, id)
	return nil
}

func (t *mockTx) LockOrder(_ context.Context, orderNo string) (*domain.Order, error) {
	if o, ok := t.state.orders[orderNo]; ok {
		return &o, nil
	}
	return nil, nil
}

func (t *mockTx) InsertOrder(_ context.Context, o *domain.Order) error {
	if _, ok := t.state.orders[o.OrderNo]; ok {
		return &domain.DuplicateError{Resource: "order", Field: "order no", Value: o.OrderNo}
	}
	o.ID = t.next()
	t.state.orders[o.OrderNo] = *o
	return nil
}

func (t *mockTx) UpdateOrder(_ context.Context, o *domain.Order) error {
	t.state.orders[o.OrderNo] = *o
	return nil
}

func (t *mockTx) DeleteOrder(_ context.Context, orderNo string) error {
	delete(t.state.orders, orderNo)
	return nil
}

// mockIdempotency is an in-memory IdempotencyRepository.
type mockIdempotency struct {
	mu   sync.Mutex
	keys map[string]string
}

func newMockIdempotency() *mockIdempotency {
	return &mockIdempotency{keys: map[string]string{}}
}

func (m *mockIdempotency) Claim(_ context.Context, key string) (string, bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if v, ok := m.keys[key]; ok {
		return v, false, nil
	}
	m.keys[key] = port.PendingValue
	return "", true, nil
}

func (m *mockIdempotency) Complete(_ context.Context, key, value string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.keys[key] = value
	return nil
}

func (m *mockIdempotency) Release(_ context.Context, key string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	delete(m.keys, key)
	return nil
}
