// Package memory is an in-process backend for the leave service. It keeps
// every collection in maps behind one mutex and honours the same contracts
// as the Mongo stores: guarded balance decrements, status-conditional
// request updates and all-or-nothing transactions.
//
// It backs the test suites and the "memory" store backend used for demos.
package memory

import (
	"context"
	"sort"
	"sync"
	"time"

	"github.com/dalemusser/leavedesk/internal/app/store"
	userstore "github.com/dalemusser/leavedesk/internal/app/store/users"
	"github.com/dalemusser/leavedesk/internal/domain/models"
	"go.mongodb.org/mongo-driver/bson/primitive"
)

// DB holds the collections.
type DB struct {
	mu       sync.Mutex
	users    map[primitive.ObjectID]*models.User
	types    map[string]*models.LeaveType
	requests map[primitive.ObjectID]*models.LeaveRequest

	failures map[string][]error
}

func New() *DB {
	return &DB{
		users:    map[primitive.ObjectID]*models.User{},
		types:    map[string]*models.LeaveType{},
		requests: map[primitive.ObjectID]*models.LeaveRequest{},
		failures: map[string][]error{},
	}
}

// FailNext makes the next call of op return err instead of running.
// Ops are named "<collection>.<method>", e.g. "requests.update",
// "users.decrement", "users.replace".
func (d *DB) FailNext(op string, err error) {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.failures[op] = append(d.failures[op], err)
}

// injected pops a queued failure for op. Caller holds d.mu.
func (d *DB) injected(op string) error {
	q := d.failures[op]
	if len(q) == 0 {
		return nil
	}
	d.failures[op] = q[1:]
	return q[0]
}

func (d *DB) Users() *Users           { return &Users{d: d} }
func (d *DB) LeaveTypes() *LeaveTypes { return &LeaveTypes{d: d} }
func (d *DB) Requests() *Requests     { return &Requests{d: d} }
func (d *DB) Tx() *Tx                 { return &Tx{d: d} }

/*─────────────────────────────────────────────────────────────────────────────*
| Transactions                                                                 |
*─────────────────────────────────────────────────────────────────────────────*/

type journalKey struct{}

// journal collects inverse operations for writes made inside Tx.Run.
type journal struct {
	undo []func()
}

// record registers an inverse for a write. Caller holds d.mu.
func record(ctx context.Context, inverse func()) {
	if j, ok := ctx.Value(journalKey{}).(*journal); ok {
		j.undo = append(j.undo, inverse)
	}
}

// Tx runs a function so that either all of its writes land or none do.
type Tx struct{ d *DB }

// Run executes fn. When fn returns an error every write it made through this
// DB is undone in reverse order. Nested calls join the outer transaction.
func (t *Tx) Run(ctx context.Context, fn func(ctx context.Context) error) error {
	if _, nested := ctx.Value(journalKey{}).(*journal); nested {
		return fn(ctx)
	}
	j := &journal{}
	err := fn(context.WithValue(ctx, journalKey{}, j))
	if err != nil {
		t.d.mu.Lock()
		for i := len(j.undo) - 1; i >= 0; i-- {
			j.undo[i]()
		}
		t.d.mu.Unlock()
	}
	return err
}

/*─────────────────────────────────────────────────────────────────────────────*
| Users                                                                        |
*─────────────────────────────────────────────────────────────────────────────*/

type Users struct{ d *DB }

func cloneUser(u *models.User) *models.User {
	c := *u
	if u.ManagerID != nil {
		id := *u.ManagerID
		c.ManagerID = &id
	}
	c.LeaveBalances = cloneBalances(u.LeaveBalances)
	return &c
}

func cloneBalances(m map[string]int) map[string]int {
	out := make(map[string]int, len(m))
	for k, v := range m {
		out[k] = v
	}
	return out
}

func (s *Users) GetByID(ctx context.Context, id primitive.ObjectID) (*models.User, error) {
	s.d.mu.Lock()
	defer s.d.mu.Unlock()
	if err := s.d.injected("users.get"); err != nil {
		return nil, err
	}
	u, ok := s.d.users[id]
	if !ok {
		return nil, store.ErrNotFound
	}
	return cloneUser(u), nil
}

func (s *Users) GetByEmail(ctx context.Context, email string) (*models.User, error) {
	s.d.mu.Lock()
	defer s.d.mu.Unlock()
	if err := s.d.injected("users.get"); err != nil {
		return nil, err
	}
	email = userstore.NormalizeEmail(email)
	for _, u := range s.d.users {
		if u.Email == email {
			return cloneUser(u), nil
		}
	}
	return nil, store.ErrNotFound
}

func (s *Users) Create(ctx context.Context, u models.User) (models.User, error) {
	u, err := userstore.Prepare(u, time.Now().UTC())
	if err != nil {
		return models.User{}, err
	}
	s.d.mu.Lock()
	defer s.d.mu.Unlock()
	if err := s.d.injected("users.create"); err != nil {
		return models.User{}, err
	}
	for _, existing := range s.d.users {
		if existing.Email == u.Email {
			return models.User{}, store.ErrDuplicate
		}
	}
	if _, taken := s.d.users[u.ID]; taken {
		return models.User{}, store.ErrDuplicate
	}
	s.d.users[u.ID] = cloneUser(&u)
	id := u.ID
	record(ctx, func() { delete(s.d.users, id) })
	return u, nil
}

func (s *Users) SetRole(ctx context.Context, id primitive.ObjectID, role string) error {
	if !models.IsValidRole(role) {
		return userstore.ErrBadRole
	}
	s.d.mu.Lock()
	defer s.d.mu.Unlock()
	u, ok := s.d.users[id]
	if !ok {
		return store.ErrNotFound
	}
	prev := u.Role
	u.Role = role
	u.UpdatedAt = time.Now().UTC()
	record(ctx, func() { u.Role = prev })
	return nil
}

func (s *Users) SetActive(ctx context.Context, id primitive.ObjectID, active bool) error {
	s.d.mu.Lock()
	defer s.d.mu.Unlock()
	u, ok := s.d.users[id]
	if !ok {
		return store.ErrNotFound
	}
	prev := u.IsActive
	u.IsActive = active
	u.UpdatedAt = time.Now().UTC()
	record(ctx, func() { u.IsActive = prev })
	return nil
}

// UpdatePassword replaces the stored password hash.
func (s *Users) UpdatePassword(ctx context.Context, id primitive.ObjectID, hash string) error {
	s.d.mu.Lock()
	defer s.d.mu.Unlock()
	u, ok := s.d.users[id]
	if !ok {
		return store.ErrNotFound
	}
	prev := u.PasswordHash
	u.PasswordHash = hash
	u.UpdatedAt = time.Now().UTC()
	record(ctx, func() { u.PasswordHash = prev })
	return nil
}

func (s *Users) ListActive(ctx context.Context) ([]models.User, error) {
	s.d.mu.Lock()
	defer s.d.mu.Unlock()
	if err := s.d.injected("users.list"); err != nil {
		return nil, err
	}
	out := make([]models.User, 0, len(s.d.users))
	for _, u := range s.d.users {
		if u.IsActive {
			out = append(out, *cloneUser(u))
		}
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].FullNameCI != out[j].FullNameCI {
			return out[i].FullNameCI < out[j].FullNameCI
		}
		return out[i].ID.Hex() < out[j].ID.Hex()
	})
	return out, nil
}

func (s *Users) DecrementBalance(ctx context.Context, id primitive.ObjectID, leaveType string, days int) error {
	if _, err := userstore.BalanceKey(leaveType); err != nil {
		return err
	}
	s.d.mu.Lock()
	defer s.d.mu.Unlock()
	if err := s.d.injected("users.decrement"); err != nil {
		return err
	}
	u, ok := s.d.users[id]
	if !ok {
		return store.ErrNotFound
	}
	cur, present := u.LeaveBalances[leaveType]
	if !present || cur < days {
		return store.ErrInsufficientBalance
	}
	u.LeaveBalances[leaveType] = cur - days
	u.UpdatedAt = time.Now().UTC()
	record(ctx, func() { u.LeaveBalances[leaveType] += days })
	return nil
}

func (s *Users) IncrementBalance(ctx context.Context, id primitive.ObjectID, leaveType string, days int) error {
	if _, err := userstore.BalanceKey(leaveType); err != nil {
		return err
	}
	s.d.mu.Lock()
	defer s.d.mu.Unlock()
	if err := s.d.injected("users.increment"); err != nil {
		return err
	}
	u, ok := s.d.users[id]
	if !ok {
		return store.ErrNotFound
	}
	if u.LeaveBalances == nil {
		u.LeaveBalances = map[string]int{}
	}
	u.LeaveBalances[leaveType] += days
	u.UpdatedAt = time.Now().UTC()
	record(ctx, func() { u.LeaveBalances[leaveType] -= days })
	return nil
}

func (s *Users) ReplaceBalances(ctx context.Context, sets []store.BalanceSet) error {
	s.d.mu.Lock()
	defer s.d.mu.Unlock()
	if err := s.d.injected("users.replace"); err != nil {
		return err
	}
	for _, bs := range sets {
		if _, ok := s.d.users[bs.UserID]; !ok {
			return store.ErrNotFound
		}
	}
	now := time.Now().UTC()
	for _, bs := range sets {
		u := s.d.users[bs.UserID]
		prev := u.LeaveBalances
		u.LeaveBalances = cloneBalances(bs.Balances)
		u.UpdatedAt = now
		record(ctx, func() { u.LeaveBalances = prev })
	}
	return nil
}

/*─────────────────────────────────────────────────────────────────────────────*
| Leave types                                                                  |
*─────────────────────────────────────────────────────────────────────────────*/

type LeaveTypes struct{ d *DB }

func (s *LeaveTypes) Get(ctx context.Context, name string) (*models.LeaveType, error) {
	s.d.mu.Lock()
	defer s.d.mu.Unlock()
	if err := s.d.injected("leavetypes.get"); err != nil {
		return nil, err
	}
	lt, ok := s.d.types[name]
	if !ok {
		return nil, store.ErrNotFound
	}
	c := *lt
	return &c, nil
}

func (s *LeaveTypes) List(ctx context.Context, activeOnly bool) ([]models.LeaveType, error) {
	s.d.mu.Lock()
	defer s.d.mu.Unlock()
	if err := s.d.injected("leavetypes.list"); err != nil {
		return nil, err
	}
	out := []models.LeaveType{}
	for _, lt := range s.d.types {
		if activeOnly && !lt.IsActive {
			continue
		}
		out = append(out, *lt)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Name < out[j].Name })
	return out, nil
}

func (s *LeaveTypes) Count(ctx context.Context) (int64, error) {
	s.d.mu.Lock()
	defer s.d.mu.Unlock()
	return int64(len(s.d.types)), nil
}

func (s *LeaveTypes) Upsert(ctx context.Context, lt models.LeaveType) (models.LeaveType, error) {
	s.d.mu.Lock()
	defer s.d.mu.Unlock()
	if err := s.d.injected("leavetypes.upsert"); err != nil {
		return models.LeaveType{}, err
	}
	now := time.Now().UTC()
	prev, existed := s.d.types[lt.Name]
	if existed {
		lt.ID = prev.ID
		lt.CreatedAt = prev.CreatedAt
	} else {
		lt.ID = primitive.NewObjectID()
		lt.CreatedAt = now
	}
	lt.UpdatedAt = now
	c := lt
	s.d.types[lt.Name] = &c
	name := lt.Name
	record(ctx, func() {
		if existed {
			s.d.types[name] = prev
		} else {
			delete(s.d.types, name)
		}
	})
	return lt, nil
}

func (s *LeaveTypes) SetActive(ctx context.Context, name string, active bool) error {
	s.d.mu.Lock()
	defer s.d.mu.Unlock()
	lt, ok := s.d.types[name]
	if !ok {
		return store.ErrNotFound
	}
	prev := lt.IsActive
	lt.IsActive = active
	lt.UpdatedAt = time.Now().UTC()
	record(ctx, func() { lt.IsActive = prev })
	return nil
}

func (s *LeaveTypes) InsertMany(ctx context.Context, types []models.LeaveType) error {
	s.d.mu.Lock()
	defer s.d.mu.Unlock()
	now := time.Now().UTC()
	for _, lt := range types {
		if _, exists := s.d.types[lt.Name]; exists {
			continue
		}
		c := lt
		c.ID = primitive.NewObjectID()
		c.CreatedAt, c.UpdatedAt = now, now
		s.d.types[c.Name] = &c
		name := c.Name
		record(ctx, func() { delete(s.d.types, name) })
	}
	return nil
}

/*─────────────────────────────────────────────────────────────────────────────*
| Leave requests                                                               |
*─────────────────────────────────────────────────────────────────────────────*/

type Requests struct{ d *DB }

func cloneRequest(r *models.LeaveRequest) *models.LeaveRequest {
	c := *r
	if r.ManagerID != nil {
		id := *r.ManagerID
		c.ManagerID = &id
	}
	c.Attachments = append([]models.Attachment(nil), r.Attachments...)
	for _, tp := range []**time.Time{&c.ApprovedAt, &c.RejectedAt, &c.CancelledAt} {
		if *tp != nil {
			t := **tp
			*tp = &t
		}
	}
	if r.ManagerApproval != nil {
		ma := *r.ManagerApproval
		c.ManagerApproval = &ma
	}
	if r.HRApproval != nil {
		ha := *r.HRApproval
		c.HRApproval = &ha
	}
	return &c
}

func (s *Requests) Create(ctx context.Context, r models.LeaveRequest) (models.LeaveRequest, error) {
	s.d.mu.Lock()
	defer s.d.mu.Unlock()
	if err := s.d.injected("requests.create"); err != nil {
		return models.LeaveRequest{}, err
	}
	if r.ID.IsZero() {
		r.ID = primitive.NewObjectID()
	}
	if r.CreatedAt.IsZero() {
		r.CreatedAt = time.Now().UTC()
	}
	r.UpdatedAt = r.CreatedAt
	s.d.requests[r.ID] = cloneRequest(&r)
	id := r.ID
	record(ctx, func() { delete(s.d.requests, id) })
	return r, nil
}

func (s *Requests) GetByID(ctx context.Context, id primitive.ObjectID) (*models.LeaveRequest, error) {
	s.d.mu.Lock()
	defer s.d.mu.Unlock()
	if err := s.d.injected("requests.get"); err != nil {
		return nil, err
	}
	r, ok := s.d.requests[id]
	if !ok {
		return nil, store.ErrNotFound
	}
	return cloneRequest(r), nil
}

func (s *Requests) Find(ctx context.Context, f store.RequestFilter) ([]models.LeaveRequest, error) {
	s.d.mu.Lock()
	defer s.d.mu.Unlock()
	if err := s.d.injected("requests.find"); err != nil {
		return nil, err
	}
	out := []models.LeaveRequest{}
	for _, r := range s.d.requests {
		if f.Matches(r) {
			out = append(out, *cloneRequest(r))
		}
	}
	sort.Slice(out, func(i, j int) bool {
		if !out[i].CreatedAt.Equal(out[j].CreatedAt) {
			return out[i].CreatedAt.After(out[j].CreatedAt)
		}
		return out[i].ID.Hex() > out[j].ID.Hex()
	})
	if f.Limit > 0 && int64(len(out)) > f.Limit {
		out = out[:f.Limit]
	}
	return out, nil
}

func (s *Requests) UpdateIfStatus(ctx context.Context, id primitive.ObjectID, expected models.LeaveStatus, upd store.RequestUpdate) (*models.LeaveRequest, error) {
	s.d.mu.Lock()
	defer s.d.mu.Unlock()
	if err := s.d.injected("requests.update"); err != nil {
		return nil, err
	}
	r, ok := s.d.requests[id]
	if !ok {
		return nil, store.ErrNotFound
	}
	if r.Status != expected {
		return nil, store.ErrConflict
	}
	if upd.UpdatedAt.IsZero() {
		upd.UpdatedAt = time.Now().UTC()
	}
	prev := cloneRequest(r)
	upd.Apply(r)
	record(ctx, func() { s.d.requests[id] = prev })
	return cloneRequest(r), nil
}
