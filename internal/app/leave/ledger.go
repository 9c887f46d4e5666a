package leave

import (
	"context"
	"errors"
	"sort"

	"github.com/dalemusser/leavedesk/internal/app/store"
	"github.com/dalemusser/leavedesk/internal/app/system/authz"
	"github.com/dalemusser/leavedesk/internal/domain/models"
	"go.mongodb.org/mongo-driver/bson/primitive"
)

// Ledger reads and moves per-user leave balances. Reserve and Release are
// only called by the workflow; BulkReset only by HR.
type Ledger struct {
	users UserStore
	tx    TxRunner
}

// Available returns the user's remaining days of leaveType. A type the user
// has no entry for counts as 0.
func (l *Ledger) Available(ctx context.Context, userID primitive.ObjectID, leaveType string) (int, error) {
	u, err := l.users.GetByID(ctx, userID)
	if err != nil {
		return 0, fromStore(err)
	}
	return u.Balance(leaveType), nil
}

// Reserve deducts days from the balance. The availability check and the
// decrement are one store operation, so two concurrent reservations cannot
// both pass the check.
func (l *Ledger) Reserve(ctx context.Context, userID primitive.ObjectID, leaveType string, days int) error {
	if days <= 0 {
		return invalid(ErrValidation, "days", "days must be positive")
	}
	err := l.users.DecrementBalance(ctx, userID, leaveType, days)
	if errors.Is(err, store.ErrInsufficientBalance) {
		avail, aerr := l.Available(ctx, userID, leaveType)
		if aerr != nil {
			avail = 0
		}
		return &InsufficientBalanceError{LeaveType: leaveType, Available: avail, Requested: days}
	}
	return fromStore(err)
}

// Release credits days back. It is the exact inverse of Reserve.
func (l *Ledger) Release(ctx context.Context, userID primitive.ObjectID, leaveType string, days int) error {
	if days <= 0 {
		return invalid(ErrValidation, "days", "days must be positive")
	}
	return fromStore(l.users.IncrementBalance(ctx, userID, leaveType, days))
}

// BulkReset overwrites the balances of every active user with the default
// allocation of each active type in types. Inactive entries of types are
// ignored. The write is all-or-nothing where the backend supports
// transactions. It returns the number of users reset.
//
// This destroys the current balances; it cannot be undone.
func (l *Ledger) BulkReset(ctx context.Context, types []models.LeaveType) (int, error) {
	alloc := map[string]int{}
	for _, t := range types {
		if t.IsActive {
			alloc[t.Name] = t.DefaultDays
		}
	}

	var n int
	err := l.tx.Run(ctx, func(ctx context.Context) error {
		users, err := l.users.ListActive(ctx)
		if err != nil {
			return err
		}
		sets := make([]store.BalanceSet, 0, len(users))
		for _, u := range users {
			b := make(map[string]int, len(alloc))
			for k, v := range alloc {
				b[k] = v
			}
			sets = append(sets, store.BalanceSet{UserID: u.ID, Balances: b})
		}
		if err := l.users.ReplaceBalances(ctx, sets); err != nil {
			return err
		}
		n = len(sets)
		return nil
	})
	if err != nil {
		return 0, fromStore(err)
	}
	return n, nil
}

// Balances returns the user's balance map.
func (l *Ledger) Balances(ctx context.Context, userID primitive.ObjectID) (map[string]int, error) {
	u, err := l.users.GetByID(ctx, userID)
	if err != nil {
		return nil, fromStore(err)
	}
	out := make(map[string]int, len(u.LeaveBalances))
	for k, v := range u.LeaveBalances {
		out[k] = v
	}
	return out, nil
}

// ResetBalances runs BulkReset over the active registry for an HR actor.
func (s *Service) ResetBalances(ctx context.Context, actor authz.Actor) (int, error) {
	if !actor.IsHR() {
		return 0, ErrForbidden
	}
	types, err := s.Registry.ListActive(ctx)
	if err != nil {
		return 0, err
	}
	n, err := s.Ledger.BulkReset(ctx, types)
	if err != nil {
		return 0, err
	}
	names := make([]string, 0, len(types))
	for _, t := range types {
		names = append(names, t.Name)
	}
	sort.Strings(names)
	s.listener.BalancesReset(ctx, actor, n, names)
	return n, nil
}
