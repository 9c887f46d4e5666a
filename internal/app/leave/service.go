// Package leave implements leave requests: the leave type registry, the
// balance ledger, request validation and the approval state machine.
//
// Status moves only forward:
//
//	pending ──► manager_approved ──► approved
//	   │               │                 │
//	   ├──► rejected ◄─┤                 │
//	   └──► cancelled ◄┴─────────────────┘
//
// A request without a resolved manager skips the manager stage and goes from
// pending straight to an HR decision. Balance is only deducted on the final
// approval and only credited back when an approved request is cancelled.
package leave

import (
	"context"
	"time"

	"github.com/dalemusser/leavedesk/internal/app/system/authz"
	"github.com/dalemusser/leavedesk/internal/app/system/workdays"
	"go.uber.org/zap"
)

// Config tunes a Service.
type Config struct {
	// Location decides which calendar day "today" is for the past-date rule.
	// Nil means UTC.
	Location *time.Location
	Gate     authz.Gate
	// Now overrides the clock in tests.
	Now func() time.Time
}

// Service is the entry point for every leave operation.
type Service struct {
	Registry *Registry
	Ledger   *Ledger

	users    UserStore
	requests RequestStore
	tx       TxRunner
	gate     authz.Gate
	loc      *time.Location
	now      func() time.Time
	listener Listener
	log      *zap.Logger
}

// New wires a Service over b.
func New(b Backend, cfg Config, log *zap.Logger) *Service {
	if log == nil {
		log = zap.NewNop()
	}
	if cfg.Location == nil {
		cfg.Location = time.UTC
	}
	if cfg.Now == nil {
		cfg.Now = time.Now
	}
	tx := b.Tx
	if tx == nil {
		tx = directTx{}
	}
	return &Service{
		Registry: &Registry{types: b.LeaveTypes},
		Ledger:   &Ledger{users: b.Users, tx: tx},
		users:    b.Users,
		requests: b.Requests,
		tx:       tx,
		gate:     cfg.Gate,
		loc:      cfg.Location,
		now:      cfg.Now,
		listener: NopListener{},
		log:      log,
	}
}

// SetListener replaces the change listener. Pass a Listeners value to fan out.
func (s *Service) SetListener(l Listener) {
	if l == nil {
		l = NopListener{}
	}
	s.listener = l
}

// Gate returns the authorization rules the service applies.
func (s *Service) Gate() authz.Gate { return s.gate }

func (s *Service) clock() time.Time { return s.now().UTC() }

func (s *Service) today() time.Time { return workdays.Today(s.now(), s.loc) }

// directTx runs fn without a transaction.
type directTx struct{}

func (directTx) Run(ctx context.Context, fn func(ctx context.Context) error) error { return fn(ctx) }
