package leave_test

import (
	"errors"
	"strings"
	"sync"
	"testing"

	"github.com/dalemusser/leavedesk/internal/app/leave"
	"github.com/dalemusser/leavedesk/internal/app/store"
	"github.com/dalemusser/leavedesk/internal/app/system/limits"
	"github.com/dalemusser/leavedesk/internal/domain/models"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.mongodb.org/mongo-driver/bson/primitive"
)

func TestParseDecision(t *testing.T) {
	d, err := leave.ParseDecision(" Approve ")
	require.NoError(t, err)
	assert.Equal(t, leave.Approve, d)

	d, err = leave.ParseDecision("REJECT")
	require.NoError(t, err)
	assert.Equal(t, leave.Reject, d)

	_, err = leave.ParseDecision("maybe")
	require.ErrorIs(t, err, leave.ErrValidation)
}

func TestWorkflow_TwoStageApprovalDeductsOnce(t *testing.T) {
	e := newEnv(t)
	r := e.submit(t, e.employee, "2025-03-10", "2025-03-14")
	require.Equal(t, 5, r.Days)

	mgr, err := e.svc.ManagerDecide(e.ctx, actor(e.manager), r.ID, leave.Approve, "enjoy")
	require.NoError(t, err)
	assert.Equal(t, models.StatusManagerApproved, mgr.Status)
	require.NotNil(t, mgr.ManagerApproval)
	assert.Equal(t, e.manager.ID, mgr.ManagerApproval.ManagerID)
	assert.Equal(t, models.DecisionApprove, mgr.ManagerApproval.Decision)
	assert.Equal(t, "enjoy", mgr.ManagerApproval.Comments)
	assert.Equal(t, 5, e.balance(t, e.employee, "vacation"), "manager approval must not deduct")

	final, err := e.svc.HRConfirm(e.ctx, actor(e.hr), r.ID, leave.Approve, "")
	require.NoError(t, err)
	assert.Equal(t, models.StatusApproved, final.Status)
	assert.Equal(t, e.hr.FullName, final.ApprovedBy)
	require.NotNil(t, final.ApprovedAt)
	require.NotNil(t, final.HRApproval)
	assert.Equal(t, e.hr.ID, final.HRApproval.HRID)
	assert.Equal(t, 0, e.balance(t, e.employee, "vacation"))

	_, err = e.svc.CreateRequest(e.ctx, e.employee, leave.Draft{
		LeaveType: "vacation", StartDate: date("2025-03-24"), EndDate: date("2025-03-24"), Reason: "one more",
	})
	require.ErrorIs(t, err, leave.ErrInsufficientBalance)

	assert.Equal(t, []leave.Action{
		leave.ActionSubmitted, leave.ActionManagerApproved, leave.ActionHRApproved,
	}, e.rec.seen())
}

func TestWorkflow_SingleStageWithoutManager(t *testing.T) {
	e := newEnv(t)
	r := e.submit(t, e.solo, "2025-03-10", "2025-03-11")
	assert.False(t, r.HasManager())

	out, err := e.svc.HRConfirm(e.ctx, actor(e.hr), r.ID, leave.Approve, "")
	require.NoError(t, err)
	assert.Equal(t, models.StatusApproved, out.Status)
	assert.Nil(t, out.ManagerApproval)
	assert.Equal(t, 8, e.balance(t, e.solo, "vacation"))
}

func TestWorkflow_HRCannotSkipAssignedManager(t *testing.T) {
	e := newEnv(t)
	r := e.submit(t, e.employee, "2025-03-10", "2025-03-10")

	_, err := e.svc.HRConfirm(e.ctx, actor(e.hr), r.ID, leave.Approve, "")
	var it *leave.InvalidTransitionError
	require.ErrorAs(t, err, &it)
	assert.Equal(t, models.StatusPending, it.From)
	assert.Equal(t, 5, e.balance(t, e.employee, "vacation"))
	assert.Equal(t, models.StatusPending, e.stored(t, r.ID).Status)
}

func TestWorkflow_HRConfirmTwiceDeductsOnce(t *testing.T) {
	e := newEnv(t)
	r := e.submit(t, e.employee, "2025-03-10", "2025-03-11")
	e.approveFully(t, r)
	require.Equal(t, 3, e.balance(t, e.employee, "vacation"))

	_, err := e.svc.HRConfirm(e.ctx, actor(e.hr2), r.ID, leave.Approve, "")
	require.ErrorIs(t, err, leave.ErrInvalidTransition)
	assert.Equal(t, 3, e.balance(t, e.employee, "vacation"))
}

func TestWorkflow_ConcurrentHRApprovals(t *testing.T) {
	e := newEnv(t)
	r := e.submit(t, e.employee, "2025-03-10", "2025-03-12")
	_, err := e.svc.ManagerDecide(e.ctx, actor(e.manager), r.ID, leave.Approve, "")
	require.NoError(t, err)

	const n = 8
	var (
		wg   sync.WaitGroup
		mu   sync.Mutex
		ok   int
		errs []error
	)
	for i := 0; i < n; i++ {
		wg.Add(1)
		go func(hr models.User) {
			defer wg.Done()
			_, err := e.svc.HRConfirm(e.ctx, actor(hr), r.ID, leave.Approve, "")
			mu.Lock()
			defer mu.Unlock()
			if err == nil {
				ok++
				return
			}
			errs = append(errs, err)
		}([]models.User{e.hr, e.hr2}[i%2])
	}
	wg.Wait()

	assert.Equal(t, 1, ok)
	for _, err := range errs {
		assert.True(t, errors.Is(err, leave.ErrInvalidTransition) || errors.Is(err, leave.ErrInsufficientBalance), "unexpected error: %v", err)
	}
	assert.Equal(t, 2, e.balance(t, e.employee, "vacation"))
	assert.Equal(t, models.StatusApproved, e.stored(t, r.ID).Status)
}

func TestWorkflow_DecisionCaseAndSpacing(t *testing.T) {
	e := newEnv(t)

	solo := e.submit(t, e.solo, "2025-03-10", "2025-03-10")
	out, err := e.svc.HRConfirm(e.ctx, actor(e.hr), solo.ID, leave.Decision(" REJECT "), "no cover")
	require.NoError(t, err)
	assert.Equal(t, models.StatusRejected, out.Status)
	assert.Equal(t, "no cover", out.RejectionReason)
	assert.Equal(t, 10, e.balance(t, e.solo, "vacation"))

	a := e.submit(t, e.employee, "2025-03-10", "2025-03-10")
	out, err = e.svc.ManagerDecide(e.ctx, actor(e.manager), a.ID, leave.Decision("Approve"), "fine")
	require.NoError(t, err)
	assert.Equal(t, models.StatusManagerApproved, out.Status)
	assert.Empty(t, out.RejectionReason)
	require.NotNil(t, out.ManagerApproval)
	assert.Equal(t, models.DecisionApprove, out.ManagerApproval.Decision)

	out, err = e.svc.HRConfirm(e.ctx, actor(e.hr), a.ID, leave.Decision("\tAPPROVE"), "")
	require.NoError(t, err)
	assert.Equal(t, models.StatusApproved, out.Status)
	assert.Equal(t, 4, e.balance(t, e.employee, "vacation"))

	b := e.submit(t, e.employee, "2025-03-11", "2025-03-11")
	out, err = e.svc.ManagerDecide(e.ctx, actor(e.manager), b.ID, leave.Decision(" rEjEcT"), "clash")
	require.NoError(t, err)
	assert.Equal(t, models.StatusRejected, out.Status)
	require.NotNil(t, out.ManagerApproval)
	assert.Equal(t, models.DecisionReject, out.ManagerApproval.Decision)

	c := e.submit(t, e.employee, "2025-03-12", "2025-03-12")
	_, err = e.svc.ManagerDecide(e.ctx, actor(e.manager), c.ID, leave.Decision("yes"), "")
	require.ErrorIs(t, err, leave.ErrValidation)
	assert.Equal(t, models.StatusPending, e.stored(t, c.ID).Status)
	assert.Equal(t, 4, e.balance(t, e.employee, "vacation"))
}

func TestWorkflow_FinalApprovalRechecksBalance(t *testing.T) {
	e := newEnv(t)
	// Both fit the balance of 5 on their own but not together.
	a := e.submit(t, e.employee, "2025-03-10", "2025-03-12")
	b := e.submit(t, e.employee, "2025-03-17", "2025-03-19")
	for _, r := range []models.LeaveRequest{a, b} {
		_, err := e.svc.ManagerDecide(e.ctx, actor(e.manager), r.ID, leave.Approve, "")
		require.NoError(t, err)
	}

	_, err := e.svc.HRConfirm(e.ctx, actor(e.hr), a.ID, leave.Approve, "")
	require.NoError(t, err)

	_, err = e.svc.HRConfirm(e.ctx, actor(e.hr), b.ID, leave.Approve, "")
	var ib *leave.InsufficientBalanceError
	require.ErrorAs(t, err, &ib)
	assert.Equal(t, 2, ib.Available)
	assert.Equal(t, 3, ib.Requested)

	assert.Equal(t, models.StatusManagerApproved, e.stored(t, b.ID).Status)
	assert.Equal(t, 2, e.balance(t, e.employee, "vacation"))
}

func TestWorkflow_StoreFailureDuringApprovalRollsBack(t *testing.T) {
	e := newEnv(t)
	r := e.submit(t, e.employee, "2025-03-10", "2025-03-11")
	_, err := e.svc.ManagerDecide(e.ctx, actor(e.manager), r.ID, leave.Approve, "")
	require.NoError(t, err)

	e.db.FailNext("requests.update", store.Unavailable(errors.New("connection reset")))
	_, err = e.svc.HRConfirm(e.ctx, actor(e.hr), r.ID, leave.Approve, "")
	require.ErrorIs(t, err, leave.ErrStoreUnavailable)

	assert.Equal(t, 5, e.balance(t, e.employee, "vacation"))
	assert.Equal(t, models.StatusManagerApproved, e.stored(t, r.ID).Status)

	// the retry goes through
	_, err = e.svc.HRConfirm(e.ctx, actor(e.hr), r.ID, leave.Approve, "")
	require.NoError(t, err)
	assert.Equal(t, 3, e.balance(t, e.employee, "vacation"))
}

func TestWorkflow_ManagerRejectNeedsReason(t *testing.T) {
	e := newEnv(t)
	r := e.submit(t, e.employee, "2025-03-10", "2025-03-10")

	_, err := e.svc.ManagerDecide(e.ctx, actor(e.manager), r.ID, leave.Reject, "   ")
	require.ErrorIs(t, err, leave.ErrMissingField)
	assert.Equal(t, models.StatusPending, e.stored(t, r.ID).Status)

	_, err = e.svc.ManagerDecide(e.ctx, actor(e.manager), r.ID, leave.Reject, strings.Repeat("x", limits.MaxCommentsLength+1))
	require.ErrorIs(t, err, leave.ErrValidation)
	assert.Equal(t, models.StatusPending, e.stored(t, r.ID).Status)

	out, err := e.svc.ManagerDecide(e.ctx, actor(e.manager), r.ID, leave.Reject, "release week")
	require.NoError(t, err)
	assert.Equal(t, models.StatusRejected, out.Status)
	assert.Equal(t, "release week", out.RejectionReason)
	assert.Equal(t, e.manager.FullName, out.RejectedBy)
	require.NotNil(t, out.ManagerApproval)
	assert.Equal(t, models.DecisionReject, out.ManagerApproval.Decision)
	assert.Equal(t, 5, e.balance(t, e.employee, "vacation"))

	_, err = e.svc.ManagerDecide(e.ctx, actor(e.manager), r.ID, leave.Approve, "")
	require.ErrorIs(t, err, leave.ErrInvalidTransition)
}

func TestWorkflow_HRReject(t *testing.T) {
	e := newEnv(t)
	r := e.submit(t, e.employee, "2025-03-10", "2025-03-10")
	_, err := e.svc.ManagerDecide(e.ctx, actor(e.manager), r.ID, leave.Approve, "")
	require.NoError(t, err)

	_, err = e.svc.HRConfirm(e.ctx, actor(e.hr), r.ID, leave.Reject, "")
	require.ErrorIs(t, err, leave.ErrMissingField)

	out, err := e.svc.HRConfirm(e.ctx, actor(e.hr), r.ID, leave.Reject, "coverage")
	require.NoError(t, err)
	assert.Equal(t, models.StatusRejected, out.Status)
	assert.Equal(t, "coverage", out.RejectionReason)
	assert.Equal(t, 5, e.balance(t, e.employee, "vacation"))
}

func TestWorkflow_DecisionRights(t *testing.T) {
	e := newEnv(t)
	r := e.submit(t, e.employee, "2025-03-10", "2025-03-10")

	tests := []struct {
		name string
		who  models.User
		hr   bool
	}{
		{"employee cannot act as manager", e.peer, false},
		{"hr cannot act as manager", e.hr, false},
		{"submitter cannot act as hr", e.employee, true},
		{"manager cannot act as hr", e.manager, true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			var err error
			if tt.hr {
				_, err = e.svc.HRConfirm(e.ctx, actor(tt.who), r.ID, leave.Approve, "")
			} else {
				_, err = e.svc.ManagerDecide(e.ctx, actor(tt.who), r.ID, leave.Approve, "")
			}
			require.ErrorIs(t, err, leave.ErrForbidden)
		})
	}

	// Nobody decides on their own request.
	own := e.submit(t, e.hr, "2025-03-10", "2025-03-10")
	_, err := e.svc.HRConfirm(e.ctx, actor(e.hr), own.ID, leave.Approve, "")
	require.ErrorIs(t, err, leave.ErrForbidden)
	_, err = e.svc.HRConfirm(e.ctx, actor(e.hr2), own.ID, leave.Approve, "")
	require.NoError(t, err)
}

func TestWorkflow_UnknownRequest(t *testing.T) {
	e := newEnv(t)
	_, err := e.svc.ManagerDecide(e.ctx, actor(e.manager), primitive.NewObjectID(), leave.Approve, "")
	require.ErrorIs(t, err, leave.ErrNotFound)
}

func TestWorkflow_InactiveSubmitter(t *testing.T) {
	e := newEnv(t)
	r := e.submit(t, e.employee, "2025-03-10", "2025-03-10")
	require.NoError(t, e.db.Users().SetActive(e.ctx, e.employee.ID, false))

	_, err := e.svc.ManagerDecide(e.ctx, actor(e.manager), r.ID, leave.Approve, "")
	require.ErrorIs(t, err, leave.ErrUserInactive)
	assert.Equal(t, models.StatusPending, e.stored(t, r.ID).Status)
}

func TestCancel_ApprovedRestoresBalance(t *testing.T) {
	e := newEnv(t)
	r := e.submit(t, e.employee, "2025-03-10", "2025-03-12")
	e.approveFully(t, r)
	require.Equal(t, 2, e.balance(t, e.employee, "vacation"))

	out, err := e.svc.Cancel(e.ctx, actor(e.employee), r.ID, "")
	require.NoError(t, err)
	assert.Equal(t, models.StatusCancelled, out.Status)
	assert.Equal(t, e.employee.FullName, out.CancelledBy)
	require.NotNil(t, out.CancelledAt)
	assert.Equal(t, 5, e.balance(t, e.employee, "vacation"))

	_, err = e.svc.Cancel(e.ctx, actor(e.employee), r.ID, "")
	require.ErrorIs(t, err, leave.ErrInvalidTransition)
	assert.Equal(t, 5, e.balance(t, e.employee, "vacation"))
}

func TestCancel_StoresReason(t *testing.T) {
	e := newEnv(t)
	r := e.submit(t, e.employee, "2025-03-10", "2025-03-10")

	_, err := e.svc.Cancel(e.ctx, actor(e.employee), r.ID, strings.Repeat("x", limits.MaxCommentsLength+1))
	require.ErrorIs(t, err, leave.ErrValidation)
	assert.Equal(t, models.StatusPending, e.stored(t, r.ID).Status)

	out, err := e.svc.Cancel(e.ctx, actor(e.employee), r.ID, "  plans changed ")
	require.NoError(t, err)
	assert.Equal(t, "plans changed", out.CancellationReason)
	assert.Equal(t, "plans changed", e.stored(t, r.ID).CancellationReason)
}

func TestCancel_RacesHRConfirm(t *testing.T) {
	e := newEnv(t)

	for i := 0; i < 20; i++ {
		before := e.balance(t, e.employee, "vacation")
		r := e.submit(t, e.employee, "2025-03-10", "2025-03-10")
		_, err := e.svc.ManagerDecide(e.ctx, actor(e.manager), r.ID, leave.Approve, "")
		require.NoError(t, err)

		var (
			wg        sync.WaitGroup
			start     = make(chan struct{})
			hrErr     error
			cancelErr error
		)
		wg.Add(2)
		go func() {
			defer wg.Done()
			<-start
			_, hrErr = e.svc.HRConfirm(e.ctx, actor(e.hr), r.ID, leave.Approve, "")
		}()
		go func() {
			defer wg.Done()
			<-start
			_, cancelErr = e.svc.Cancel(e.ctx, actor(e.employee), r.ID, "")
		}()
		close(start)
		wg.Wait()

		got := e.stored(t, r.ID)
		switch got.Status {
		case models.StatusApproved:
			// cancel lost on the status check
			require.NoError(t, hrErr)
			require.ErrorIs(t, cancelErr, leave.ErrInvalidTransition)
			assert.Equal(t, before-1, e.balance(t, e.employee, "vacation"))
			// give the day back for the next round
			_, err := e.svc.Cancel(e.ctx, actor(e.hr), r.ID, "")
			require.NoError(t, err)
		case models.StatusCancelled:
			// cancel won outright, or ran after the approval and released it
			require.NoError(t, cancelErr)
			if hrErr != nil {
				require.ErrorIs(t, hrErr, leave.ErrInvalidTransition)
			}
		default:
			t.Fatalf("round %d: unexpected status %s (hr=%v cancel=%v)", i, got.Status, hrErr, cancelErr)
		}
		assert.Equal(t, before, e.balance(t, e.employee, "vacation"), "round %d", i)
	}
}

func TestCancel_PendingAndManagerApproved(t *testing.T) {
	e := newEnv(t)
	a := e.submit(t, e.employee, "2025-03-10", "2025-03-10")
	b := e.submit(t, e.employee, "2025-03-11", "2025-03-11")
	_, err := e.svc.ManagerDecide(e.ctx, actor(e.manager), b.ID, leave.Approve, "")
	require.NoError(t, err)

	_, err = e.svc.Cancel(e.ctx, actor(e.employee), a.ID, "")
	require.NoError(t, err)
	_, err = e.svc.Cancel(e.ctx, actor(e.hr), b.ID, "")
	require.NoError(t, err)
	assert.Equal(t, 5, e.balance(t, e.employee, "vacation"))
}

func TestCancel_Rights(t *testing.T) {
	e := newEnv(t)
	r := e.submit(t, e.employee, "2025-03-10", "2025-03-10")

	_, err := e.svc.Cancel(e.ctx, actor(e.manager), r.ID, "")
	require.ErrorIs(t, err, leave.ErrForbidden)

	_, err = e.svc.Cancel(e.ctx, actor(e.peer), r.ID, "")
	require.ErrorIs(t, err, leave.ErrNotFound)

	assert.Equal(t, models.StatusPending, e.stored(t, r.ID).Status)
}

func TestCancel_RejectedIsFinal(t *testing.T) {
	e := newEnv(t)
	r := e.submit(t, e.employee, "2025-03-10", "2025-03-10")
	_, err := e.svc.ManagerDecide(e.ctx, actor(e.manager), r.ID, leave.Reject, "no")
	require.NoError(t, err)

	_, err = e.svc.Cancel(e.ctx, actor(e.employee), r.ID, "")
	var it *leave.InvalidTransitionError
	require.ErrorAs(t, err, &it)
	assert.Equal(t, models.StatusRejected, it.From)
}

func TestCancel_StoreFailureKeepsApproval(t *testing.T) {
	e := newEnv(t)
	r := e.submit(t, e.employee, "2025-03-10", "2025-03-10")
	e.approveFully(t, r)
	require.Equal(t, 4, e.balance(t, e.employee, "vacation"))

	e.db.FailNext("requests.update", store.Unavailable(errors.New("timeout")))
	_, err := e.svc.Cancel(e.ctx, actor(e.employee), r.ID, "")
	require.ErrorIs(t, err, leave.ErrStoreUnavailable)

	assert.Equal(t, 4, e.balance(t, e.employee, "vacation"))
	assert.Equal(t, models.StatusApproved, e.stored(t, r.ID).Status)
}
