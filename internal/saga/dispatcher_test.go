package saga

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"

	"github.com/OscarCaraballo97/inferno-payment/internal/domain"
	"github.com/OscarCaraballo97/inferno-payment/internal/queue"
)

func TestNewDispatcher_RejectsUnknownStage(t *testing.T) {
	_, err := NewDispatcher(domain.Step("refund"), 0, nil, nil, nil, testLogger())

	require.Error(t, err)
	assert.Contains(t, err.Error(), "unknown stage")
}

func TestDispatcher_Stage(t *testing.T) {
	d, err := NewDispatcher(domain.StepCheckBalance, 0, nil, nil, nil, testLogger())

	require.NoError(t, err)
	assert.Equal(t, domain.StepCheckBalance, d.Stage())
}

func TestDispatcher_StartPayment_DecodesPayload(t *testing.T) {
	repo := new(mockRepository)
	enq := new(mockEnqueuer)
	repo.On("Create", mock.Anything, mock.MatchedBy(func(s *domain.PaymentSaga) bool {
		return s.TraceID == "trace-1" && s.CardID == "card-1"
	})).Return(nil)
	repo.On("Advance", mock.Anything, "trace-1", domain.StepStartPayment, mock.Anything).Return(nil)
	enq.On("Enqueue", mock.Anything, domain.StepCheckBalance, mock.Anything).Return(nil)

	d, err := NewDispatcher(domain.StepStartPayment, 0, NewInitiateHandler(repo, enq, testLogger()), nil, nil, testLogger())
	require.NoError(t, err)

	msg, err := queue.NewMessageWithPayload(domain.StepStartPayment, "trace-1", startReq())
	require.NoError(t, err)

	require.NoError(t, d.Handle(context.Background(), msg))
	repo.AssertExpectations(t)
}

func TestDispatcher_StartPayment_RejectsMissingPayload(t *testing.T) {
	d, err := NewDispatcher(domain.StepStartPayment, 0, nil, nil, nil, testLogger())
	require.NoError(t, err)

	err = d.Handle(context.Background(), queue.NewMessage(domain.StepStartPayment, "trace-1"))

	require.Error(t, err)
	assert.Contains(t, err.Error(), "payload")
}

func TestDispatcher_DelayRespectsContext(t *testing.T) {
	d, err := NewDispatcher(domain.StepCheckBalance, time.Minute, nil, nil, nil, testLogger())
	require.NoError(t, err)

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	err = d.Handle(ctx, queue.NewMessage(domain.StepCheckBalance, "trace-1"))

	assert.ErrorIs(t, err, context.Canceled)
}

func TestDispatcher_RoutesToBoundStageOnly(t *testing.T) {
	repo := new(mockRepository)
	bank := new(mockSettler)
	repo.On("Get", mock.Anything, "trace-1").Return(inProgressSaga(), nil)
	repo.On("Advance", mock.Anything, "trace-1", domain.StepTransaction, mock.Anything).Return(nil)
	bank.On("Settle", mock.Anything, "user-1", mock.Anything).Return(nil)

	d, err := NewDispatcher(domain.StepTransaction, 0, nil, nil, NewSettleHandler(repo, bank, testLogger()), testLogger())
	require.NoError(t, err)

	// The message's own stage field is advisory; routing follows the
	// dispatcher's binding.
	msg := queue.NewMessage(domain.StepCheckBalance, "trace-1")
	require.NoError(t, d.Handle(context.Background(), msg))

	bank.AssertExpectations(t)
}
