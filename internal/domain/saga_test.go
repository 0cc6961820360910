package domain

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNewPaymentSaga(t *testing.T) {
	saga := NewPaymentSaga("trace-1", "user-1", "card-1", ServicePlan{Proveedor: "Netflix", PrecioMensual: 15.99})

	assert.Equal(t, "trace-1", saga.TraceID)
	assert.Equal(t, "user-1", saga.UserID)
	assert.Equal(t, "card-1", saga.CardID)
	assert.Equal(t, StatusInitial, saga.Status)
	assert.Equal(t, StepStartPayment, saga.Step)
	assert.Equal(t, ProgressCreated, saga.Progress)
	assert.Empty(t, saga.Error)
	assert.False(t, saga.UpdatedAt.IsZero())
}

func TestStatus_Terminal(t *testing.T) {
	assert.False(t, StatusInitial.Terminal())
	assert.False(t, StatusInProgress.Terminal())
	assert.True(t, StatusFinish.Terminal())
	assert.True(t, StatusFailed.Terminal())
}

func TestStep_Order(t *testing.T) {
	assert.Equal(t, 1, StepStartPayment.Order())
	assert.Equal(t, 2, StepCheckBalance.Order())
	assert.Equal(t, 3, StepTransaction.Order())
	assert.Equal(t, 0, Step("bogus").Order())
}

func TestIsValidStep(t *testing.T) {
	for _, s := range Steps() {
		assert.True(t, IsValidStep(string(s)))
	}
	assert.False(t, IsValidStep("refund"))
	assert.False(t, IsValidStep(""))
}

func TestPaymentSaga_CanAdvance(t *testing.T) {
	tests := []struct {
		name     string
		saga     PaymentSaga
		stage    Step
		progress int
		want     bool
	}{
		{
			name:     "forward move allowed",
			saga:     PaymentSaga{Status: StatusInProgress, Step: StepStartPayment, Progress: ProgressInitiated},
			stage:    StepCheckBalance,
			progress: ProgressChecking,
			want:     true,
		},
		{
			name:     "same stage same progress allowed",
			saga:     PaymentSaga{Status: StatusInProgress, Step: StepCheckBalance, Progress: ProgressChecking},
			stage:    StepCheckBalance,
			progress: ProgressChecking,
			want:     true,
		},
		{
			name:     "progress regression rejected",
			saga:     PaymentSaga{Status: StatusInProgress, Step: StepCheckBalance, Progress: ProgressFundsOK},
			stage:    StepCheckBalance,
			progress: ProgressChecking,
			want:     false,
		},
		{
			name:     "earlier stage rejected",
			saga:     PaymentSaga{Status: StatusInProgress, Step: StepTransaction, Progress: ProgressFundsOK},
			stage:    StepStartPayment,
			progress: ProgressDone,
			want:     false,
		},
		{
			name:     "finished saga immutable",
			saga:     PaymentSaga{Status: StatusFinish, Step: StepTransaction, Progress: ProgressDone},
			stage:    StepTransaction,
			progress: ProgressDone,
			want:     false,
		},
		{
			name:     "failed saga immutable",
			saga:     PaymentSaga{Status: StatusFailed, Step: StepCheckBalance, Progress: ProgressDone},
			stage:    StepTransaction,
			progress: ProgressDone,
			want:     false,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, tt.saga.CanAdvance(tt.stage, tt.progress))
		})
	}
}

func TestPaymentSaga_IsTerminal(t *testing.T) {
	saga := NewPaymentSaga("t", "u", "c", ServicePlan{})
	require.False(t, saga.IsTerminal())

	saga.Status = StatusFailed
	assert.True(t, saga.IsTerminal())
}

func TestPaymentSaga_Merchant(t *testing.T) {
	withProvider := PaymentSaga{Service: ServicePlan{Proveedor: "Spotify"}}
	assert.Equal(t, "Spotify", withProvider.Merchant())

	withoutProvider := PaymentSaga{}
	assert.Equal(t, "Comercio", withoutProvider.Merchant())
}

func TestPaymentSaga_Amount(t *testing.T) {
	saga := PaymentSaga{Service: ServicePlan{PrecioMensual: 9.99}}
	assert.InDelta(t, 9.99, saga.Amount(), 0.0001)
}
