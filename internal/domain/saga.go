package domain

import (
	"time"
)

// Status is the lifecycle state of a payment saga.
// Transitions only along INITIAL -> IN_PROGRESS -> {FINISH | FAILED}.
type Status string

const (
	StatusInitial    Status = "INITIAL"
	StatusInProgress Status = "IN_PROGRESS"
	StatusFinish     Status = "FINISH"
	StatusFailed     Status = "FAILED"
)

// Terminal reports whether the status is absorbing. A terminal record may
// never be mutated again.
func (s Status) Terminal() bool {
	return s == StatusFinish || s == StatusFailed
}

// Step names the stage that last touched a saga record. Steps advance in a
// fixed order and never regress.
type Step string

const (
	StepStartPayment Step = "start-payment"
	StepCheckBalance Step = "check-balance"
	StepTransaction  Step = "transaction"
)

// Order returns the position of the step in the stage sequence, or 0 for an
// unknown step.
func (s Step) Order() int {
	switch s {
	case StepStartPayment:
		return 1
	case StepCheckBalance:
		return 2
	case StepTransaction:
		return 3
	default:
		return 0
	}
}

// Steps returns the fixed stage order of the payment saga.
func Steps() []Step {
	return []Step{StepStartPayment, StepCheckBalance, StepTransaction}
}

// IsValidStep checks whether the given string names a known stage.
func IsValidStep(s string) bool {
	return Step(s).Order() != 0
}

// Progress checkpoints reported to status pollers. Progress is monotonically
// non-decreasing over a record's lifetime.
const (
	ProgressCreated   = 0
	ProgressInitiated = 25
	ProgressChecking  = 50
	ProgressFundsOK   = 75
	ProgressDone      = 100
)

// ServicePlan describes the subscription being paid for. Field names follow
// the upstream catalog payloads.
type ServicePlan struct {
	Proveedor     string  `json:"proveedor"`
	PrecioMensual float64 `json:"precio_mensual"`
}

// PaymentSaga is the durable record of one card-payment saga, keyed by
// TraceID. TraceID, UserID, CardID and Service are set at creation and
// immutable thereafter; the remaining fields advance as stages complete.
type PaymentSaga struct {
	TraceID   string      `json:"traceId"`
	UserID    string      `json:"userId"`
	CardID    string      `json:"cardId"`
	Service   ServicePlan `json:"service"`
	Status    Status      `json:"status"`
	Step      Step        `json:"step"`
	Progress  int         `json:"progress"`
	Error     string      `json:"error,omitempty"`
	UpdatedAt time.Time   `json:"updatedAt"`
}

// NewPaymentSaga builds the initial record written by the start-payment stage.
func NewPaymentSaga(traceID, userID, cardID string, service ServicePlan) *PaymentSaga {
	return &PaymentSaga{
		TraceID:   traceID,
		UserID:    userID,
		CardID:    cardID,
		Service:   service,
		Status:    StatusInitial,
		Step:      StepStartPayment,
		Progress:  ProgressCreated,
		UpdatedAt: time.Now().UTC(),
	}
}

// IsTerminal reports whether the saga has reached FINISH or FAILED.
func (p *PaymentSaga) IsTerminal() bool {
	return p.Status.Terminal()
}

// CanAdvance reports whether a write on behalf of the given stage with the
// given progress value may be applied to this record. It rejects writes that
// would touch a terminal record, regress progress, or run a stage out of
// order, which fences out duplicate and stale queue deliveries.
func (p *PaymentSaga) CanAdvance(stage Step, progress int) bool {
	if p.IsTerminal() {
		return false
	}
	if progress < p.Progress {
		return false
	}
	return stage.Order() >= p.Step.Order()
}

// Merchant returns the merchant name for settlement, falling back to a
// generic label when the plan carries none.
func (p *PaymentSaga) Merchant() string {
	if p.Service.Proveedor != "" {
		return p.Service.Proveedor
	}
	return "Comercio"
}

// Amount returns the amount to settle, derived from the plan's monthly price.
func (p *PaymentSaga) Amount() float64 {
	return p.Service.PrecioMensual
}
