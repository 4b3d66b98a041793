package loggers

import (
	"context"
	"math"

	dErrors "workspace-audit/pkg/domain-errors"
	"workspace-audit/pkg/platform/audit"
)

// LargeRefundThreshold is the refund amount above which a refund is HIGH.
const LargeRefundThreshold = 1000

// PaymentManagementAudit records refunds, subscription and billing changes.
type PaymentManagementAudit struct {
	base
}

func NewPaymentManagementAudit(rec Recorder) *PaymentManagementAudit {
	return &PaymentManagementAudit{base{rec: rec}}
}

// LogRefund records HIGH when refundAmount exceeds LargeRefundThreshold in the
// payment's currency unit, MEDIUM otherwise.
func (a *PaymentManagementAudit) LogRefund(ctx context.Context, paymentID string, refundAmount float64, currency, reason string, opErr error) (audit.Event, error) {
	if math.IsNaN(refundAmount) || math.IsInf(refundAmount, 0) {
		return audit.Event{}, dErrors.New(dErrors.CodeValidation, "refund amount must be a finite number")
	}
	if refundAmount < 0 {
		return audit.Event{}, dErrors.New(dErrors.CodeValidation, "refund amount must not be negative")
	}
	severity := audit.SeverityMedium
	if refundAmount > LargeRefundThreshold {
		severity = audit.SeverityHigh
	}
	e, err := a.entry(ctx, audit.ActionPaymentRefund, severity, "payment", paymentID)
	if err != nil {
		return audit.Event{}, err
	}
	e.NewValues = map[string]any{"refundAmount": refundAmount, "currency": currency}
	return a.record(ctx, e, reasonMeta(reason), opErr)
}

func (a *PaymentManagementAudit) LogSubscriptionUpdate(ctx context.Context, subscriptionID string, oldValues, newValues map[string]any, opErr error) (audit.Event, error) {
	e, err := a.entry(ctx, audit.ActionSubscriptionUpdate, audit.SeverityMedium, "subscription", subscriptionID)
	if err != nil {
		return audit.Event{}, err
	}
	e.OldValues = oldValues
	e.NewValues = newValues
	return a.record(ctx, e, map[string]any{audit.MetaChangedFields: ChangedFields(oldValues, newValues)}, opErr)
}

func (a *PaymentManagementAudit) LogSubscriptionCancel(ctx context.Context, subscriptionID, reason string, opErr error) (audit.Event, error) {
	e, err := a.entry(ctx, audit.ActionSubscriptionCancel, audit.SeverityMedium, "subscription", subscriptionID)
	if err != nil {
		return audit.Event{}, err
	}
	e.NewValues = map[string]any{"status": "canceled"}
	return a.record(ctx, e, reasonMeta(reason), opErr)
}

func (a *PaymentManagementAudit) LogBillingUpdate(ctx context.Context, customerID string, oldValues, newValues map[string]any, opErr error) (audit.Event, error) {
	e, err := a.entry(ctx, audit.ActionBillingUpdate, audit.SeverityMedium, "billing", customerID)
	if err != nil {
		return audit.Event{}, err
	}
	e.OldValues = oldValues
	e.NewValues = newValues
	return a.record(ctx, e, nil, opErr)
}
