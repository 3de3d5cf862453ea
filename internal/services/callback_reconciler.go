package services

import (
	"context"
	"errors"
	"net/url"
	"strings"

	"go.opentelemetry.io/otel/metric"

	domain "github.com/KhangNguyen-1412/freshfood-ecommerce-sub000/internal/domain"
	"github.com/KhangNguyen-1412/freshfood-ecommerce-sub000/internal/payments"
)

// Gateway acknowledgement codes for server-to-server notifications.
const (
	IPNCodeConfirmed     = "00"
	IPNCodeOrderNotFound = "01"
	IPNCodeAlreadyDone   = "02"
	IPNCodeInvalidAmount = "04"
	IPNCodeBadSignature  = "97"
	IPNCodeUnknown       = "99"

	callbackActor           = "system:gateway-callback"
	signatureMismatchReason = "signature_mismatch"
)

// CallbackVerifier checks the integrity of gateway callback parameters.
type CallbackVerifier interface {
	VerifySignature(params map[string]string) bool
}

// CallbackReconcilerDeps bundles collaborators of the callback reconciler.
type CallbackReconcilerDeps struct {
	Orders   OrderService
	Verifier CallbackVerifier
	Config   SettlementConfig
	Logger   func(ctx context.Context, event string, fields map[string]any)
	Meter    metric.Meter
}

type callbackReconciler struct {
	orders     OrderService
	verifier   CallbackVerifier
	successURL string
	failureURL string
	logger     func(context.Context, string, map[string]any)
	metrics    settlementMetrics
}

// NewCallbackReconciler wires the reconciler for the signed redirect gateway.
func NewCallbackReconciler(deps CallbackReconcilerDeps) (CallbackReconciler, error) {
	if deps.Orders == nil {
		return nil, errors.New("callback reconciler: order service is required")
	}
	if deps.Verifier == nil {
		return nil, errors.New("callback reconciler: signature verifier is required")
	}
	logger := deps.Logger
	if logger == nil {
		logger = func(context.Context, string, map[string]any) {}
	}
	return &callbackReconciler{
		orders:     deps.Orders,
		verifier:   deps.Verifier,
		successURL: strings.TrimSpace(deps.Config.ReturnSuccessURL),
		failureURL: strings.TrimSpace(deps.Config.ReturnFailureURL),
		logger:     logger,
		metrics:    newSettlementMetrics(deps.Meter, logger),
	}, nil
}

// HandleReturn settles the order referenced by the buyer's return redirect and picks where the
// buyer lands. Infrastructure failures are returned together with the failure destination.
func (r *callbackReconciler) HandleReturn(ctx context.Context, params map[string]string) (ReturnOutcome, error) {
	orderID := strings.TrimSpace(params[payments.VNPayParamTxnRef])
	code, order, err := r.reconcile(ctx, "return", params)
	r.metrics.recordCallback(ctx, "return", code)
	if code == "" {
		return r.redirect(orderID, false), err
	}
	success := code == IPNCodeConfirmed && err == nil
	if code == IPNCodeAlreadyDone {
		success = order.Status != domain.OrderStatusCancelled
	}
	return r.redirect(orderID, success), nil
}

// HandleIPN settles the order referenced by a gateway notification and returns the
// acknowledgement the gateway expects. It never returns an error; failures map to RspCode 99.
func (r *callbackReconciler) HandleIPN(ctx context.Context, params map[string]string) (IPNAck, error) {
	code, _, err := r.reconcile(ctx, "ipn", params)
	if err != nil && code == "" {
		r.logger(ctx, "callback.ipn.failed", map[string]any{
			"orderId": params[payments.VNPayParamTxnRef],
			"error":   err.Error(),
		})
		code = IPNCodeUnknown
	}
	r.metrics.recordCallback(ctx, "ipn", code)
	return IPNAck{RspCode: code, Message: ipnMessage(code)}, nil
}

// reconcile returns the gateway code for the callback. A non-nil error with a code means the
// payment was rejected and the order left pending; an error without a code is a failure to
// process the callback at all.
func (r *callbackReconciler) reconcile(ctx context.Context, channel string, params map[string]string) (string, Order, error) {
	orderID := strings.TrimSpace(params[payments.VNPayParamTxnRef])

	if !r.verifier.VerifySignature(params) {
		r.logger(ctx, "callback.signature.mismatch", map[string]any{
			"security": true,
			"channel":  channel,
			"orderId":  orderID,
		})
		if orderID != "" {
			r.cancelPending(ctx, orderID)
		}
		return IPNCodeBadSignature, Order{}, ErrSignatureMismatch
	}
	if orderID == "" {
		return IPNCodeOrderNotFound, Order{}, ErrOrderNotFound
	}

	result, err := r.orders.ConfirmPayment(ctx, ConfirmPaymentCommand{
		OrderID: orderID,
		Params:  params,
		ActorID: callbackActor,
	})
	switch {
	case err == nil && result.AlreadySettled:
		r.logger(ctx, "callback.already.settled", map[string]any{
			"channel": channel,
			"orderId": orderID,
			"status":  string(result.Order.Status),
		})
		return IPNCodeAlreadyDone, result.Order, nil
	case err == nil:
		r.logger(ctx, "callback.settled", map[string]any{
			"channel": channel,
			"orderId": orderID,
		})
		return IPNCodeConfirmed, result.Order, nil
	case errors.Is(err, ErrOrderNotFound):
		return IPNCodeOrderNotFound, result.Order, err
	case errors.Is(err, payments.ErrAmountMismatch):
		r.logger(ctx, "callback.amount.mismatch", map[string]any{
			"security": true,
			"channel":  channel,
			"orderId":  orderID,
			"error":    err.Error(),
		})
		return IPNCodeInvalidAmount, result.Order, err
	case errors.Is(err, payments.ErrPaymentDeclined), errors.Is(err, ErrInsufficientStock):
		r.logger(ctx, "callback.payment.rejected", map[string]any{
			"channel": channel,
			"orderId": orderID,
			"error":   err.Error(),
		})
		return IPNCodeConfirmed, result.Order, err
	case errors.Is(err, ErrProviderConfirmationFailed), errors.Is(err, ErrOrderInvalidInput):
		return IPNCodeUnknown, result.Order, err
	default:
		return "", result.Order, err
	}
}

// cancelPending cancels an order that is still awaiting payment after a forged callback.
func (r *callbackReconciler) cancelPending(ctx context.Context, orderID string) {
	_, err := r.orders.Transition(ctx, TransitionCommand{
		OrderID:        orderID,
		TargetStatus:   domain.OrderStatusCancelled,
		ExpectedStatus: domain.OrderStatusPendingPayment,
		Reason:         signatureMismatchReason,
		ActorID:        callbackActor,
	})
	if err != nil && !errors.Is(err, ErrOrderConflict) && !errors.Is(err, ErrOrderNotFound) {
		r.logger(ctx, "callback.cancel.failed", map[string]any{
			"orderId": orderID,
			"error":   err.Error(),
		})
	}
}

func (r *callbackReconciler) redirect(orderID string, success bool) ReturnOutcome {
	base := r.failureURL
	status := "failure"
	if success {
		base, status = r.successURL, "success"
	}
	return ReturnOutcome{
		OrderID:     orderID,
		Success:     success,
		RedirectURL: appendQuery(base, orderID, status),
	}
}

func appendQuery(base, orderID, status string) string {
	if base == "" {
		base = "/"
	}
	u, err := url.Parse(base)
	if err != nil {
		return base
	}
	q := u.Query()
	if orderID != "" {
		q.Set("orderId", orderID)
	}
	q.Set("status", status)
	u.RawQuery = q.Encode()
	return u.String()
}

func ipnMessage(code string) string {
	switch code {
	case IPNCodeConfirmed:
		return "Confirm Success"
	case IPNCodeOrderNotFound:
		return "Order not found"
	case IPNCodeAlreadyDone:
		return "Order already confirmed"
	case IPNCodeInvalidAmount:
		return "Invalid amount"
	case IPNCodeBadSignature:
		return "Invalid signature"
	default:
		return "Unknown error"
	}
}
