package service

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/sirupsen/logrus"
	"github.com/vibast-solutions/ms-go-paygate/app/checksum"
	"github.com/vibast-solutions/ms-go-paygate/app/entity"
)

const (
	noteTransactionSuccessful = "Response via Redirect, Transaction successful"
	noteRepeatSuccessful      = "Response via Redirect, Repeat transactions successful"
	noteDeclinedByBank        = "Response via Redirect, Transaction declined by bank"
	noteCancelledByUser       = "Response via Redirect, Transaction cancelled by user"
	noteDeclined              = "Response via Redirect, Transaction declined."
	noteNoTokenStored         = "No token was stored"
)

type RedirectForm interface {
	GetPayRequestId() string
	GetTransactionStatus() string
	GetChecksum() string
}

type RedirectOutcome struct {
	State       AttemptState
	RedirectURL string
	Notice      string
	NoticeType  string
}

type redirectHandler func(ctx context.Context, order *entity.Order, payRequestID string) (*RedirectOutcome, error)

// HandleRedirect applies a PayHost redirect to the order it belongs to.
//
// The returned outcome is never nil. Rejected or failed callbacks send the payer to the
// generic checkout page and leave the order untouched.
func (s *PaymentService) HandleRedirect(ctx context.Context, req RedirectForm) (*RedirectOutcome, error) {
	payRequestID := strings.TrimSpace(req.GetPayRequestId())
	status := strings.TrimSpace(req.GetTransactionStatus())
	received := strings.TrimSpace(req.GetChecksum())

	logger := s.logger.WithFields(logrus.Fields{
		"pay_request_id":     payRequestID,
		"transaction_status": status,
	})

	if payRequestID == "" || status == "" || received == "" {
		s.persistRejectedCallback(ctx, nil, req, "missing redirect fields")
		return s.rejectedOutcome(), ErrCallbackRejected
	}

	order, err := s.orders.FindByMeta(ctx, entity.MetaPayRequestID, payRequestID)
	if err != nil {
		return s.rejectedOutcome(), err
	}
	if order == nil {
		logger.Warn("No order found for PayHost redirect")
		s.persistRejectedCallback(ctx, nil, req, "order not found for pay request id")
		return s.rejectedOutcome(), ErrCallbackRejected
	}

	reference, err := s.orders.GetMeta(ctx, order.ID, entity.MetaReference)
	if err != nil {
		return s.rejectedOutcome(), err
	}

	fields := []string{s.payHostCfg.ID, payRequestID, status, reference}
	if !checksum.Verify(received, fields, s.payHostCfg.Key) {
		logger.WithField("order_id", order.ID).Warn("PayHost redirect checksum mismatch")
		s.persistRejectedCallback(ctx, &order.ID, req, "checksum mismatch")
		return s.rejectedOutcome(), ErrChecksumMismatch
	}
	logger.WithField("order_id", order.ID).WithField("state", StateVerified).Debug("PayHost redirect verified")

	handler, ok := s.redirectHandlers[status]
	if !ok {
		handler = s.handleDeclinedOther
	}

	outcome, err := handler(ctx, order, payRequestID)
	if err != nil {
		logger.WithError(err).WithField("order_id", order.ID).Error("Failed to apply PayHost redirect")
		return s.rejectedOutcome(), err
	}

	orderID := order.ID
	if err := s.callbacks.Create(ctx, &entity.RedirectCallback{
		OrderID:           &orderID,
		PayRequestID:      payRequestID,
		TransactionStatus: status,
		Checksum:          received,
		Status:            entity.RedirectCallbackProcessed,
		CreatedAt:         time.Now().UTC(),
	}); err != nil {
		logger.WithError(err).Warn("Failed to record redirect callback")
	}
	s.metrics.Callback(string(outcome.State))

	return outcome, nil
}

func (s *PaymentService) completeHandler(successNote string) redirectHandler {
	return func(ctx context.Context, order *entity.Order, payRequestID string) (*RedirectOutcome, error) {
		outcome := &RedirectOutcome{State: StateCompleted, RedirectURL: s.orders.ReturnURL(order)}
		logger := s.logger.WithField("order_id", order.ID)

		changed, err := s.orders.UpdateStatus(ctx, order.ID, entity.OrderStatusPaid)
		if err != nil {
			return nil, err
		}
		if !changed {
			logger.Info("Order already paid, ignoring repeated success redirect")
			return outcome, nil
		}

		addNote(ctx, s.notes, logger, order.ID, successNote)
		addNote(ctx, s.notes, logger, order.ID, s.storeToken(ctx, order, payRequestID))

		if err := s.carts.EmptyForCustomer(ctx, order.CustomerID); err != nil {
			logger.WithError(err).Warn("Failed to empty cart")
		}

		return outcome, nil
	}
}

// storeToken asks PayHost for the vault id of this transaction and stores it for the customer.
// It returns the order note describing what happened.
func (s *PaymentService) storeToken(ctx context.Context, order *entity.Order, payRequestID string) string {
	if !s.gatewayCfg.Vaulting || order.CustomerID == 0 {
		return noteNoTokenStored
	}
	logger := s.logger.WithField("order_id", order.ID)

	start := time.Now()
	result, err := s.payHost.Query(ctx, payRequestID)
	s.metrics.ObserveCall("Query", start, err)
	if err != nil {
		logger.WithError(err).Error("PayHost query for vault id failed")
		return noteNoTokenStored
	}
	if !ValidVaultToken(result.VaultID) {
		return noteNoTokenStored
	}

	action, err := s.vault.ReconcileToken(ctx, order.CustomerID, s.gatewayCfg.ID, result.VaultID)
	if err != nil {
		logger.WithError(err).Error("Failed to store vault token")
		return noteNoTokenStored
	}
	logger.WithField("action", action.String()).Info("Vault token reconciled")

	return fmt.Sprintf("Token %s was stored", maskToken(result.VaultID))
}

func (s *PaymentService) handleDeclined(ctx context.Context, order *entity.Order, _ string) (*RedirectOutcome, error) {
	outcome := &RedirectOutcome{
		State:       StateDeclined,
		RedirectURL: s.orders.CancelURL(order),
		Notice:      "Your order was declined by the bank.",
		NoticeType:  "notice",
	}
	return outcome, s.failOrder(ctx, order, noteDeclinedByBank)
}

func (s *PaymentService) handleDeclinedOther(ctx context.Context, order *entity.Order, _ string) (*RedirectOutcome, error) {
	outcome := &RedirectOutcome{
		State:       StateFailed,
		RedirectURL: s.orders.CancelURL(order),
		Notice:      "Your order was cancelled.",
		NoticeType:  "notice",
	}
	return outcome, s.failOrder(ctx, order, noteDeclined)
}

func (s *PaymentService) handleCancelled(ctx context.Context, order *entity.Order, _ string) (*RedirectOutcome, error) {
	outcome := &RedirectOutcome{
		State:       StateCancelled,
		RedirectURL: s.orders.CancelURL(order),
		Notice:      "Your order was cancelled by the user.",
		NoticeType:  "notice",
	}
	logger := s.logger.WithField("order_id", order.ID)

	changed, err := s.orders.UpdateStatus(ctx, order.ID, entity.OrderStatusCancelled, entity.OrderStatusPending)
	if err != nil {
		return nil, err
	}
	if !changed {
		logger.WithField("status", order.Status).Info("Order not pending, ignoring cancel redirect")
		return outcome, nil
	}
	addNote(ctx, s.notes, logger, order.ID, noteCancelledByUser)

	return outcome, nil
}

// failOrder moves an order to failed unless it is already failed or paid.
func (s *PaymentService) failOrder(ctx context.Context, order *entity.Order, note string) error {
	logger := s.logger.WithField("order_id", order.ID)

	changed, err := s.orders.UpdateStatus(ctx, order.ID, entity.OrderStatusFailed, entity.OrderStatusPending, entity.OrderStatusCancelled)
	if err != nil {
		return err
	}
	if !changed {
		logger.WithField("status", order.Status).Info("Order already settled, ignoring decline redirect")
		return nil
	}
	addNote(ctx, s.notes, logger, order.ID, note)

	return nil
}

func (s *PaymentService) rejectedOutcome() *RedirectOutcome {
	s.metrics.Callback(string(StateRejected))
	return &RedirectOutcome{State: StateRejected, RedirectURL: s.gatewayCfg.CheckoutURL}
}

func (s *PaymentService) persistRejectedCallback(ctx context.Context, orderID *uint64, req RedirectForm, reason string) {
	reason = truncate(reason, 1024)
	err := s.callbacks.Create(ctx, &entity.RedirectCallback{
		OrderID:           orderID,
		PayRequestID:      truncate(strings.TrimSpace(req.GetPayRequestId()), 64),
		TransactionStatus: truncate(strings.TrimSpace(req.GetTransactionStatus()), 8),
		Checksum:          truncate(strings.TrimSpace(req.GetChecksum()), 64),
		Status:            entity.RedirectCallbackRejected,
		Error:             &reason,
		CreatedAt:         time.Now().UTC(),
	})
	if err != nil {
		s.logger.WithError(err).Warn("Failed to record rejected redirect callback")
	}
}
