package service

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/shopspring/decimal"
	"github.com/sirupsen/logrus"
	"github.com/vibast-solutions/ms-go-paygate/app/checksum"
	"github.com/vibast-solutions/ms-go-paygate/app/entity"
	"github.com/vibast-solutions/ms-go-paygate/app/factory"
	"github.com/vibast-solutions/ms-go-paygate/app/metrics"
	"github.com/vibast-solutions/ms-go-paygate/app/provider"
	"github.com/vibast-solutions/ms-go-paygate/config"
)

const payHostTransDateLayout = "2006-01-02T15:04:05"

const recurringDisabledNotice = "We cannot process the order with this payment gateway. " +
	"This is a subscription, but recurring payments are disabled. " +
	"Please change this in the payments configuration to enable processing."

const dispatchFailedNotice = "We could not start your payment with PayGate. Please try again."

const orderNotPendingNotice = "This order can no longer be paid."

// AttemptState is the position of one order's hosted payment attempt.
type AttemptState string

const (
	StateInitiated        AttemptState = "initiated"
	StateAwaitingRedirect AttemptState = "awaiting_redirect"
	StateVerified         AttemptState = "verified"
	StateRejected         AttemptState = "rejected"
	StateCompleted        AttemptState = "completed"
	StateDeclined         AttemptState = "declined"
	StateCancelled        AttemptState = "cancelled"
	StateFailed           AttemptState = "failed"
)

type payHostGateway interface {
	SinglePayment(ctx context.Context, input *provider.SinglePaymentInput) (*provider.SinglePaymentOutput, error)
	Query(ctx context.Context, payRequestID string) (*provider.PayHostQueryOutput, error)
}

type redirectCallbackRepository interface {
	Create(ctx context.Context, callback *entity.RedirectCallback) error
}

type cartRepository interface {
	EmptyForCustomer(ctx context.Context, customerID uint64) error
}

// PaymentRequest is assembled per order and lives for one SinglePayment exchange.
type PaymentRequest struct {
	PayGateID     string
	EncryptionKey string
	Reference     string
	AmountCents   int64
	Currency      string
	TransDate     string
	Locale        string
	FirstName     string
	LastName      string
	Email         string
	CustomerTitle string
	Country       string
	ReturnURL     string

	DisableRecurring bool
	Vaulting         bool
	VaultID          string
}

// Fields returns the request under its wire names.
func (r *PaymentRequest) Fields() map[string]string {
	fields := map[string]string{
		"pgid":              r.PayGateID,
		"encryptionKey":     r.EncryptionKey,
		"reference":         r.Reference,
		"amount":            strconv.FormatInt(r.AmountCents, 10),
		"currency":          r.Currency,
		"transDate":         r.TransDate,
		"locale":            r.Locale,
		"firstName":         r.FirstName,
		"lastName":          r.LastName,
		"email":             r.Email,
		"customerTitle":     r.CustomerTitle,
		"country":           r.Country,
		"retUrl":            r.ReturnURL,
		"disable_recurring": strconv.FormatBool(r.DisableRecurring),
	}
	if r.Vaulting {
		fields["vaulting"] = "true"
	}
	if r.VaultID != "" {
		fields["vaultId"] = r.VaultID
	}
	return fields
}

func (r *PaymentRequest) input() *provider.SinglePaymentInput {
	return &provider.SinglePaymentInput{
		PayGateID:     r.PayGateID,
		EncryptionKey: r.EncryptionKey,
		Reference:     r.Reference,
		AmountCents:   r.AmountCents,
		Currency:      r.Currency,
		TransDate:     r.TransDate,
		Locale:        r.Locale,
		FirstName:     r.FirstName,
		LastName:      r.LastName,
		Email:         r.Email,
		CustomerTitle: r.CustomerTitle,
		Country:       r.Country,
		ReturnURL:     r.ReturnURL,
		Vaulting:      r.Vaulting,
		VaultID:       r.VaultID,

		DisableRecurring: r.DisableRecurring,
	}
}

type DispatchResult struct {
	State  AttemptState
	Fields map[string]string
}

type CheckoutResult struct {
	State      AttemptState
	Fields     map[string]string
	CancelURL  string
	Notice     string
	NoticeType string
}

type PaymentService struct {
	orders     orderRepository
	notes      orderNoteRepository
	callbacks  redirectCallbackRepository
	carts      cartRepository
	vault      *VaultService
	payHost    payHostGateway
	gatewayCfg config.GatewayConfig
	payHostCfg config.PayHostConfig
	metrics    *metrics.Metrics
	logger     logrus.FieldLogger

	redirectHandlers map[string]redirectHandler
}

func NewPaymentService(
	orders orderRepository,
	notes orderNoteRepository,
	callbacks redirectCallbackRepository,
	carts cartRepository,
	vault *VaultService,
	payHost payHostGateway,
	gatewayCfg config.GatewayConfig,
	payHostCfg config.PayHostConfig,
	m *metrics.Metrics,
) *PaymentService {
	s := &PaymentService{
		orders:     orders,
		notes:      notes,
		callbacks:  callbacks,
		carts:      carts,
		vault:      vault,
		payHost:    payHost,
		gatewayCfg: gatewayCfg,
		payHostCfg: payHostCfg,
		metrics:    m,
		logger:     factory.NewModuleLogger("payment-service"),
	}
	s.redirectHandlers = map[string]redirectHandler{
		"1": s.completeHandler(noteTransactionSuccessful),
		"5": s.completeHandler(noteRepeatSuccessful),
		"2": s.handleDeclined,
		"4": s.handleCancelled,
	}
	return s
}

// BuildRequest assembles the SinglePayment request for an order.
func (s *PaymentService) BuildRequest(ctx context.Context, orderID uint64) (*PaymentRequest, error) {
	order, err := s.orders.FindByID(ctx, orderID)
	if err != nil {
		return nil, err
	}
	if order == nil {
		return nil, ErrOrderNotFound
	}
	return s.buildRequest(ctx, order)
}

// buildRequest accepts pending orders only. Dispatch replaces the stored pay request id, so a
// second attempt would orphan the redirect of the first.
func (s *PaymentService) buildRequest(ctx context.Context, order *entity.Order) (*PaymentRequest, error) {
	if order.Status != entity.OrderStatusPending {
		return nil, fmt.Errorf("%w: order %d is %s", ErrOrderNotPending, order.ID, order.Status)
	}
	if order.HasSubscription && (s.gatewayCfg.DisableRecurring || !s.gatewayCfg.Vaulting) {
		return nil, ErrRecurringDisabled
	}

	req := &PaymentRequest{
		PayGateID:        s.payHostCfg.ID,
		EncryptionKey:    s.payHostCfg.Key,
		Reference:        strconv.FormatUint(order.ID, 10),
		AmountCents:      minorUnits(order.Total),
		Currency:         order.Currency,
		TransDate:        order.CreatedAt.Format(payHostTransDateLayout),
		Locale:           s.gatewayCfg.Locale,
		FirstName:        order.BillingFirstName,
		LastName:         order.BillingLastName,
		Email:            order.BillingEmail,
		CustomerTitle:    s.gatewayCfg.CustomerTitle,
		Country:          s.gatewayCfg.Country,
		ReturnURL:        s.gatewayCfg.RedirectURL,
		DisableRecurring: s.gatewayCfg.DisableRecurring,
		Vaulting:         s.gatewayCfg.Vaulting,
	}

	if s.gatewayCfg.Vaulting && order.CustomerID != 0 {
		token, err := s.vault.Lookup(ctx, order.CustomerID, s.gatewayCfg.ID)
		switch {
		case errors.Is(err, ErrInconsistentTokens):
			s.logger.WithField("customer_id", order.CustomerID).Warn("Multiple vault tokens stored, paying without vault id")
		case err != nil:
			return nil, err
		case token != nil && ValidVaultToken(token.Token):
			req.VaultID = token.Token
		}
	}

	return req, nil
}

// Dispatch sends the request to PayHost and validates the redirect it returns.
func (s *PaymentService) Dispatch(ctx context.Context, order *entity.Order, req *PaymentRequest) (*DispatchResult, error) {
	logger := s.logger.WithField("order_id", order.ID)

	start := time.Now()
	out, err := s.payHost.SinglePayment(ctx, req.input())
	s.metrics.ObserveCall("SinglePayment", start, err)
	if err != nil {
		logger.WithError(err).Error("PayHost SinglePayment failed")
		return &DispatchResult{State: StateFailed, Fields: fallbackFields(req)}, nil
	}
	if len(out.UrlParams) < 4 {
		logger.WithFields(logrus.Fields{
			"status":      out.StatusCode,
			"description": out.ResultDescription,
		}).Error("PayHost SinglePayment returned no redirect")
		return &DispatchResult{State: StateFailed, Fields: fallbackFields(req)}, nil
	}

	params := out.UrlParams
	if err := s.orders.SetMeta(ctx, order.ID, entity.MetaPayRequestID, params[1].Value); err != nil {
		return nil, err
	}
	if err := s.orders.SetMeta(ctx, order.ID, entity.MetaReference, params[2].Value); err != nil {
		return nil, err
	}

	if !checksum.Verify(params[3].Value, []string{params[0].Value, params[1].Value, params[2].Value}, s.payHostCfg.Key) {
		logger.WithField("pay_request_id", params[1].Value).Warn("PayHost redirect checksum mismatch")
		return &DispatchResult{State: StateRejected}, nil
	}

	fields := make(map[string]string, len(params)+2)
	for _, p := range params {
		fields[p.Key] = p.Value
	}
	fields["enable_iframe"] = strconv.FormatBool(s.gatewayCfg.EnableIframe)
	fields["process_url"] = s.payHostCfg.ProcessURL
	if out.RedirectURL != "" {
		fields["process_url"] = out.RedirectURL
	}

	return &DispatchResult{State: StateAwaitingRedirect, Fields: fields}, nil
}

// StartPayment runs BuildRequest and Dispatch for an order at checkout.
func (s *PaymentService) StartPayment(ctx context.Context, orderID uint64) (*CheckoutResult, error) {
	order, err := s.orders.FindByID(ctx, orderID)
	if err != nil {
		return nil, err
	}
	if order == nil {
		return nil, ErrOrderNotFound
	}

	req, err := s.buildRequest(ctx, order)
	switch {
	case errors.Is(err, ErrRecurringDisabled):
		return s.rejectedCheckout(order, recurringDisabledNotice), nil
	case errors.Is(err, ErrOrderNotPending):
		s.logger.WithField("order_id", order.ID).WithField("status", order.Status).Warn("Checkout requested for an order that is not pending")
		return s.rejectedCheckout(order, orderNotPendingNotice), nil
	}
	if err != nil {
		return nil, err
	}

	dispatched, err := s.Dispatch(ctx, order, req)
	if err != nil {
		return nil, err
	}

	result := &CheckoutResult{State: dispatched.State, Fields: dispatched.Fields}
	if dispatched.State != StateAwaitingRedirect {
		result.CancelURL = s.orders.CancelURL(order)
		result.Notice = dispatchFailedNotice
		result.NoticeType = "error"
	}
	return result, nil
}

func (s *PaymentService) rejectedCheckout(order *entity.Order, notice string) *CheckoutResult {
	return &CheckoutResult{
		State:      StateRejected,
		CancelURL:  s.orders.CancelURL(order),
		Notice:     notice,
		NoticeType: "error",
	}
}

func fallbackFields(req *PaymentRequest) map[string]string {
	fields := req.Fields()
	delete(fields, "encryptionKey")
	return fields
}

// minorUnits converts an amount to cents, dropping fractions of a cent.
func minorUnits(amount decimal.Decimal) int64 {
	return amount.Shift(2).Truncate(0).IntPart()
}

func maskToken(token string) string {
	token = strings.TrimSpace(token)
	if len(token) <= 4 {
		return "****"
	}
	return "****" + token[len(token)-4:]
}
