package service

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"github.com/sirupsen/logrus"
	"github.com/vibast-solutions/ms-go-paygate/app/entity"
	"github.com/vibast-solutions/ms-go-paygate/app/factory"
	"github.com/vibast-solutions/ms-go-paygate/app/metrics"
	"github.com/vibast-solutions/ms-go-paygate/app/provider"
	"github.com/vibast-solutions/ms-go-paygate/config"
	"golang.org/x/time/rate"
)

const (
	batchActionAdd    = "A"
	batchLineTypeCard = "00"

	defaultOrderPageSize   = 10
	defaultMaxAuthAttempts = 10
)

// BatchLine is one recurring charge as uploaded to PayBatch. Its JSON form is the same
// six element array that is sent on the wire.
type BatchLine struct {
	Action      string
	Reference   string
	Payee       string
	VaultID     string
	LineType    string
	AmountCents int64
}

func (l BatchLine) Fields() []string {
	return []string{
		l.Action,
		l.Reference,
		l.Payee,
		l.VaultID,
		l.LineType,
		strconv.FormatInt(l.AmountCents, 10),
	}
}

func (l BatchLine) MarshalJSON() ([]byte, error) {
	return json.Marshal([]interface{}{l.Action, l.Reference, l.Payee, l.VaultID, l.LineType, l.AmountCents})
}

func (l *BatchLine) UnmarshalJSON(data []byte) error {
	var raw []json.RawMessage
	if err := json.Unmarshal(data, &raw); err != nil {
		return err
	}
	if len(raw) != 6 {
		return fmt.Errorf("batch line has %d fields, want 6", len(raw))
	}

	targets := []*string{&l.Action, &l.Reference, &l.Payee, &l.VaultID, &l.LineType}
	for i, target := range targets {
		if err := json.Unmarshal(raw[i], target); err != nil {
			return fmt.Errorf("batch line field %d: %w", i+1, err)
		}
	}
	if err := json.Unmarshal(raw[5], &l.AmountCents); err != nil {
		return fmt.Errorf("batch line amount: %w", err)
	}
	return nil
}

// OrderID extracts the order id from the line reference.
func (l BatchLine) OrderID() (uint64, error) {
	return OrderIDFromReference(l.Reference)
}

// OrderIDFromReference returns the leading order id of a "<orderID>_<orderKey>" reference.
func OrderIDFromReference(reference string) (uint64, error) {
	head := strings.TrimSpace(strings.SplitN(reference, "_", 2)[0])
	id, err := strconv.ParseUint(head, 10, 64)
	if err != nil || id == 0 {
		return 0, fmt.Errorf("reference %q does not start with an order id", reference)
	}
	return id, nil
}

type SubmitResult struct {
	Lines    int
	UploadID string
}

func (r *SubmitResult) Summary() string {
	if r.Lines == 0 {
		return "No matching invoices found!"
	}
	return fmt.Sprintf("%d invoices were successfully uploaded to PayGate PayBatch for processing", r.Lines)
}

type subscriptionRepository interface {
	ListActiveByOrder(ctx context.Context, orderID uint64) ([]*entity.Subscription, error)
}

type batchUploadRepository interface {
	Create(ctx context.Context, upload *entity.BatchUpload) error
	List(ctx context.Context) ([]*entity.BatchUpload, error)
	SetApplied(ctx context.Context, id uint64, appliedJSON string) error
	Delete(ctx context.Context, id uint64) error
}

type payBatchProcessor interface {
	Auth(ctx context.Context, reference string, lines [][]string) (*provider.AuthOutput, error)
	Confirm(ctx context.Context, uploadID string) (*provider.ConfirmOutput, error)
	Query(ctx context.Context, uploadID string) (*provider.PayBatchQueryOutput, error)
}

type rateConverter interface {
	Convert(ctx context.Context, amount decimal.Decimal, currency string) (decimal.Decimal, error)
}

type BatchService struct {
	orders        orderRepository
	notes         orderNoteRepository
	subscriptions subscriptionRepository
	uploads       batchUploadRepository
	vault         *VaultService
	payBatch      payBatchProcessor
	rates         rateConverter
	limiter       *rate.Limiter
	gatewayCfg    config.GatewayConfig
	jobsCfg       config.JobsConfig
	metrics       *metrics.Metrics
	logger        logrus.FieldLogger
}

func NewBatchService(
	orders orderRepository,
	notes orderNoteRepository,
	subscriptions subscriptionRepository,
	uploads batchUploadRepository,
	vault *VaultService,
	payBatch payBatchProcessor,
	rates rateConverter,
	gatewayCfg config.GatewayConfig,
	jobsCfg config.JobsConfig,
	queryRatePerSecond float64,
	m *metrics.Metrics,
) *BatchService {
	limit := rate.Inf
	if queryRatePerSecond > 0 {
		limit = rate.Limit(queryRatePerSecond)
	}

	return &BatchService{
		orders:        orders,
		notes:         notes,
		subscriptions: subscriptions,
		uploads:       uploads,
		vault:         vault,
		payBatch:      payBatch,
		rates:         rates,
		limiter:       rate.NewLimiter(limit, 1),
		gatewayCfg:    gatewayCfg,
		jobsCfg:       jobsCfg,
		metrics:       m,
		logger:        factory.NewModuleLogger("batch-service"),
	}
}

// Submit uploads every recurring charge due on or before today and confirms the batch.
func (s *BatchService) Submit(ctx context.Context, today time.Time) (*SubmitResult, error) {
	if s.gatewayCfg.DisableRecurring || !s.gatewayCfg.Vaulting {
		return nil, ErrBatchDisabled
	}

	lines, err := s.collectLines(ctx, startOfDay(today))
	if err != nil {
		return nil, err
	}
	if len(lines) == 0 {
		return &SubmitResult{}, nil
	}

	uploadID, accepted, err := s.submitLines(ctx, lines)
	if err != nil {
		return nil, err
	}

	encoded, err := json.Marshal(accepted)
	if err != nil {
		return nil, err
	}
	if err := s.uploads.Create(ctx, &entity.BatchUpload{
		UploadID:  uploadID,
		LinesJSON: string(encoded),
		CreatedAt: time.Now().UTC(),
	}); err != nil {
		return nil, fmt.Errorf("store upload %s: %w", uploadID, err)
	}

	s.metrics.Lines("submitted", len(accepted))
	s.logger.WithFields(logrus.Fields{
		"upload_id": uploadID,
		"lines":     len(accepted),
	}).Info("PayBatch upload confirmed")

	return &SubmitResult{Lines: len(accepted), UploadID: uploadID}, nil
}

func (s *BatchService) collectLines(ctx context.Context, day time.Time) ([]BatchLine, error) {
	pageSize := s.jobsCfg.OrderPageSize
	if pageSize <= 0 {
		pageSize = defaultOrderPageSize
	}

	lines := make([]BatchLine, 0)
	for offset := 0; ; offset += pageSize {
		orders, total, err := s.orders.ListByPaymentMethod(ctx, s.gatewayCfg.ID, offset, pageSize)
		if err != nil {
			return nil, err
		}
		for _, order := range orders {
			orderLines, err := s.linesForOrder(ctx, order, day)
			if err != nil {
				return nil, err
			}
			lines = append(lines, orderLines...)
		}
		if len(orders) == 0 || offset+pageSize >= total {
			break
		}
	}

	return lines, nil
}

func (s *BatchService) linesForOrder(ctx context.Context, order *entity.Order, day time.Time) ([]BatchLine, error) {
	subscriptions, err := s.subscriptions.ListActiveByOrder(ctx, order.ID)
	if err != nil {
		return nil, err
	}
	logger := s.logger.WithField("order_id", order.ID)

	lines := make([]BatchLine, 0, len(subscriptions))
	for _, sub := range subscriptions {
		if sub.Status == entity.SubscriptionStatusCancelled {
			continue
		}
		if sub.NextPaymentAt == nil || startOfDay(*sub.NextPaymentAt).After(day) {
			continue
		}

		token, err := s.vault.Lookup(ctx, order.CustomerID, s.gatewayCfg.ID)
		if errors.Is(err, ErrInconsistentTokens) {
			logger.WithField("customer_id", order.CustomerID).Warn("Multiple vault tokens stored, skipping subscription")
			continue
		}
		if err != nil {
			return nil, err
		}
		if token == nil || !ValidVaultToken(token.Token) {
			continue
		}

		amount, err := s.rates.Convert(ctx, sub.Total, order.Currency)
		if err != nil {
			return nil, fmt.Errorf("convert subscription %d total: %w", sub.ID, err)
		}

		lines = append(lines, BatchLine{
			Action:      batchActionAdd,
			Reference:   fmt.Sprintf("%d_%s", order.ID, order.OrderKey),
			Payee:       batchText(order.BillingFirstName) + "_" + batchText(order.BillingLastName),
			VaultID:     token.Token,
			LineType:    batchLineTypeCard,
			AmountCents: minorUnits(amount),
		})
	}

	return lines, nil
}

// submitLines runs the Auth/Confirm cycle, dropping the lines PayBatch reports as invalid
// until the remaining set authorises cleanly.
func (s *BatchService) submitLines(ctx context.Context, lines []BatchLine) (string, []BatchLine, error) {
	maxAttempts := s.jobsCfg.MaxAuthAttempts
	if maxAttempts <= 0 {
		maxAttempts = defaultMaxAuthAttempts
	}
	reference := uuid.NewString()
	logger := s.logger.WithField("batch_reference", reference)

	pending := lines
	for attempt := 1; ; attempt++ {
		if len(pending) == 0 {
			return "", nil, ErrBatchEmptied
		}
		if attempt > maxAttempts {
			return "", nil, fmt.Errorf("%w: %d auth attempts", ErrBatchExhausted, maxAttempts)
		}

		start := time.Now()
		auth, err := s.payBatch.Auth(ctx, reference, batchFields(pending))
		s.metrics.ObserveCall("Auth", start, err)
		if err != nil {
			return "", nil, fmt.Errorf("paybatch auth: %w", err)
		}

		if auth.Invalid == 0 {
			if auth.UploadID == "" {
				return "", nil, fmt.Errorf("%w: paybatch auth accepted the batch without an upload id", provider.ErrTransport)
			}
			start = time.Now()
			confirm, err := s.payBatch.Confirm(ctx, auth.UploadID)
			s.metrics.ObserveCall("Confirm", start, err)
			if err != nil {
				return "", nil, fmt.Errorf("paybatch confirm: %w", err)
			}
			if confirm.Invalid != 0 {
				return "", nil, fmt.Errorf("%w: %d invalid lines in upload %s", ErrBatchConfirmRejected, confirm.Invalid, auth.UploadID)
			}
			return auth.UploadID, pending, nil
		}

		next, removed := pruneLines(pending, auth.InvalidLines)
		if removed == 0 {
			return "", nil, fmt.Errorf("%w: %d invalid lines reported without line numbers", ErrBatchExhausted, auth.Invalid)
		}
		s.metrics.Lines("pruned", removed)
		logger.WithFields(logrus.Fields{
			"attempt": attempt,
			"invalid": auth.Invalid,
			"removed": removed,
		}).Warn("PayBatch rejected lines, resubmitting")
		pending = next
	}
}

// pruneLines removes the 1-based positions in invalid and keeps the order of the rest.
func pruneLines(lines []BatchLine, invalid []int) ([]BatchLine, int) {
	drop := make(map[int]struct{}, len(invalid))
	for _, line := range invalid {
		if line >= 1 && line <= len(lines) {
			drop[line-1] = struct{}{}
		}
	}

	kept := make([]BatchLine, 0, len(lines)-len(drop))
	for i, line := range lines {
		if _, ok := drop[i]; ok {
			continue
		}
		kept = append(kept, line)
	}
	return kept, len(drop)
}

func batchFields(lines []BatchLine) [][]string {
	out := make([][]string, 0, len(lines))
	for _, line := range lines {
		out = append(out, line.Fields())
	}
	return out
}

var batchTextReplacer = strings.NewReplacer(",", " ", "\r", " ", "\n", " ")

// batchText keeps free text from splitting a comma separated batch row.
func batchText(s string) string {
	return strings.TrimSpace(batchTextReplacer.Replace(s))
}

func startOfDay(t time.Time) time.Time {
	y, m, d := t.Date()
	return time.Date(y, m, d, 0, 0, 0, 0, time.UTC)
}
