package service

import (
	"context"
	"encoding/json"
	"fmt"
	"sort"
	"strings"
	"time"

	"github.com/sirupsen/logrus"
	"github.com/vibast-solutions/ms-go-paygate/app/entity"
)

const (
	noteBatchSuccessful    = "Response via PayBatch Query, Transaction successful"
	noteBatchNotSuccessful = "Response via PayBatch Query, Transaction not successful"
)

// TransResult is one parsed PayBatch result row.
type TransResult struct {
	TransactionID     string
	Type              string
	Reference         string
	AuthCode          string
	StatusCode        string
	StatusDescription string
	ResultCode        string
	ResultDescription string
}

func (r *TransResult) Approved() bool {
	return r.StatusCode == "1" && r.StatusDescription == "Approved"
}

func ParseTransResult(row string) (*TransResult, error) {
	parts := strings.Split(strings.TrimSpace(row), ",")
	if len(parts) != 8 {
		return nil, fmt.Errorf("result row has %d fields, want 8", len(parts))
	}
	for i := range parts {
		parts[i] = strings.TrimSpace(parts[i])
	}

	return &TransResult{
		TransactionID:     parts[0],
		Type:              parts[1],
		Reference:         parts[2],
		AuthCode:          parts[3],
		StatusCode:        parts[4],
		StatusDescription: parts[5],
		ResultCode:        parts[6],
		ResultDescription: parts[7],
	}, nil
}

type ReconcileResult struct {
	Batches   int
	Processed int
	Pending   int
}

func (r *ReconcileResult) Summary() string {
	if r.Batches == 0 {
		return "No PayGate PayBatch batches were found for processing"
	}
	return fmt.Sprintf("%d PayGate PayBatch batches were queried for payment information and processed", r.Batches)
}

// Reconcile queries every stored upload and applies its results to orders. Uploads without
// results stay stored for the next run. A failure on one upload does not stop the others;
// the first error is returned once all uploads were tried. Rows applied before a failure are
// remembered on the upload and skipped when it is queried again.
func (s *BatchService) Reconcile(ctx context.Context) (*ReconcileResult, error) {
	records, err := s.uploads.List(ctx)
	if err != nil {
		return nil, err
	}

	result := &ReconcileResult{Batches: len(records)}
	var firstErr error
	for _, record := range records {
		if err := s.limiter.Wait(ctx); err != nil {
			return result, keepFirstErr(firstErr, err)
		}

		processed, err := s.reconcileUpload(ctx, record)
		if err != nil {
			firstErr = keepFirstErr(firstErr, err)
		}
		if processed {
			result.Processed++
		} else {
			result.Pending++
		}
	}

	return result, firstErr
}

func (s *BatchService) reconcileUpload(ctx context.Context, record *entity.BatchUpload) (bool, error) {
	logger := s.logger.WithField("upload_id", record.UploadID)

	start := time.Now()
	out, err := s.payBatch.Query(ctx, record.UploadID)
	s.metrics.ObserveCall("Query", start, err)
	if err != nil {
		logger.WithError(err).Error("PayBatch query failed")
		return false, fmt.Errorf("query upload %s: %w", record.UploadID, err)
	}

	if len(out.TransResults) == 0 {
		if out.DateCompleted != "" {
			logger.WithField("date_completed", out.DateCompleted).Info("PayBatch upload completed without results, keeping it")
		} else {
			logger.Debug("PayBatch upload still pending")
		}
		return false, nil
	}

	applied, err := decodeApplied(record.AppliedJSON)
	if err != nil {
		logger.WithError(err).Warn("Ignoring unreadable applied results")
		applied = map[string]struct{}{}
	}

	var firstErr error
	newlyApplied := 0
	for _, row := range out.TransResults {
		key := resultKey(row)
		if _, done := applied[key]; done {
			continue
		}
		if err := s.applyTransResult(ctx, logger, row); err != nil {
			firstErr = keepFirstErr(firstErr, err)
			continue
		}
		applied[key] = struct{}{}
		newlyApplied++
	}
	if firstErr != nil {
		if newlyApplied > 0 {
			if err := s.uploads.SetApplied(ctx, record.ID, encodeApplied(applied)); err != nil {
				firstErr = keepFirstErr(firstErr, err)
			}
		}
		return false, firstErr
	}

	if err := s.uploads.Delete(ctx, record.ID); err != nil {
		return false, err
	}
	logger.WithField("results", len(out.TransResults)).Info("PayBatch upload reconciled")

	return true, nil
}

// resultKey identifies a result row across query runs.
func resultKey(row string) string {
	if result, err := ParseTransResult(row); err == nil && result.TransactionID != "" {
		return result.TransactionID
	}
	return strings.TrimSpace(row)
}

func decodeApplied(raw string) (map[string]struct{}, error) {
	applied := map[string]struct{}{}
	if strings.TrimSpace(raw) == "" {
		return applied, nil
	}
	var keys []string
	if err := json.Unmarshal([]byte(raw), &keys); err != nil {
		return nil, err
	}
	for _, key := range keys {
		applied[key] = struct{}{}
	}
	return applied, nil
}

func encodeApplied(applied map[string]struct{}) string {
	keys := make([]string, 0, len(applied))
	for key := range applied {
		keys = append(keys, key)
	}
	sort.Strings(keys)
	encoded, _ := json.Marshal(keys)
	return string(encoded)
}

// applyTransResult returns an error only when the order store fails. Malformed rows and
// unknown orders are logged and skipped since retrying them cannot succeed.
func (s *BatchService) applyTransResult(ctx context.Context, logger logrus.FieldLogger, row string) error {
	result, err := ParseTransResult(row)
	if err != nil {
		logger.WithError(err).WithField("row", row).Warn("Skipping malformed PayBatch result")
		return nil
	}
	orderID, err := OrderIDFromReference(result.Reference)
	if err != nil {
		logger.WithError(err).Warn("Skipping PayBatch result without order id")
		return nil
	}

	order, err := s.orders.FindByID(ctx, orderID)
	if err != nil {
		return err
	}
	if order == nil {
		logger.WithField("order_id", orderID).Warn("Skipping PayBatch result for unknown order")
		return nil
	}
	logger = logger.WithField("order_id", orderID)

	if !result.Approved() {
		s.metrics.Result("declined")
		addNote(ctx, s.notes, logger, orderID, noteBatchNotSuccessful)
		return nil
	}

	s.metrics.Result("approved")
	if _, err := s.orders.UpdateStatus(ctx, orderID, entity.OrderStatusPaid); err != nil {
		return err
	}
	addNote(ctx, s.notes, logger, orderID, noteBatchSuccessful)

	return nil
}
