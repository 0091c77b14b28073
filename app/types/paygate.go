// Package types holds the HTTP request and response shapes of the PayGate endpoints.
package types

import (
	"errors"
	"strconv"
	"strings"

	"github.com/labstack/echo/v4"
)

type HealthResponse struct {
	Status string `json:"status"`
}

type ErrorResponse struct {
	Error string `json:"error"`
}

type StartCheckoutRequest struct {
	OrderId uint64
}

func NewStartCheckoutRequestFromContext(ctx echo.Context) (*StartCheckoutRequest, error) {
	id, err := strconv.ParseUint(strings.TrimSpace(ctx.Param("order_id")), 10, 64)
	if err != nil {
		return nil, err
	}
	return &StartCheckoutRequest{OrderId: id}, nil
}

func (r *StartCheckoutRequest) GetOrderId() uint64 {
	if r == nil {
		return 0
	}
	return r.OrderId
}

func (r *StartCheckoutRequest) Validate() error {
	if r.GetOrderId() == 0 {
		return errors.New("order_id must be > 0")
	}
	return nil
}

// CheckoutResponse carries the fields the browser posts to the PayHost process page, or the
// cancel URL and notice when the attempt could not start.
type CheckoutResponse struct {
	State      string            `json:"state"`
	Fields     map[string]string `json:"fields,omitempty"`
	CancelUrl  string            `json:"cancel_url,omitempty"`
	Notice     string            `json:"notice,omitempty"`
	NoticeType string            `json:"notice_type,omitempty"`
}

// RedirectRequest is the form PayHost makes the payer's browser post back after payment.
type RedirectRequest struct {
	PayRequestId      string
	TransactionStatus string
	Checksum          string
}

func NewRedirectRequestFromContext(ctx echo.Context) (*RedirectRequest, error) {
	if _, err := ctx.FormParams(); err != nil {
		return nil, err
	}
	return &RedirectRequest{
		PayRequestId:      strings.TrimSpace(ctx.FormValue("PAY_REQUEST_ID")),
		TransactionStatus: strings.TrimSpace(ctx.FormValue("TRANSACTION_STATUS")),
		Checksum:          strings.TrimSpace(ctx.FormValue("CHECKSUM")),
	}, nil
}

func (r *RedirectRequest) GetPayRequestId() string {
	if r == nil {
		return ""
	}
	return r.PayRequestId
}

func (r *RedirectRequest) GetTransactionStatus() string {
	if r == nil {
		return ""
	}
	return r.TransactionStatus
}

func (r *RedirectRequest) GetChecksum() string {
	if r == nil {
		return ""
	}
	return r.Checksum
}
