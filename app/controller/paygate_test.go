package controller

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"net/url"
	"strings"
	"testing"

	"github.com/labstack/echo/v4"
	"github.com/vibast-solutions/ms-go-paygate/app/service"
	"github.com/vibast-solutions/ms-go-paygate/app/types"
)

type stubPaygateService struct {
	startResult *service.CheckoutResult
	startErr    error
	started     []uint64

	outcome     *service.RedirectOutcome
	redirectErr error
	redirects   []service.RedirectForm
}

func (s *stubPaygateService) StartPayment(_ context.Context, orderID uint64) (*service.CheckoutResult, error) {
	s.started = append(s.started, orderID)
	return s.startResult, s.startErr
}

func (s *stubPaygateService) HandleRedirect(_ context.Context, req service.RedirectForm) (*service.RedirectOutcome, error) {
	s.redirects = append(s.redirects, req)
	return s.outcome, s.redirectErr
}

func newCheckoutContext(orderID string) (echo.Context, *httptest.ResponseRecorder) {
	e := echo.New()
	req := httptest.NewRequest(http.MethodPost, "/checkout/"+orderID, nil)
	rec := httptest.NewRecorder()
	ctx := e.NewContext(req, rec)
	ctx.SetParamNames("order_id")
	ctx.SetParamValues(orderID)
	return ctx, rec
}

func newRedirectContext(form url.Values) (echo.Context, *httptest.ResponseRecorder) {
	e := echo.New()
	req := httptest.NewRequest(http.MethodPost, "/payhost/redirect", strings.NewReader(form.Encode()))
	req.Header.Set(echo.HeaderContentType, echo.MIMEApplicationForm)
	req.Header.Set(echo.HeaderXRequestID, "req-1")
	rec := httptest.NewRecorder()
	return e.NewContext(req, rec), rec
}

func TestHealth(t *testing.T) {
	ctrl := NewPaygateController(&stubPaygateService{})
	e := echo.New()
	rec := httptest.NewRecorder()
	ctx := e.NewContext(httptest.NewRequest(http.MethodGet, "/health", nil), rec)

	if err := ctrl.Health(ctx); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if rec.Code != http.StatusOK || !strings.Contains(rec.Body.String(), `"ok"`) {
		t.Fatalf("unexpected health response: %d %s", rec.Code, rec.Body.String())
	}
}

func TestStartCheckoutReturnsRedirectFields(t *testing.T) {
	svc := &stubPaygateService{startResult: &service.CheckoutResult{
		State:  service.StateAwaitingRedirect,
		Fields: map[string]string{"PAY_REQUEST_ID": "req-71", "CHECKSUM": "abc"},
	}}
	ctrl := NewPaygateController(svc)
	ctx, rec := newCheckoutContext("71")

	if err := ctrl.StartCheckout(ctx); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", rec.Code)
	}

	var body types.CheckoutResponse
	if err := json.Unmarshal(rec.Body.Bytes(), &body); err != nil {
		t.Fatalf("decode response: %v", err)
	}
	if body.State != string(service.StateAwaitingRedirect) || body.Fields["PAY_REQUEST_ID"] != "req-71" {
		t.Fatalf("unexpected checkout response: %+v", body)
	}
	if len(svc.started) != 1 || svc.started[0] != 71 {
		t.Fatalf("expected StartPayment(71), got %v", svc.started)
	}
}

func TestStartCheckoutErrors(t *testing.T) {
	cases := []struct {
		name     string
		orderID  string
		err      error
		wantCode int
	}{
		{name: "bad id", orderID: "abc", wantCode: http.StatusBadRequest},
		{name: "zero id", orderID: "0", wantCode: http.StatusBadRequest},
		{name: "unknown order", orderID: "5", err: service.ErrOrderNotFound, wantCode: http.StatusNotFound},
		{name: "store failure", orderID: "5", err: errors.New("db down"), wantCode: http.StatusInternalServerError},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			ctrl := NewPaygateController(&stubPaygateService{startErr: tc.err})
			ctx, rec := newCheckoutContext(tc.orderID)

			if err := ctrl.StartCheckout(ctx); err != nil {
				t.Fatalf("unexpected error: %v", err)
			}
			if rec.Code != tc.wantCode {
				t.Fatalf("expected %d, got %d", tc.wantCode, rec.Code)
			}
		})
	}
}

func TestHandleRedirectFollowsOutcome(t *testing.T) {
	svc := &stubPaygateService{outcome: &service.RedirectOutcome{
		State:       service.StateCompleted,
		RedirectURL: "https://shop.example/checkout/order-received/71/",
	}}
	ctrl := NewPaygateController(svc)

	form := url.Values{}
	form.Set("PAY_REQUEST_ID", "req-71")
	form.Set("TRANSACTION_STATUS", "1")
	form.Set("CHECKSUM", "abc")
	ctx, rec := newRedirectContext(form)

	if err := ctrl.HandleRedirect(ctx); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if rec.Code != http.StatusSeeOther {
		t.Fatalf("expected 303, got %d", rec.Code)
	}
	if got := rec.Header().Get(echo.HeaderLocation); got != "https://shop.example/checkout/order-received/71/" {
		t.Fatalf("unexpected location: %s", got)
	}
	if len(svc.redirects) != 1 || svc.redirects[0].GetPayRequestId() != "req-71" || svc.redirects[0].GetTransactionStatus() != "1" {
		t.Fatalf("unexpected forwarded redirect: %+v", svc.redirects)
	}
}

func TestHandleRedirectRejectedStillRedirects(t *testing.T) {
	svc := &stubPaygateService{
		outcome:     &service.RedirectOutcome{State: service.StateRejected, RedirectURL: "/index.php/checkout"},
		redirectErr: service.ErrChecksumMismatch,
	}
	ctrl := NewPaygateController(svc)
	ctx, rec := newRedirectContext(url.Values{})

	if err := ctrl.HandleRedirect(ctx); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if rec.Code != http.StatusSeeOther || rec.Header().Get(echo.HeaderLocation) != "/index.php/checkout" {
		t.Fatalf("unexpected response: %d %s", rec.Code, rec.Header().Get(echo.HeaderLocation))
	}
}

func TestHandleRedirectCarriesNotice(t *testing.T) {
	svc := &stubPaygateService{outcome: &service.RedirectOutcome{
		State:       service.StateDeclined,
		RedirectURL: "https://shop.example/cart/?cancel_order=true&order_id=71",
		Notice:      "Your order was declined by the bank.",
		NoticeType:  "error",
	}}
	ctrl := NewPaygateController(svc)
	ctx, rec := newRedirectContext(url.Values{"PAY_REQUEST_ID": {"req-71"}})

	if err := ctrl.HandleRedirect(ctx); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	location, err := url.Parse(rec.Header().Get(echo.HeaderLocation))
	if err != nil {
		t.Fatalf("parse location: %v", err)
	}
	q := location.Query()
	if q.Get("order_id") != "71" || q.Get("notice") != "Your order was declined by the bank." || q.Get("notice_type") != "error" {
		t.Fatalf("unexpected redirect query: %s", location.RawQuery)
	}
}
