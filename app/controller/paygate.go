package controller

import (
	"context"
	"errors"
	"net/http"
	"net/url"

	"github.com/labstack/echo/v4"
	"github.com/sirupsen/logrus"
	"github.com/vibast-solutions/ms-go-paygate/app/factory"
	"github.com/vibast-solutions/ms-go-paygate/app/service"
	"github.com/vibast-solutions/ms-go-paygate/app/types"
)

type paygateService interface {
	StartPayment(ctx context.Context, orderID uint64) (*service.CheckoutResult, error)
	HandleRedirect(ctx context.Context, req service.RedirectForm) (*service.RedirectOutcome, error)
}

type PaygateController struct {
	paymentService paygateService
	logger         logrus.FieldLogger
}

func NewPaygateController(paymentService paygateService) *PaygateController {
	return &PaygateController{
		paymentService: paymentService,
		logger:         factory.NewModuleLogger("paygate-controller"),
	}
}

func (c *PaygateController) Health(ctx echo.Context) error {
	return ctx.JSON(http.StatusOK, &types.HealthResponse{Status: "ok"})
}

func (c *PaygateController) StartCheckout(ctx echo.Context) error {
	req, err := types.NewStartCheckoutRequestFromContext(ctx)
	if err != nil {
		return c.writeError(ctx, http.StatusBadRequest, "invalid order id")
	}
	if err := req.Validate(); err != nil {
		return c.writeError(ctx, http.StatusBadRequest, err.Error())
	}

	result, err := c.paymentService.StartPayment(ctx.Request().Context(), req.GetOrderId())
	if err != nil {
		if errors.Is(err, service.ErrOrderNotFound) {
			return c.writeError(ctx, http.StatusNotFound, "order not found")
		}
		factory.LoggerWithContext(c.logger, ctx).WithError(err).WithField("order_id", req.GetOrderId()).Error("Start checkout failed")
		return c.writeError(ctx, http.StatusInternalServerError, "internal server error")
	}

	return ctx.JSON(http.StatusOK, &types.CheckoutResponse{
		State:      string(result.State),
		Fields:     result.Fields,
		CancelUrl:  result.CancelURL,
		Notice:     result.Notice,
		NoticeType: result.NoticeType,
	})
}

// HandleRedirect always answers with a redirect; the payer's browser never sees an error page.
func (c *PaygateController) HandleRedirect(ctx echo.Context) error {
	req, err := types.NewRedirectRequestFromContext(ctx)
	if err != nil {
		req = &types.RedirectRequest{}
	}

	outcome, err := c.paymentService.HandleRedirect(ctx.Request().Context(), req)
	if err != nil {
		logger := factory.LoggerWithContext(c.logger, ctx).WithError(err)
		switch {
		case errors.Is(err, service.ErrCallbackRejected), errors.Is(err, service.ErrChecksumMismatch):
			logger.Warn("PayHost redirect rejected")
		default:
			logger.Error("PayHost redirect failed")
		}
	}

	return ctx.Redirect(http.StatusSeeOther, withNotice(outcome.RedirectURL, outcome.Notice, outcome.NoticeType))
}

func (c *PaygateController) writeError(ctx echo.Context, statusCode int, message string) error {
	return ctx.JSON(statusCode, &types.ErrorResponse{Error: message})
}

func withNotice(target, notice, noticeType string) string {
	if notice == "" {
		return target
	}
	u, err := url.Parse(target)
	if err != nil {
		return target
	}
	q := u.Query()
	q.Set("notice", notice)
	if noticeType != "" {
		q.Set("notice_type", noticeType)
	}
	u.RawQuery = q.Encode()
	return u.String()
}
