package payment

import (
	"log/slog"
	"net/http"
	"strconv"

	"github.com/labstack/echo/v4"

	"github.com/callogan/library-service-api/app/echoServer/jwtx"
	"github.com/callogan/library-service-api/model"
	payrepo "github.com/callogan/library-service-api/repository/payment"
	ps "github.com/callogan/library-service-api/service/payment"
)

type Controller struct {
	Svc ps.Service
	Log *slog.Logger
}

// GET /v1/payments/success?session_id=...
func (h *Controller) Success(c echo.Context) error {
	sessionID := c.QueryParam("session_id")
	if sessionID == "" {
		return c.JSON(http.StatusBadRequest, echo.Map{"message": "missing session_id"})
	}

	p, err := h.Svc.ReconcileSuccess(c.Request().Context(), sessionID)
	if err != nil {
		switch ps.Code(err) {
		case ps.ErrPaymentNotFound:
			return c.JSON(http.StatusNotFound, echo.Map{"message": "payment not found"})
		case ps.ErrPaymentNotConfirmed:
			return c.JSON(http.StatusBadRequest, echo.Map{"message": "payment not confirmed by provider"})
		case ps.ErrPaymentProvider:
			h.Log.Error("payment success", "err", err)
			return c.JSON(http.StatusBadGateway, echo.Map{"message": "payment provider unavailable"})
		default:
			h.Log.Error("payment success", "err", err)
			return c.JSON(http.StatusInternalServerError, echo.Map{"message": "internal error"})
		}
	}
	return c.JSON(http.StatusOK, p)
}

// GET /v1/payments/cancel?session_id=...
func (h *Controller) Cancel(c echo.Context) error {
	sessionID := c.QueryParam("session_id")
	if sessionID == "" {
		return c.JSON(http.StatusBadRequest, echo.Map{"message": "missing session_id"})
	}

	p, msg, err := h.Svc.Cancel(c.Request().Context(), sessionID)
	if err != nil {
		if ps.Code(err) == ps.ErrPaymentNotFound {
			return c.JSON(http.StatusNotFound, echo.Map{"message": "payment not found"})
		}
		h.Log.Error("payment cancel", "err", err)
		return c.JSON(http.StatusInternalServerError, echo.Map{"message": "internal error"})
	}
	return c.JSON(http.StatusOK, echo.Map{
		"message": msg,
		"payment": p,
	})
}

// POST /v1/payments/:id/recreate
func (h *Controller) Recreate(c echo.Context) error {
	id, err := strconv.ParseInt(c.Param("id"), 10, 64)
	if err != nil || id <= 0 {
		return c.JSON(http.StatusBadRequest, echo.Map{"message": "invalid id"})
	}
	requester, err := jwtx.RequesterFromContext(c)
	if err != nil {
		return c.JSON(http.StatusUnauthorized, echo.Map{"message": "unauthorized"})
	}

	out, err := h.Svc.Recreate(c.Request().Context(), requester, id)
	if err != nil {
		switch ps.Code(err) {
		case ps.ErrNotFoundOrForbidden:
			return c.JSON(http.StatusNotFound, echo.Map{"message": "payment not found"})
		case ps.ErrPaymentProvider:
			h.Log.Error("payment recreate", "err", err)
			return c.JSON(http.StatusBadGateway, echo.Map{"message": "payment provider unavailable"})
		default:
			h.Log.Error("payment recreate", "err", err)
			return c.JSON(http.StatusInternalServerError, echo.Map{"message": "internal error"})
		}
	}
	return c.JSON(http.StatusOK, out)
}

// POST /v1/payments/open  (admin; reopens checkout for a returned borrowing
// whose session could not be created)
func (h *Controller) Open(c echo.Context) error {
	var req struct {
		BorrowingID int64 `json:"borrowing_id"`
	}
	if err := c.Bind(&req); err != nil || req.BorrowingID <= 0 {
		return c.JSON(http.StatusBadRequest, echo.Map{"message": "invalid borrowing_id"})
	}

	p, err := h.Svc.Open(c.Request().Context(), req.BorrowingID)
	if err != nil {
		switch ps.Code(err) {
		case ps.ErrNotFoundOrForbidden:
			return c.JSON(http.StatusNotFound, echo.Map{"message": "borrowing not found"})
		case ps.ErrPaymentProvider:
			h.Log.Error("payment open", "err", err)
			return c.JSON(http.StatusBadGateway, echo.Map{"message": "payment provider unavailable"})
		default:
			h.Log.Error("payment open", "err", err)
			return c.JSON(http.StatusInternalServerError, echo.Map{"message": "internal error"})
		}
	}
	return c.JSON(http.StatusCreated, p)
}

// GET /v1/payments
func (h *Controller) List(c echo.Context) error {
	requester, err := jwtx.RequesterFromContext(c)
	if err != nil {
		return c.JSON(http.StatusUnauthorized, echo.Map{"message": "unauthorized"})
	}

	var f payrepo.Filter
	if v := c.QueryParam("status"); v != "" {
		st := model.PaymentStatus(v)
		switch st {
		case model.PaymentPending, model.PaymentPaid, model.PaymentExpired:
			f.Status = &st
		default:
			return c.JSON(http.StatusBadRequest, echo.Map{"message": "invalid status filter"})
		}
	}

	out, err := h.Svc.List(c.Request().Context(), requester, f)
	if err != nil {
		h.Log.Error("payment list", "err", err)
		return c.JSON(http.StatusInternalServerError, echo.Map{"message": "internal error"})
	}
	return c.JSON(http.StatusOK, echo.Map{"data": out})
}

// GET /v1/payments/:id
func (h *Controller) Detail(c echo.Context) error {
	id, err := strconv.ParseInt(c.Param("id"), 10, 64)
	if err != nil || id <= 0 {
		return c.JSON(http.StatusBadRequest, echo.Map{"message": "invalid id"})
	}
	requester, err := jwtx.RequesterFromContext(c)
	if err != nil {
		return c.JSON(http.StatusUnauthorized, echo.Map{"message": "unauthorized"})
	}

	p, err := h.Svc.Get(c.Request().Context(), requester, id)
	if err != nil {
		if ps.Code(err) == ps.ErrNotFoundOrForbidden {
			return c.JSON(http.StatusNotFound, echo.Map{"message": "payment not found"})
		}
		h.Log.Error("payment detail", "err", err)
		return c.JSON(http.StatusInternalServerError, echo.Map{"message": "internal error"})
	}
	return c.JSON(http.StatusOK, p)
}
