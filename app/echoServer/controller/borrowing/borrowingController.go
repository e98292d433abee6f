package borrowing

import (
	"context"
	"log/slog"
	"net/http"
	"strconv"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/labstack/echo/v4"

	"github.com/callogan/library-service-api/app/echoServer/jwtx"
	bs "github.com/callogan/library-service-api/service/borrowing"
)

// Scheduler defers the post-creation overdue check.
type Scheduler interface {
	Defer(name string, fn func(ctx context.Context) error)
}

type Controller struct {
	Svc bs.Service
	V   *validator.Validate
	Log *slog.Logger

	// Sched and OverdueCheck together trigger the deferred scan after each
	// successful create.
	Sched        Scheduler
	OverdueCheck func(ctx context.Context) error
}

// POST /v1/borrowings
func (h *Controller) Create(c echo.Context) error {
	var req CreateBorrowingReq
	if err := c.Bind(&req); err != nil {
		return c.JSON(http.StatusBadRequest, echo.Map{"message": "invalid JSON"})
	}
	if err := h.V.Struct(req); err != nil {
		return c.JSON(http.StatusBadRequest, echo.Map{
			"message": "validation error",
			"errors":  err.Error(),
		})
	}
	expected, err := time.Parse("2006-01-02", req.ExpectedReturnDate)
	if err != nil {
		return c.JSON(http.StatusBadRequest, echo.Map{"message": "invalid expected_return_date"})
	}
	requester, err := jwtx.RequesterFromContext(c)
	if err != nil {
		return c.JSON(http.StatusUnauthorized, echo.Map{"message": "unauthorized"})
	}

	b, err := h.Svc.Create(c.Request().Context(), requester.UserID, req.BookID, expected)
	if err != nil {
		switch bs.Code(err) {
		case bs.ErrBookNotFound:
			return c.JSON(http.StatusNotFound, echo.Map{"message": "book not found"})
		case bs.ErrInventoryExhausted:
			return c.JSON(http.StatusConflict, echo.Map{"message": "no copies available"})
		case bs.ErrUnpaidBalance:
			return c.JSON(http.StatusConflict, echo.Map{"message": "pending payment exists, settle it first"})
		case bs.ErrInvalidReturnDate:
			return c.JSON(http.StatusBadRequest, echo.Map{"message": "expected return date is in the past"})
		default:
			h.Log.Error("borrowing create", "err", err)
			return c.JSON(http.StatusInternalServerError, echo.Map{"message": "internal error"})
		}
	}

	if h.Sched != nil && h.OverdueCheck != nil {
		h.Sched.Defer("post-create overdue check", h.OverdueCheck)
	}

	return c.JSON(http.StatusCreated, b)
}

// POST /v1/borrowings/:id/return
func (h *Controller) Return(c echo.Context) error {
	id, err := strconv.ParseInt(c.Param("id"), 10, 64)
	if err != nil || id <= 0 {
		return c.JSON(http.StatusBadRequest, echo.Map{"message": "invalid id"})
	}
	requester, err := jwtx.RequesterFromContext(c)
	if err != nil {
		return c.JSON(http.StatusUnauthorized, echo.Map{"message": "unauthorized"})
	}

	b, p, err := h.Svc.Return(c.Request().Context(), requester, id)
	if err != nil {
		switch bs.Code(err) {
		case bs.ErrNotFoundOrForbidden:
			return c.JSON(http.StatusNotFound, echo.Map{"message": "borrowing not found"})
		case bs.ErrAlreadyReturned:
			return c.JSON(http.StatusConflict, echo.Map{"message": "book has been already returned"})
		case bs.ErrPaymentProvider:
			h.Log.Error("payment session after return", "err", err)
			// The return persisted; tell the caller the checkout is missing.
			return c.JSON(http.StatusBadGateway, echo.Map{
				"message":   "book returned, but the payment session could not be created",
				"borrowing": b,
			})
		default:
			h.Log.Error("borrowing return", "err", err)
			return c.JSON(http.StatusInternalServerError, echo.Map{"message": "internal error"})
		}
	}

	return c.JSON(http.StatusOK, echo.Map{
		"status":    "book returned",
		"borrowing": b,
		"payment":   p,
	})
}

// GET /v1/borrowings
func (h *Controller) List(c echo.Context) error {
	requester, err := jwtx.RequesterFromContext(c)
	if err != nil {
		return c.JSON(http.StatusUnauthorized, echo.Map{"message": "unauthorized"})
	}

	var f bs.ListFilter
	if v := c.QueryParam("user"); v != "" {
		uid, perr := strconv.ParseInt(v, 10, 64)
		if perr != nil {
			return c.JSON(http.StatusBadRequest, echo.Map{"message": "invalid user filter"})
		}
		f.UserID = &uid
	}
	switch c.QueryParam("is_active") {
	case "true":
		t := true
		f.ActiveOnly = &t
	case "false":
		fv := false
		f.ActiveOnly = &fv
	}

	rows, err := h.Svc.List(c.Request().Context(), requester, f)
	if err != nil {
		h.Log.Error("borrowing list", "err", err)
		return c.JSON(http.StatusInternalServerError, echo.Map{"message": "internal error"})
	}
	return c.JSON(http.StatusOK, echo.Map{"data": rows})
}

// GET /v1/borrowings/:id
func (h *Controller) Detail(c echo.Context) error {
	id, err := strconv.ParseInt(c.Param("id"), 10, 64)
	if err != nil || id <= 0 {
		return c.JSON(http.StatusBadRequest, echo.Map{"message": "invalid id"})
	}
	requester, err := jwtx.RequesterFromContext(c)
	if err != nil {
		return c.JSON(http.StatusUnauthorized, echo.Map{"message": "unauthorized"})
	}

	d, err := h.Svc.Get(c.Request().Context(), requester, id)
	if err != nil {
		if bs.Code(err) == bs.ErrNotFoundOrForbidden {
			return c.JSON(http.StatusNotFound, echo.Map{"message": "borrowing not found"})
		}
		h.Log.Error("borrowing detail", "err", err)
		return c.JSON(http.StatusInternalServerError, echo.Map{"message": "internal error"})
	}
	return c.JSON(http.StatusOK, d)
}
