package controller

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"path"
	"strings"
	"time"

	"github.com/labstack/echo/v4"
	"github.com/labstack/echo/v4/middleware"
	"github.com/xeonx/timeago"

	"github.com/walaka/erp/invoicing"
	"github.com/walaka/erp/model"
)

type appError struct {
	Code   string // stable internal code for ops and support
	Status int    // HTTP status
	Err    error  // original error, never shown to the client
	Public string // safe text for the user (optional)
}

func (e *appError) Error() string { return fmt.Sprintf("%s: %v", e.Code, e.Err) }
func (e *appError) Unwrap() error { return e.Err }

func ErrNotFound(err error) *appError {
	return &appError{Code: "NOT_FOUND", Status: http.StatusNotFound, Err: err}
}
func ErrInvalid(err error, public string) *appError {
	return &appError{Code: "INVALID_INPUT", Status: http.StatusBadRequest, Err: err, Public: public}
}
func ErrInternal(err error) *appError {
	return &appError{Code: "INTERNAL", Status: http.StatusInternalServerError, Err: err}
}

var timeagoEnglish = timeago.NoMax(timeago.English)

// TokenResolver turns a user access token into an actor.
type TokenResolver interface {
	Resolve(ctx context.Context, token string) (invoicing.Actor, error)
}

// Deps is everything the HTTP layer needs. Publisher and Identity may be nil.
type Deps struct {
	Store       *model.Store
	Publisher   invoicing.Publisher
	Identity    TokenResolver
	Transitions invoicing.TransitionTable
	Logger      *slog.Logger
}

type controller struct {
	model       *model.Store
	publisher   invoicing.Publisher
	identity    TokenResolver
	transitions invoicing.TransitionTable
	allocators  map[model.DocumentType]*invoicing.Allocator
	receipts    *invoicing.Allocator
	logger      *slog.Logger
}

func newController(d Deps) *controller {
	ctrl := &controller{
		model:       d.Store,
		publisher:   d.Publisher,
		identity:    d.Identity,
		transitions: d.Transitions,
		allocators:  map[model.DocumentType]*invoicing.Allocator{},
		logger:      d.Logger,
	}
	if ctrl.transitions == nil {
		ctrl.transitions = invoicing.DefaultTransitions()
	}
	if ctrl.logger == nil {
		ctrl.logger = slog.Default()
	}
	cfg := d.Store.Config
	attempts := invoicing.DefaultMaxAttempts
	if cfg != nil && cfg.Invoice.MaxAllocationAttempts > 0 {
		attempts = cfg.Invoice.MaxAllocationAttempts
	}
	// one allocator per sequence; the allocator serialises its own calls
	for _, dt := range model.DocumentTypes {
		prefix := dt.DefaultPrefix()
		if cfg != nil {
			prefix = cfg.Prefix(dt)
		}
		ctrl.allocators[dt] = invoicing.NewAllocator(d.Store, invoicing.ContextIdentity{},
			invoicing.WithPrefix(prefix),
			invoicing.WithMaxAttempts(attempts),
			invoicing.WithAllocatorLogger(ctrl.logger))
	}
	receiptPrefix := model.DefaultReceiptPrefix
	if cfg != nil {
		receiptPrefix = cfg.ReceiptPrefix()
	}
	ctrl.receipts = invoicing.NewAllocator(d.Store.ReceiptNumbers(), invoicing.ContextIdentity{},
		invoicing.WithPrefix(receiptPrefix),
		invoicing.WithMaxAttempts(attempts),
		invoicing.WithAllocatorLogger(ctrl.logger))
	return ctrl
}

// NewLogger returns the process logger for mode: text at debug level in
// development, JSON at info level otherwise.
func NewLogger(mode string) *slog.Logger {
	if mode == "development" {
		return slog.New(slog.NewTextHandler(os.Stdout, &slog.HandlerOptions{Level: slog.LevelDebug}))
	}
	return slog.New(slog.NewJSONHandler(os.Stdout, &slog.HandlerOptions{Level: slog.LevelInfo}))
}

// NewServer builds the echo instance with all routes.
func NewServer(d Deps) *echo.Echo {
	ctrl := newController(d)
	logger := ctrl.logger

	e := echo.New()
	e.HideBanner = true
	e.HidePort = true
	e.Validator = newValidator()

	e.Pre(middleware.RemoveTrailingSlash())
	e.Use(middleware.BodyLimit("5M"))
	e.Use(middleware.RequestID()) // adds X-Request-ID
	e.Use(middleware.RecoverWithConfig(middleware.RecoverConfig{
		DisablePrintStack: true,
	}))

	e.Use(func(next echo.HandlerFunc) echo.HandlerFunc {
		return func(c echo.Context) error {
			start := time.Now()

			req := c.Request()
			res := c.Response()
			rid := res.Header().Get(echo.HeaderXRequestID)

			reqLogger := logger.With(
				"request_id", rid,
			).WithGroup("http").With(
				"method", req.Method,
				"path", req.URL.Path,
				"remote_ip", c.RealIP(),
			)
			c.Set("logger", reqLogger)

			err := next(c)
			if err != nil {
				// let the error handler write the status before we log it
				c.Error(err)
				err = nil
			}

			if shouldSkipAccessLog(c) {
				return err
			}
			latency := time.Since(start)

			attrs := []any{
				"status", res.Status,
				"latency_ms", float64(latency.Microseconds()) / 1000.0,
			}
			switch {
			case res.Status >= 500:
				reqLogger.Error("http_request", attrs...)
			case res.Status >= 400:
				reqLogger.Warn("http_request", attrs...)
			default:
				reqLogger.Info("http_request", attrs...)
			}
			return err
		}
	})

	// log everything internally, send only a safe payload
	e.HTTPErrorHandler = func(err error, c echo.Context) {
		if c.Response().Committed {
			return
		}
		l := requestLogger(c, logger)

		var ae *appError
		var he *echo.HTTPError
		switch {
		case errors.As(err, &ae):
		case errors.As(err, &he):
			public := ""
			if he.Code >= 400 && he.Code < 500 {
				public = fmt.Sprint(he.Message)
			}
			ae = &appError{
				Code:   httpStatusToCode(he.Code),
				Status: he.Code,
				Err:    fmt.Errorf("%v", he.Message),
				Public: public,
			}
		default:
			ae = classify(err)
		}

		attrs := []any{
			"status", ae.Status,
			"code", ae.Code,
			"error", ae.Err.Error(),
		}
		if ae.Status >= 500 {
			l.Error("handler_error", attrs...)
		} else {
			l.Warn("handler_error", attrs...)
		}

		_ = respond(c, ae.Status, &APIError{
			Code:      ae.Code,
			Message:   userMessage(ae),
			RequestID: c.Response().Header().Get(echo.HeaderXRequestID),
		})
	}

	e.GET("/healthz", ctrl.healthz)
	ctrl.apiInit(e)
	return e
}

// Run serves until ctx is cancelled and then shuts down gracefully.
func Run(ctx context.Context, d Deps, port int) error {
	e := NewServer(d)
	errc := make(chan error, 1)
	go func() {
		errc <- e.Start(fmt.Sprintf(":%d", port))
	}()

	select {
	case err := <-errc:
		if errors.Is(err, http.ErrServerClosed) {
			return nil
		}
		return fmt.Errorf("cannot start application %w", err)
	case <-ctx.Done():
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := e.Shutdown(shutdownCtx); err != nil {
		return fmt.Errorf("shutdown: %w", err)
	}
	return nil
}

func (ctrl *controller) healthz(c echo.Context) error {
	sqlDB, err := ctrl.model.DB().DB()
	if err == nil {
		err = sqlDB.PingContext(c.Request().Context())
	}
	if err != nil {
		return &appError{Code: "UNAVAILABLE", Status: http.StatusServiceUnavailable, Err: err}
	}
	return c.JSON(http.StatusOK, map[string]string{"status": "ok"})
}

// classify maps domain errors to HTTP errors.
func classify(err error) *appError {
	var ite *invoicing.InvalidTransitionError
	switch {
	case errors.As(err, &ite):
		return &appError{Code: "INVALID_TRANSITION", Status: http.StatusBadRequest, Err: err,
			Public: fmt.Sprintf("An invoice in status %s cannot move to %s.", ite.From, ite.To)}
	case errors.Is(err, invoicing.ErrUnknownStatus):
		return ErrInvalid(err, "Unknown status.")
	case errors.Is(err, invoicing.ErrAuthentication), errors.Is(err, invoicing.ErrNoEnvironment):
		return &appError{Code: "UNAUTHORIZED", Status: http.StatusUnauthorized, Err: err}
	case errors.Is(err, invoicing.ErrNotFound):
		return &appError{Code: "NOT_FOUND", Status: http.StatusNotFound, Err: err, Public: "Invoice not found."}
	case errors.Is(err, model.ErrClientNotFound):
		return &appError{Code: "NOT_FOUND", Status: http.StatusNotFound, Err: err, Public: "Client not found."}
	case errors.Is(err, model.ErrTokenNotFound):
		return &appError{Code: "NOT_FOUND", Status: http.StatusNotFound, Err: err, Public: "Token not found."}
	case errors.Is(err, model.ErrProductNotFound):
		return &appError{Code: "NOT_FOUND", Status: http.StatusNotFound, Err: err, Public: "Product not found."}
	case errors.Is(err, model.ErrReceiptNotFound):
		return &appError{Code: "NOT_FOUND", Status: http.StatusNotFound, Err: err, Public: "Receipt not found."}
	case errors.Is(err, model.ErrUserNotFound):
		return &appError{Code: "NOT_FOUND", Status: http.StatusNotFound, Err: err, Public: "User not found."}
	case errors.Is(err, model.ErrUserDisabled):
		return &appError{Code: "UNAUTHORIZED", Status: http.StatusUnauthorized, Err: err}
	case errors.Is(err, model.ErrUserExists):
		return &appError{Code: "USER_EXISTS", Status: http.StatusConflict, Err: err,
			Public: "The user is already registered."}
	case errors.Is(err, model.ErrRelatedInvoice):
		return &appError{Code: "RELATED_INVOICE_INVALID", Status: http.StatusBadRequest, Err: err,
			Public: "Credit and debit notes must refer to an open invoice of type invoice."}
	case errors.Is(err, model.ErrCreditExceedsInvoice):
		return &appError{Code: "CREDIT_EXCEEDS_INVOICE", Status: http.StatusConflict, Err: err,
			Public: "The credit notes would exceed the total of the invoice."}
	case errors.Is(err, model.ErrInvoiceNotPaid):
		return &appError{Code: "INVOICE_NOT_PAID", Status: http.StatusConflict, Err: err,
			Public: "Receipts can only be issued for paid invoices."}
	case errors.Is(err, model.ErrReceiptExceedsBalance):
		return &appError{Code: "AMOUNT_EXCEEDS_BALANCE", Status: http.StatusConflict, Err: err,
			Public: "The amount exceeds the open balance of the invoice."}
	case errors.Is(err, invoicing.ErrStatusConflict):
		return &appError{Code: "STATUS_CONFLICT", Status: http.StatusConflict, Err: err,
			Public: "The invoice status was changed concurrently. Reload and try again."}
	case errors.Is(err, invoicing.ErrAllocation):
		return &appError{Code: "ALLOCATION_FAILED", Status: http.StatusServiceUnavailable, Err: err,
			Public: "No invoice number could be allocated. Please try again."}
	case errors.Is(err, invoicing.ErrUniquenessConflict):
		return &appError{Code: "NUMBER_TAKEN", Status: http.StatusConflict, Err: err}
	case errors.Is(err, model.ErrInvoiceLocked):
		return &appError{Code: "INVOICE_LOCKED", Status: http.StatusConflict, Err: err,
			Public: "The invoice can no longer be edited or deleted."}
	case errors.Is(err, model.ErrClientInUse):
		return &appError{Code: "CLIENT_IN_USE", Status: http.StatusConflict, Err: err,
			Public: "The client still has invoices."}
	case errors.Is(err, echo.ErrNotFound):
		return ErrNotFound(err)
	case errors.Is(err, echo.ErrMethodNotAllowed):
		return &appError{Code: "METHOD_NOT_ALLOWED", Status: http.StatusMethodNotAllowed, Err: err}
	default:
		return ErrInternal(err)
	}
}

func requestLogger(c echo.Context, fallback *slog.Logger) *slog.Logger {
	if l, ok := c.Get("logger").(*slog.Logger); ok && l != nil {
		return l
	}
	return fallback
}

func userMessage(ae *appError) string {
	if ae.Public != "" {
		return ae.Public
	}
	switch ae.Code {
	case "INVALID_INPUT":
		return "The input is invalid. Please check it and send it again."
	case "NOT_FOUND":
		return "The requested resource was not found."
	case "UNAUTHORIZED":
		return "Authentication required."
	case "FORBIDDEN":
		return "You are not allowed to do this."
	case "METHOD_NOT_ALLOWED":
		return "This HTTP method is not supported here."
	default:
		return "An error occurred. Please try again later."
	}
}

func httpStatusToCode(status int) string {
	switch status {
	case 400:
		return "INVALID_INPUT"
	case 401:
		return "UNAUTHORIZED"
	case 403:
		return "FORBIDDEN"
	case 404:
		return "NOT_FOUND"
	case 405:
		return "METHOD_NOT_ALLOWED"
	case 413:
		return "TOO_LARGE"
	default:
		if status >= 500 {
			return "INTERNAL"
		}
		return "ERROR"
	}
}

func shouldSkipAccessLog(c echo.Context) bool {
	p := c.Request().URL.Path
	switch p {
	case "/favicon.ico", "/robots.txt", "/healthz":
		return true
	}
	ext := strings.ToLower(path.Ext(p))
	switch ext {
	case ".ico", ".png", ".svg":
		return true
	}
	m := c.Request().Method
	if m == http.MethodHead || m == http.MethodOptions {
		return true
	}
	return false
}
