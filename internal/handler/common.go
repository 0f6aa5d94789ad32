// Package handler holds the echo HTTP handlers. Handlers bind and validate
// the request, call one service method and render the result or error.
package handler

import (
	"context"
	"errors"
	"net/http"
	"reflect"
	"strconv"
	"strings"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/labstack/echo/v4"
	"go.uber.org/zap"

	"github.com/iliyamo/storefront-api/internal/apperr"
	"github.com/iliyamo/storefront-api/internal/repository"
)

const requestTimeout = 5 * time.Second

// reqCtx bounds the service call made on behalf of a request.
func reqCtx(c echo.Context) (context.Context, context.CancelFunc) {
	return context.WithTimeout(c.Request().Context(), requestTimeout)
}

// Validator adapts go-playground/validator to echo.Validator and reports
// failures as a validation error keyed by JSON field name.
type Validator struct{ v *validator.Validate }

func NewValidator() *Validator {
	v := validator.New(validator.WithRequiredStructEnabled())
	v.RegisterTagNameFunc(func(f reflect.StructField) string {
		name, _, _ := strings.Cut(f.Tag.Get("json"), ",")
		if name == "-" {
			return ""
		}
		return name
	})
	return &Validator{v: v}
}

func (cv *Validator) Validate(i any) error {
	err := cv.v.Struct(i)
	if err == nil {
		return nil
	}
	var fields validator.ValidationErrors
	if !errors.As(err, &fields) {
		return apperr.Validation("invalid request")
	}
	details := make(map[string]any, len(fields))
	for _, fe := range fields {
		details[fe.Field()] = describe(fe)
	}
	return apperr.Validation("request validation failed").WithDetails(details)
}

func describe(fe validator.FieldError) string {
	switch fe.Tag() {
	case "required":
		return "is required"
	case "email":
		return "must be a valid email address"
	case "min":
		if fe.Kind() == reflect.String {
			return "must be at least " + fe.Param() + " characters"
		}
		return "must be at least " + fe.Param()
	case "max":
		if fe.Kind() == reflect.String {
			return "must be at most " + fe.Param() + " characters"
		}
		return "must be at most " + fe.Param()
	case "eqfield":
		return "must match " + strings.ToLower(fe.Param())
	}
	return "failed " + fe.Tag() + " check"
}

// bind decodes the body into dst and validates it.
func bind(c echo.Context, dst any) error {
	if err := c.Bind(dst); err != nil {
		return apperr.Validation("invalid request body")
	}
	if c.Echo().Validator == nil {
		return nil
	}
	return c.Validate(dst)
}

// respondError renders err as {"error", "code", "details"}. Causes of
// server-side failures are logged and never sent to the client.
func respondError(c echo.Context, log *zap.Logger, err error) error {
	var ae *apperr.Error
	if !errors.As(err, &ae) {
		ae = apperr.Internal(err, "internal server error")
	}
	status := ae.HTTPStatus()
	msg := ae.Message
	if status >= http.StatusInternalServerError {
		if log != nil {
			log.Error("request failed",
				zap.String("route", c.Path()),
				zap.String("code", string(ae.Code)),
				zap.String("request_id", c.Response().Header().Get(echo.HeaderXRequestID)),
				zap.Error(err))
		}
		if ae.Code == apperr.CodeInternal {
			msg = "internal server error"
		}
	}
	body := echo.Map{"error": msg, "code": ae.Code}
	if len(ae.Details) > 0 {
		body["details"] = ae.Details
	}
	return c.JSON(status, body)
}

func queryBool(c echo.Context, name string) (*bool, error) {
	raw := strings.TrimSpace(c.QueryParam(name))
	if raw == "" {
		return nil, nil
	}
	b, err := strconv.ParseBool(raw)
	if err != nil {
		return nil, apperr.Validation("%s must be true or false", name)
	}
	return &b, nil
}

func queryInt(c echo.Context, name string) (int, error) {
	raw := strings.TrimSpace(c.QueryParam(name))
	if raw == "" {
		return 0, nil
	}
	n, err := strconv.Atoi(raw)
	if err != nil {
		return 0, apperr.Validation("%s must be an integer", name)
	}
	return n, nil
}

func queryString(c echo.Context, name string) *string {
	raw := strings.TrimSpace(c.QueryParam(name))
	if raw == "" {
		return nil
	}
	return &raw
}

// queryTime accepts RFC 3339 timestamps or plain dates.
func queryTime(c echo.Context, name string) (*time.Time, error) {
	raw := strings.TrimSpace(c.QueryParam(name))
	if raw == "" {
		return nil, nil
	}
	for _, layout := range []string{time.RFC3339, time.DateOnly} {
		if t, err := time.Parse(layout, raw); err == nil {
			t = t.UTC()
			return &t, nil
		}
	}
	return nil, apperr.Validation("%s must be a date (YYYY-MM-DD) or RFC 3339 timestamp", name)
}

// searchParams reads the shared paging, sorting and keyword parameters.
func searchParams(c echo.Context) (repository.SearchParams, error) {
	var p repository.SearchParams
	var err error
	if p.PageNumber, err = queryInt(c, "page_number"); err != nil {
		return p, err
	}
	if p.PageSize, err = queryInt(c, "page_size"); err != nil {
		return p, err
	}
	inactive, err := queryBool(c, "include_inactive")
	if err != nil {
		return p, err
	}
	p.IncludeInactive = inactive != nil && *inactive
	p.Keyword = c.QueryParam("keyword")
	p.OrderBy = c.QueryParam("order_by")
	p.OrderDirection = c.QueryParam("order_direction")
	return p.Normalize(), nil
}

func includeInactive(c echo.Context) (bool, error) {
	b, err := queryBool(c, "include_inactive")
	return b != nil && *b, err
}

func listView[T, V any](items []T, fn func(T) V) []V {
	out := make([]V, len(items))
	for i, it := range items {
		out[i] = fn(it)
	}
	return out
}
