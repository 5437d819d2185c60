package httpx

import (
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"reflect"
	"strings"

	"github.com/adamdasovich/goldventure-sub001/internal/apperr"
	"github.com/adamdasovich/goldventure-sub001/internal/cart"
	"github.com/adamdasovich/goldventure-sub001/internal/inventory"
	"github.com/adamdasovich/goldventure-sub001/internal/logging"
	"github.com/adamdasovich/goldventure-sub001/internal/orders"
	"github.com/go-playground/validator/v10"
	"go.uber.org/zap"
)

var validate = newValidator()

func newValidator() *validator.Validate {
	v := validator.New(validator.WithRequiredStructEnabled())
	// report JSON names in errors
	v.RegisterTagNameFunc(func(fld reflect.StructField) string {
		name := strings.SplitN(fld.Tag.Get("json"), ",", 2)[0]
		if name == "-" {
			return ""
		}
		return name
	})
	return v
}

type fieldError struct {
	Field string `json:"field"`
	Rule  string `json:"rule"`
	Param string `json:"param,omitempty"`
}

type errorBody struct {
	Code    string `json:"code"`
	Message string `json:"message"`
	Details any    `json:"details,omitempty"`
}

func writeJSON(w http.ResponseWriter, code int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	_ = json.NewEncoder(w).Encode(v)
}

// decode reads a JSON body into dst and validates it. An empty body is
// allowed when allowEmpty is set.
func decode(w http.ResponseWriter, r *http.Request, dst any, allowEmpty bool) bool {
	dec := json.NewDecoder(io.LimitReader(r.Body, 1<<20))
	dec.DisallowUnknownFields()
	if err := dec.Decode(dst); err != nil && !(allowEmpty && errors.Is(err, io.EOF)) {
		writeJSON(w, http.StatusBadRequest, errorBody{Code: apperr.ErrInvalidInput.Code, Message: "invalid json: " + err.Error()})
		return false
	}
	if err := validate.Struct(dst); err != nil {
		var details []fieldError
		var verrs validator.ValidationErrors
		if errors.As(err, &verrs) {
			for _, e := range verrs {
				details = append(details, fieldError{Field: e.Field(), Rule: e.Tag(), Param: e.Param()})
			}
		}
		writeJSON(w, http.StatusBadRequest, errorBody{Code: apperr.ErrInvalidInput.Code, Message: "request validation failed", Details: details})
		return false
	}
	return true
}

var statusByCode = map[string]int{
	apperr.ErrInvalidInput.Code:          http.StatusBadRequest,
	apperr.ErrNotFound.Code:              http.StatusNotFound,
	apperr.ErrInsufficientInventory.Code: http.StatusConflict,
	apperr.ErrCheckoutInProgress.Code:    http.StatusConflict,
	apperr.ErrVersionConflict.Code:       http.StatusConflict,
	apperr.ErrIllegalTransition.Code:     http.StatusUnprocessableEntity,
	apperr.ErrPaymentDeclined.Code:       http.StatusPaymentRequired,
	apperr.ErrCheckoutExpired.Code:       http.StatusGone,
}

// writeError maps domain errors to HTTP responses. Anything unrecognised is
// logged and reported as 500 without internals.
func writeError(w http.ResponseWriter, r *http.Request, err error) {
	var (
		insufficient *inventory.InsufficientError
		transition   *orders.TransitionError
		conflict     *orders.ConflictError
	)
	switch {
	case errors.As(err, &insufficient):
		writeJSON(w, http.StatusConflict, errorBody{Code: apperr.ErrInsufficientInventory.Code, Message: err.Error(), Details: insufficient.Shortages})
		return
	case errors.As(err, &transition):
		writeJSON(w, http.StatusUnprocessableEntity, errorBody{Code: apperr.ErrIllegalTransition.Code, Message: err.Error(), Details: transition})
		return
	case errors.As(err, &conflict):
		writeJSON(w, http.StatusConflict, errorBody{Code: apperr.ErrVersionConflict.Code, Message: err.Error(), Details: conflict})
		return
	case errors.Is(err, cart.ErrStale):
		writeJSON(w, http.StatusConflict, errorBody{Code: apperr.ErrVersionConflict.Code, Message: err.Error()})
		return
	}

	code := apperr.Code(err)
	if status, ok := statusByCode[code]; ok {
		writeJSON(w, status, errorBody{Code: code, Message: err.Error()})
		return
	}
	logging.FromContext(r.Context(), zap.NewNop()).Error("request failed", zap.Error(err))
	writeJSON(w, http.StatusInternalServerError, errorBody{Code: "INTERNAL", Message: "internal error"})
}
