package handler

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"reflect"
	"strings"

	"github.com/ayo6706/economy-ledger/internal/api/problem"
	"github.com/go-playground/validator/v10"
)

const maxBodyBytes = 1 << 20

var validate = newValidator()

// newValidator reports fields by their JSON names.
func newValidator() *validator.Validate {
	v := validator.New(validator.WithRequiredStructEnabled())
	v.RegisterTagNameFunc(func(f reflect.StructField) string {
		name := strings.SplitN(f.Tag.Get("json"), ",", 2)[0]
		if name == "-" {
			return ""
		}
		return name
	})
	return v
}

// decodeBody reads a JSON body into dst and runs struct validation. It writes
// the problem response itself and reports false when the request is rejected.
func decodeBody(w http.ResponseWriter, r *http.Request, dst any, allowEmpty bool) bool {
	dec := json.NewDecoder(io.LimitReader(r.Body, maxBodyBytes))
	dec.DisallowUnknownFields()
	if err := dec.Decode(dst); err != nil {
		if !(allowEmpty && errors.Is(err, io.EOF)) {
			problem.WriteCode(w, r, http.StatusBadRequest, problem.Type("request/invalid-body"), "INVALID_BODY", "invalid request body")
			return false
		}
	}
	if err := validate.Struct(dst); err != nil {
		var verrs validator.ValidationErrors
		if !errors.As(err, &verrs) {
			problem.WriteCode(w, r, http.StatusBadRequest, problem.Type("request/invalid-body"), "INVALID_BODY", err.Error())
			return false
		}
		params := make(map[string]string, len(verrs))
		for _, fe := range verrs {
			params[fe.Field()] = fmt.Sprintf("failed on '%s' validation", fe.Tag())
		}
		problem.WriteDetails(w, r, problem.Details{
			Type:          problem.Type("request/validation-failed"),
			Status:        http.StatusBadRequest,
			Code:          "VALIDATION_FAILED",
			Detail:        "request validation failed",
			InvalidParams: params,
		})
		return false
	}
	return true
}
