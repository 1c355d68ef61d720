package problem

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestWriteCode(t *testing.T) {
	r := httptest.NewRequest(http.MethodPost, "/v1/wallet/exchange", nil)
	r.Header.Set("X-Trace-ID", "trace-1")
	w := httptest.NewRecorder()

	WriteCode(w, r, http.StatusUnprocessableEntity, Type("ledger/insufficient-balance"), "INSUFFICIENT_BALANCE", "not enough diamonds")

	assert.Equal(t, http.StatusUnprocessableEntity, w.Code)
	assert.Equal(t, "application/problem+json", w.Header().Get("Content-Type"))
	var d Details
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &d))
	assert.Equal(t, "INSUFFICIENT_BALANCE", d.Code)
	assert.Equal(t, "Unprocessable Entity", d.Title)
	assert.Equal(t, "/v1/wallet/exchange", d.Instance)
	assert.Equal(t, "trace-1", d.RequestID)
}

func TestWriteDefaultsType(t *testing.T) {
	w := httptest.NewRecorder()
	Write(w, nil, http.StatusNotFound, "", "", "missing")

	var d Details
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &d))
	assert.Equal(t, "about:blank", d.Type)
	assert.Empty(t, d.Code)
}
