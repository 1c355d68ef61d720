package problem

import (
	"encoding/json"
	"net/http"
)

const contentType = "application/problem+json"
const baseTypeURL = "https://errors.economy-ledger.dev/"

// Details represents RFC 7807 Problem Details. Code is a stable machine-readable
// identifier clients can switch on.
type Details struct {
	Type          string            `json:"type"`
	Title         string            `json:"title"`
	Status        int               `json:"status"`
	Code          string            `json:"code,omitempty"`
	Detail        string            `json:"detail"`
	Instance      string            `json:"instance"`
	RequestID     string            `json:"request_id"`
	InvalidParams map[string]string `json:"invalid_params,omitempty"`
}

func Type(slug string) string {
	return baseTypeURL + slug
}

// Write sends RFC 7807-compliant errors.
func Write(w http.ResponseWriter, r *http.Request, status int, problemType, title, detail string) {
	WriteDetails(w, r, Details{Type: problemType, Title: title, Status: status, Detail: detail})
}

// WriteCode is Write with a stable error code.
func WriteCode(w http.ResponseWriter, r *http.Request, status int, problemType, code, detail string) {
	WriteDetails(w, r, Details{Type: problemType, Status: status, Code: code, Detail: detail})
}

// WriteDetails fills in defaults for title, type, instance and request id.
func WriteDetails(w http.ResponseWriter, r *http.Request, d Details) {
	if d.Title == "" {
		d.Title = http.StatusText(d.Status)
	}
	if d.Type == "" {
		d.Type = "about:blank"
	}
	if r != nil {
		d.Instance = r.URL.Path
		d.RequestID = r.Header.Get("X-Trace-ID")
	}
	if d.RequestID == "" {
		d.RequestID = w.Header().Get("X-Trace-ID")
	}

	w.Header().Set("Content-Type", contentType)
	w.WriteHeader(d.Status)
	_ = json.NewEncoder(w).Encode(d)
}
