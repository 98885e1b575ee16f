package executor

import (
	"encoding/json"
	"fmt"
	"net/http"
)

// RequestDescriptor describes one logical request relative to the executor's base URL.
type RequestDescriptor struct {
	Path    string
	Method  string
	Headers map[string]string
	Body    []byte
}

func (d RequestDescriptor) method() string {
	if d.Method == "" {
		return http.MethodGet
	}
	return d.Method
}

// ErrorKind classifies a failed call.
type ErrorKind string

const (
	KindTimeout       ErrorKind = "timeout"
	KindNetwork       ErrorKind = "network"
	KindClientError   ErrorKind = "client_error"
	KindServerError   ErrorKind = "server_error"
	KindConfiguration ErrorKind = "configuration"
	KindProxy         ErrorKind = "proxy"
	KindUnrecognized  ErrorKind = "unrecognized"
)

// Retryable reports whether another attempt could succeed.
func (k ErrorKind) Retryable() bool {
	switch k {
	case KindTimeout, KindNetwork, KindServerError:
		return true
	default:
		return false
	}
}

// Failure is the failed half of a Result.
type Failure struct {
	Kind    ErrorKind
	Message string
	// Status is zero when no response was received.
	Status int
	// Body is the decoded upstream error body, if any.
	Body any
	// Retries is set only when every allowed attempt was used.
	Retries int
}

func (f *Failure) Error() string {
	if f.Status != 0 {
		return fmt.Sprintf("%s (status %d): %s", f.Kind, f.Status, f.Message)
	}
	return fmt.Sprintf("%s: %s", f.Kind, f.Message)
}

// Result is the outcome of one Execute call. OK is true exactly when Failure is nil.
type Result struct {
	OK      bool
	Status  int
	Data    any
	Failure *Failure
}

func succeeded(status int, data any) Result {
	return Result{OK: true, Status: status, Data: data}
}

func failed(f *Failure) Result {
	return Result{Failure: f}
}

// MarshalJSON renders the uniform client shape:
// {success:true, status, data} or {success:false, error, kind, status, errorBody, retries}.
func (r Result) MarshalJSON() ([]byte, error) {
	if r.OK {
		return json.Marshal(struct {
			Success bool `json:"success"`
			Status  int  `json:"status"`
			Data    any  `json:"data"`
		}{true, r.Status, r.Data})
	}

	f := r.Failure
	if f == nil {
		f = &Failure{Kind: KindUnrecognized, Message: defaultFailureMessage}
	}

	return json.Marshal(struct {
		Success   bool      `json:"success"`
		Error     string    `json:"error"`
		Kind      ErrorKind `json:"kind"`
		Status    int       `json:"status,omitempty"`
		ErrorBody any       `json:"errorBody,omitempty"`
		Retries   int       `json:"retries,omitempty"`
	}{false, f.Message, f.Kind, f.Status, f.Body, f.Retries})
}
