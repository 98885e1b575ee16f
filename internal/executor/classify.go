package executor

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"mime"
	"net"
	"net/http"
	"strconv"
	"strings"
	"syscall"
)

const (
	timeoutMessage        = "Request timeout"
	defaultFailureMessage = "Request failed after multiple attempts"
)

// classifyError maps a transport error to an outcome. parent is the caller's
// context and attemptCtx the per-attempt context carrying the timeout.
func classifyError(parent, attemptCtx context.Context, err error) Outcome {
	if parent.Err() != nil {
		return OutcomeUnrecognized
	}

	if errors.Is(attemptCtx.Err(), context.DeadlineExceeded) || errors.Is(err, context.DeadlineExceeded) {
		return OutcomeTimeout
	}

	var timeoutErr interface{ Timeout() bool }
	if errors.As(err, &timeoutErr) && timeoutErr.Timeout() {
		return OutcomeTimeout
	}

	if isNetworkError(err) {
		return OutcomeNetworkFailure
	}

	return OutcomeUnrecognized
}

func isNetworkError(err error) bool {
	var opErr *net.OpError
	if errors.As(err, &opErr) {
		return true
	}

	var dnsErr *net.DNSError
	if errors.As(err, &dnsErr) {
		return true
	}

	switch {
	case errors.Is(err, syscall.ECONNREFUSED),
		errors.Is(err, syscall.ECONNRESET),
		errors.Is(err, syscall.ECONNABORTED),
		errors.Is(err, syscall.EPIPE),
		errors.Is(err, io.EOF),
		errors.Is(err, io.ErrUnexpectedEOF):
		return true
	}

	return false
}

// IsJSONContentType reports whether a Content-Type header names a JSON body.
func IsJSONContentType(contentType string) bool {
	if contentType == "" {
		return false
	}

	mediaType, _, err := mime.ParseMediaType(contentType)
	if err != nil {
		mediaType = strings.TrimSpace(strings.SplitN(contentType, ";", 2)[0])
	}
	mediaType = strings.ToLower(mediaType)

	return mediaType == "application/json" || strings.HasSuffix(mediaType, "+json")
}

// decodeSuccess returns the parsed JSON body, or the raw text when the body is
// not JSON or does not parse.
func decodeSuccess(header http.Header, body []byte) any {
	if len(body) == 0 {
		return nil
	}

	if IsJSONContentType(header.Get("Content-Type")) {
		var data any
		if err := json.Unmarshal(body, &data); err == nil {
			return data
		}
	}

	return string(body)
}

// decodeError returns the error body: parsed JSON when possible, otherwise
// {"detail": text}. JSON that fails to parse falls back to the status text.
func decodeError(resp *http.Response, body []byte) any {
	if IsJSONContentType(resp.Header.Get("Content-Type")) {
		var data any
		if err := json.Unmarshal(body, &data); err == nil {
			return data
		}
		return map[string]any{"detail": statusText(resp)}
	}

	text := string(body)
	if text == "" {
		text = statusText(resp)
	}
	return map[string]any{"detail": text}
}

// errorMessage prefers the backend's detail or message field.
func errorMessage(status int, text string, body any) string {
	if m, ok := body.(map[string]any); ok {
		for _, key := range []string{"detail", "message", "error"} {
			if s, ok := m[key].(string); ok && s != "" {
				return s
			}
		}
	}
	return fmt.Sprintf("HTTP %d: %s", status, text)
}

func statusText(resp *http.Response) string {
	text := strings.TrimSpace(strings.TrimPrefix(resp.Status, strconv.Itoa(resp.StatusCode)))
	if text == "" {
		text = http.StatusText(resp.StatusCode)
	}
	return text
}
