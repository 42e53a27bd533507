package server

import (
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
)

const maxBodyBytes = 1 << 20

type fieldIssue struct {
	Path    string `json:"path"`
	Message string `json:"message"`
}

type errorBody struct {
	Error        bool         `json:"error"`
	ErrorMessage string       `json:"error_message"`
	Code         string       `json:"code,omitempty"`
	Errors       []fieldIssue `json:"errors,omitempty"`
}

// apiError 带 HTTP 状态码的业务错误
type apiError struct {
	Status  int
	Message string
	Code    string
}

func (e *apiError) Error() string { return e.Message }

func notFound(msg, code string) *apiError {
	return &apiError{Status: http.StatusNotFound, Message: msg, Code: code}
}

// validationError 请求参数校验失败，对应 400 "Validation error"
type validationError struct {
	Issues []fieldIssue
}

func (e *validationError) Error() string {
	if len(e.Issues) == 0 {
		return "validation error"
	}
	return fmt.Sprintf("validation error: %s: %s", e.Issues[0].Path, e.Issues[0].Message)
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json; charset=utf-8")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

func writeError(w http.ResponseWriter, status int, msg string) {
	writeJSON(w, status, errorBody{Error: true, ErrorMessage: msg})
}

// writeErr 把 error 映射到统一错误信封
func writeErr(w http.ResponseWriter, err error) {
	var ae *apiError
	var ve *validationError
	switch {
	case errors.As(err, &ve):
		writeJSON(w, http.StatusBadRequest, errorBody{Error: true, ErrorMessage: "Validation error", Errors: ve.Issues})
	case errors.As(err, &ae):
		writeJSON(w, ae.Status, errorBody{Error: true, ErrorMessage: ae.Message, Code: ae.Code})
	default:
		serverLog.WithError(err).Error("internal error")
		writeError(w, http.StatusInternalServerError, err.Error())
	}
}

// decodeJSON 解析请求体；失败返回 400
func decodeJSON(w http.ResponseWriter, r *http.Request, v any) error {
	r.Body = http.MaxBytesReader(w, r.Body, maxBodyBytes)
	if err := json.NewDecoder(r.Body).Decode(v); err != nil {
		return &apiError{Status: http.StatusBadRequest, Message: "invalid json body"}
	}
	return nil
}
