package apperror

import (
	"encoding/json"
	"errors"
	"net/http"
)

type errorBody struct {
	Error errorDetail `json:"error"`
}

type errorDetail struct {
	Code    string `json:"code"`
	Message string `json:"message"`
}

// WriteJSON renders err as {"error":{"code","message"}} with the status of its Kind.
// Unclassified errors never leak their text.
func WriteJSON(w http.ResponseWriter, err error) {
	kind := KindOf(err)

	msg := http.StatusText(kind.HTTPStatus())
	var e *Error
	if errors.As(err, &e) && e.Message != "" {
		msg = e.Message
	}

	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(kind.HTTPStatus())
	_ = json.NewEncoder(w).Encode(errorBody{Error: errorDetail{Code: CodeOf(err), Message: msg}})
}
