package httpapi

import (
	"encoding/json"
	"errors"
	"io"
	"net/http"

	"github.com/dmitrijs2005/mailkeeper/internal/common"
)

// Response is the envelope of every JSON reply. Message holds the
// localization key of a failed call.
type Response struct {
	Status  string `json:"status"`
	Message string `json:"message,omitempty"`
	Data    any    `json:"data,omitempty"`
}

func writeJSON(w http.ResponseWriter, status int, data any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(Response{Status: "success", Data: data})
}

func writeError(w http.ResponseWriter, err error) {
	status, msg := httpStatus(err)
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(Response{Status: "error", Message: msg})
}

var kindStatuses = []struct {
	kind   error
	status int
}{
	{common.ErrValidation, http.StatusBadRequest},
	{common.ErrPolicy, http.StatusForbidden},
	{common.ErrForbidden, http.StatusForbidden},
	{common.ErrorConflict, http.StatusConflict},
	{common.ErrorNotFound, http.StatusNotFound},
	{common.ErrorUnauthorized, http.StatusUnauthorized},
	{common.ErrExternalService, http.StatusBadGateway},
	{common.ErrConfiguration, http.StatusInternalServerError},
}

func httpStatus(err error) (int, string) {
	msg := common.MessageKey(err)
	for _, ks := range kindStatuses {
		if errors.Is(err, ks.kind) {
			if msg == "" {
				msg = ks.kind.Error()
			}
			return ks.status, msg
		}
	}
	return http.StatusInternalServerError, common.ErrorInternal.Error()
}

func decodeJSON(r *http.Request, v any) error {
	dec := json.NewDecoder(http.MaxBytesReader(nil, r.Body, 1<<20))
	if err := dec.Decode(v); err != nil && !errors.Is(err, io.EOF) {
		return common.ErrMalformedRequest
	}
	return nil
}
