package httpapi

import (
	"encoding/json"
	"net/http"

	"github.com/you/courseq/internal/domain"
)

type errorBody struct {
	Error struct {
		Kind    string `json:"kind"`
		Message string `json:"message"`
	} `json:"error"`
}

func (s *Server) respondJSON(w http.ResponseWriter, status int, body any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(body); err != nil {
		s.log.Warnw("response encode failed", "error", err)
	}
}

// respondError maps the domain taxonomy onto status codes. Unclassified
// errors are internal: logged with context, reported without detail.
func (s *Server) respondError(w http.ResponseWriter, err error) {
	kind := domain.KindOf(err)
	status := http.StatusInternalServerError
	msg := err.Error()

	switch kind {
	case domain.KindValidation:
		status = http.StatusBadRequest
	case domain.KindNotFound:
		status = http.StatusNotFound
	case domain.KindConflict:
		status = http.StatusConflict
	default:
		kind = "internal"
		msg = "internal error"
		s.log.Errorw("internal error", "error", err)
	}

	var body errorBody
	body.Error.Kind = string(kind)
	body.Error.Message = msg
	s.respondJSON(w, status, body)
}
