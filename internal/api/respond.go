package api

import (
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"strconv"
	"strings"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/sirupsen/logrus"

	"rentledger/internal/auth"
	"rentledger/internal/model"
)

const maxBodyBytes = 1 << 20

type envelope map[string]interface{}

func writeJSON(w http.ResponseWriter, status int, body envelope) {
	w.Header().Set("Content-Type", "application/json; charset=utf-8")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(body)
}

// ok writes a 200 success envelope with the given fields.
func ok(w http.ResponseWriter, body envelope) {
	if body == nil {
		body = envelope{}
	}
	body["success"] = true
	writeJSON(w, http.StatusOK, body)
}

var statusBySentinel = []struct {
	err    error
	status int
}{
	{model.ErrValidation, http.StatusBadRequest},
	{model.ErrUnauthenticated, http.StatusUnauthorized},
	{model.ErrInvalidCredential, http.StatusUnauthorized},
	{model.ErrForbidden, http.StatusForbidden},
	{model.ErrNotFound, http.StatusNotFound},
	{model.ErrConflict, http.StatusConflict},
}

// writeError maps a component error to a status code and writes its detail.
// Unclassified errors are logged and reported as a generic 500.
func (a *API) writeError(w http.ResponseWriter, r *http.Request, err error) {
	for _, s := range statusBySentinel {
		if errors.Is(err, s.err) {
			writeJSON(w, s.status, envelope{"success": false, "message": detail(err, s.err)})
			return
		}
	}
	a.Log.WithError(err).WithFields(logrus.Fields{
		"method":     r.Method,
		"path":       r.URL.Path,
		"request_id": middleware.GetReqID(r.Context()),
	}).Error("request failed")
	writeJSON(w, http.StatusInternalServerError, envelope{"success": false, "message": "internal server error"})
}

// detail strips the sentinel prefix that fmt.Errorf("%w: ...") adds.
func detail(err, sentinel error) string {
	msg := err.Error()
	if d, found := strings.CutPrefix(msg, sentinel.Error()+": "); found {
		return d
	}
	return msg
}

func decodeJSON(w http.ResponseWriter, r *http.Request, v interface{}) error {
	dec := json.NewDecoder(http.MaxBytesReader(w, r.Body, maxBodyBytes))
	if err := dec.Decode(v); err != nil {
		if errors.Is(err, model.ErrValidation) {
			return err
		}
		return fmt.Errorf("%w: invalid JSON payload", model.ErrValidation)
	}
	return nil
}

func pathID(r *http.Request) (int64, error) {
	raw := chi.URLParam(r, "id")
	id, err := strconv.ParseInt(raw, 10, 64)
	if err != nil {
		return 0, fmt.Errorf("%w: invalid id %q", model.ErrValidation, raw)
	}
	return id, nil
}

// caller returns the identity placed in the context by the auth middleware.
func caller(r *http.Request) model.Identity {
	id, _ := auth.IdentityFrom(r.Context())
	return id
}
