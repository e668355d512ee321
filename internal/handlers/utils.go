package handlers

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"

	"wolf-backend/internal/auth"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"
)

// maxBodyBytes bounds JSON request bodies.
const maxBodyBytes = 1 << 20

// sessionFromRequest returns the session the auth middleware attached.
func sessionFromRequest(r *http.Request) (*auth.Session, bool) {
	return auth.SessionFromContext(r.Context())
}

// uuidParam parses a chi URL parameter as a UUID.
func uuidParam(r *http.Request, name string) (uuid.UUID, error) {
	raw := chi.URLParam(r, name)
	id, err := uuid.Parse(raw)
	if err != nil {
		return uuid.Nil, fmt.Errorf("invalid %s %q", name, raw)
	}
	return id, nil
}

// decodeJSON decodes a bounded request body into dst. An empty body leaves
// dst untouched.
func decodeJSON(w http.ResponseWriter, r *http.Request, dst interface{}) error {
	defer r.Body.Close()
	dec := json.NewDecoder(http.MaxBytesReader(w, r.Body, maxBodyBytes))
	if err := dec.Decode(dst); err != nil && !errors.Is(err, io.EOF) {
		return err
	}
	return nil
}
