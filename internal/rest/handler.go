package rest

import (
	"net/http"
)

// HandlerFunc is a resource handler that reports failures as errors.
type HandlerFunc func(w http.ResponseWriter, r *http.Request) error

// Handle adapts fn to http.HandlerFunc. Errors known to the request's error
// mappers become their fixed responses; anything else is a 500.
func Handle(fn HandlerFunc) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		err := fn(w, r)
		if err == nil {
			return
		}
		WriteError(w, r, err)
	}
}

// WriteError writes the mapped response for err.
func WriteError(w http.ResponseWriter, r *http.Request, err error) {
	if resp, ok := ProvidersFrom(r.Context()).MapError(err); ok {
		w.Header().Set("Content-Type", resp.ContentType)
		w.WriteHeader(resp.Status)
		_, _ = w.Write([]byte(resp.Body))
		return
	}
	http.Error(w, http.StatusText(http.StatusInternalServerError), http.StatusInternalServerError)
}

// Write encodes v with the serializer negotiated from the Accept header.
func Write(w http.ResponseWriter, r *http.Request, status int, v any) error {
	s := ProvidersFrom(r.Context()).Negotiate(r.Header.Get("Accept"))
	body, err := s.Marshal(v)
	if err != nil {
		return err
	}
	w.Header().Set("Content-Type", s.ContentType())
	w.WriteHeader(status)
	_, err = w.Write(body)
	return err
}
