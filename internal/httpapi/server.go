// Package httpapi wires the homeserver's storage, session, authorization,
// and pkarr relay packages into the HTTP routes described in spec.md §6:
// signup/signin/signout/session, public PUT/GET/DELETE, directory listing,
// the events feed, and the pkarr relay.
package httpapi

import (
	"log"
	"net/http"
	"time"

	"github.com/gorilla/mux"
	"github.com/pubky/homeserver/internal/authtoken"
	"github.com/pubky/homeserver/internal/pkarr"
	"github.com/pubky/homeserver/internal/store"
)

// maxBodyBytes is the HTTP-layer body limit spec.md §5 calls out: "no
// per-request deadline is enforced by the core; the HTTP layer enforces a
// 16 KiB body limit."
const maxBodyBytes = 16 * 1024

// Server holds the dependencies shared by every route handler.
type Server struct {
	Store            *store.Store
	Verifier         *authtoken.AuthVerifier
	Relay            pkarr.Relay
	DefaultListLimit uint16
	MaxListLimit     uint16
}

// Router builds the gorilla/mux router for the full route table.
func (s *Server) Router() *mux.Router {
	r := mux.NewRouter()

	r.HandleFunc("/signup", s.handleSignin).Methods(http.MethodPost)
	r.HandleFunc("/session", s.handleSignin).Methods(http.MethodPost)

	r.HandleFunc("/events/", s.handleEvents).Methods(http.MethodGet)

	r.HandleFunc("/pkarr/{pubky}", s.handlePkarrPut).Methods(http.MethodPut)
	r.HandleFunc("/pkarr/{pubky}", s.handlePkarrGet).Methods(http.MethodGet)

	r.HandleFunc("/{pubky}/session", s.handleSessionGet).Methods(http.MethodGet)
	r.HandleFunc("/{pubky}/session", s.handleSessionDelete).Methods(http.MethodDelete)

	r.HandleFunc("/{pubky}/{path:.*}", s.handlePathPut).Methods(http.MethodPut)
	r.HandleFunc("/{pubky}/{path:.*}", s.handlePathGet).Methods(http.MethodGet)
	r.HandleFunc("/{pubky}/{path:.*}", s.handlePathDelete).Methods(http.MethodDelete)

	r.Use(recoveryMiddleware)
	r.Use(loggingMiddleware)
	return r
}

// loggingMiddleware logs method, path, status, and duration for every
// request.
func loggingMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		wrapped := &statusWriter{ResponseWriter: w, status: http.StatusOK}
		next.ServeHTTP(wrapped, r)
		log.Printf("%s %s %d %v", r.Method, r.URL.Path, wrapped.status, time.Since(start))
	})
}

// recoveryMiddleware turns a panicking handler into a 500 instead of
// crashing the listener.
func recoveryMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		defer func() {
			if err := recover(); err != nil {
				log.Printf("httpapi: panic: %v", err)
				http.Error(w, "Internal Server Error", http.StatusInternalServerError)
			}
		}()
		next.ServeHTTP(w, r)
	})
}

type statusWriter struct {
	http.ResponseWriter
	status int
}

func (w *statusWriter) WriteHeader(code int) {
	w.status = code
	w.ResponseWriter.WriteHeader(code)
}
