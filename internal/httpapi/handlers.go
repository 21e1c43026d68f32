package httpapi

import (
	"errors"
	"io"
	"net/http"
	"strconv"
	"strings"

	"github.com/gorilla/mux"
	"github.com/pubky/homeserver/internal/authtoken"
	"github.com/pubky/homeserver/internal/authz"
	"github.com/pubky/homeserver/internal/session"
	"github.com/pubky/homeserver/internal/store"
	"github.com/pubky/homeserver/internal/zbase32"
)

// pubkyFromRequest extracts and decodes the {pubky} route variable shared
// by every route under /{pubky}/..., writing a 400 and returning ok=false
// on a malformed (wrong-length or bad-alphabet) z-base32 key so handlers
// never run their body logic against a key that didn't decode.
func pubkyFromRequest(w http.ResponseWriter, r *http.Request) (pubky []byte, ok bool) {
	pubky, err := zbase32.DecodePublicKey(mux.Vars(r)["pubky"])
	if err != nil {
		http.Error(w, "malformed public key", http.StatusBadRequest)
		return nil, false
	}
	return pubky, true
}

// handleSignin backs both POST /signup and POST /session: spec.md §4.5
// treats the two as aliases of the same verify-then-create-session flow.
func (s *Server) handleSignin(w http.ResponseWriter, r *http.Request) {
	body, err := io.ReadAll(io.LimitReader(r.Body, maxBodyBytes))
	if err != nil {
		http.Error(w, "failed to read body", http.StatusBadRequest)
		return
	}

	tok, err := s.Verifier.Verify(body)
	if err != nil {
		http.Error(w, authErrorMessage(err), http.StatusBadRequest)
		return
	}

	ctx := r.Context()
	if err := s.Store.UpsertUser(ctx, tok.Pubky); err != nil {
		http.Error(w, "storage error", http.StatusInternalServerError)
		return
	}

	ua := r.Header.Get("User-Agent")
	sess := store.Session{
		Version:      0,
		Pubky:        tok.Pubky,
		Name:         ua,
		UserAgent:    ua,
		Capabilities: tok.Capabilities,
	}
	secret, err := s.Store.CreateSession(ctx, sess)
	if err != nil {
		http.Error(w, "storage error", http.StatusInternalServerError)
		return
	}

	created, ok, err := s.Store.GetSession(ctx, secret)
	if err != nil || !ok {
		http.Error(w, "storage error", http.StatusInternalServerError)
		return
	}

	session.SetCookie(w, r, tok.Pubky, secret)
	w.Header().Set("Content-Type", "application/octet-stream")
	w.Write(created.Marshal())
}

// handleSessionGet backs GET /:pubky/session.
func (s *Server) handleSessionGet(w http.ResponseWriter, r *http.Request) {
	pubky, ok := pubkyFromRequest(w, r)
	if !ok {
		return
	}
	secret, err := session.SecretFromRequest(r, pubky)
	if err != nil {
		http.Error(w, "no session", http.StatusNotFound)
		return
	}
	sess, ok, err := s.Store.GetSession(r.Context(), secret)
	if err != nil {
		http.Error(w, "storage error", http.StatusInternalServerError)
		return
	}
	if !ok {
		http.Error(w, "no session", http.StatusNotFound)
		return
	}
	w.Header().Set("Content-Type", "application/octet-stream")
	w.Write(sess.Marshal())
}

// handleSessionDelete backs DELETE /:pubky/session.
func (s *Server) handleSessionDelete(w http.ResponseWriter, r *http.Request) {
	pubky, ok := pubkyFromRequest(w, r)
	if !ok {
		return
	}
	secret, err := session.SecretFromRequest(r, pubky)
	if err != nil {
		http.Error(w, "no session cookie", http.StatusUnauthorized)
		return
	}
	if _, err := s.Store.DeleteSession(r.Context(), secret); err != nil {
		http.Error(w, "storage error", http.StatusInternalServerError)
		return
	}
	session.ClearCookie(w, r, pubky)
	w.WriteHeader(http.StatusOK)
}

// handlePathPut backs PUT /:pubky/*path.
func (s *Server) handlePathPut(w http.ResponseWriter, r *http.Request) {
	pubky, ok := pubkyFromRequest(w, r)
	if !ok {
		return
	}
	path := mux.Vars(r)["path"]

	if err := s.authorizeWrite(r, pubky, path); err != nil {
		writeAuthzError(w, err)
		return
	}

	r.Body = http.MaxBytesReader(w, r.Body, maxBodyBytes)
	data, err := io.ReadAll(r.Body)
	if err != nil {
		http.Error(w, "body too large", http.StatusBadRequest)
		return
	}

	// content_type is never populated from the request, matching the
	// original server's own behavior (spec.md §9 leaves this unresolved;
	// the original always stores it empty).
	if err := s.Store.PutEntry(r.Context(), pubky, path, data, ""); err != nil {
		http.Error(w, "storage error", http.StatusInternalServerError)
		return
	}
	w.WriteHeader(http.StatusOK)
}

// handlePathGet backs GET /:pubky/*path: a blob when path names a live
// entry, a text listing when path ends with '/', otherwise 404.
func (s *Server) handlePathGet(w http.ResponseWriter, r *http.Request) {
	vars := mux.Vars(r)
	pubkyStr := vars["pubky"]
	pubky, ok := pubkyFromRequest(w, r)
	if !ok {
		return
	}
	path := vars["path"]

	if strings.HasSuffix(path, "/") || path == "" {
		s.handleList(w, r, pubkyStr, path)
		return
	}

	data, ok, err := s.Store.GetBlob(r.Context(), pubky, path)
	if err != nil {
		http.Error(w, "storage error", http.StatusInternalServerError)
		return
	}
	if !ok {
		http.Error(w, "not found", http.StatusNotFound)
		return
	}
	w.Header().Set("Content-Type", "application/octet-stream")
	w.Write(data)
}

// handleList serves the directory-listing branch of GET /:pubky/*path.
func (s *Server) handleList(w http.ResponseWriter, r *http.Request, pubkyStr, path string) {
	prefix := pubkyStr + "/" + path

	exists, err := s.Store.ContainsDirectory(r.Context(), prefix)
	if err != nil {
		http.Error(w, "storage error", http.StatusInternalServerError)
		return
	}
	if !exists {
		http.Error(w, "directory not found", http.StatusNotFound)
		return
	}

	q := r.URL.Query()

	params := store.ListParams{
		PathPrefix:   prefix,
		Reverse:      queryFlag(q, "reverse"),
		Shallow:      queryFlag(q, "shallow"),
		Cursor:       q.Get("cursor"),
		DefaultLimit: s.DefaultListLimit,
		MaxLimit:     s.MaxListLimit,
	}
	if limStr := q.Get("limit"); limStr != "" {
		lim, err := strconv.ParseUint(limStr, 10, 16)
		if err != nil {
			http.Error(w, "malformed limit", http.StatusBadRequest)
			return
		}
		params.Limit = uint16(lim)
	}

	urls, err := s.Store.List(r.Context(), params)
	if err != nil {
		http.Error(w, "storage error", http.StatusInternalServerError)
		return
	}
	w.Header().Set("Content-Type", "text/plain")
	w.Write([]byte(strings.Join(urls, "\n")))
}

// handlePathDelete backs DELETE /:pubky/*path.
func (s *Server) handlePathDelete(w http.ResponseWriter, r *http.Request) {
	pubky, ok := pubkyFromRequest(w, r)
	if !ok {
		return
	}
	path := mux.Vars(r)["path"]

	if err := s.authorizeWrite(r, pubky, path); err != nil {
		writeAuthzError(w, err)
		return
	}

	deleted, err := s.Store.DeleteEntry(r.Context(), pubky, path)
	if err != nil {
		http.Error(w, "storage error", http.StatusInternalServerError)
		return
	}
	if !deleted {
		http.Error(w, "not found", http.StatusNotFound)
		return
	}
	w.WriteHeader(http.StatusOK)
}

// handleEvents backs GET /events/.
func (s *Server) handleEvents(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	limit := 100
	if limStr := q.Get("limit"); limStr != "" {
		if n, err := strconv.Atoi(limStr); err == nil && n > 0 {
			limit = n
		}
	}

	lines, err := s.Store.ListEvents(r.Context(), store.ListEventsParams{
		Limit:  limit,
		Cursor: q.Get("cursor"),
	})
	if err != nil {
		http.Error(w, "bad cursor", http.StatusBadRequest)
		return
	}
	w.Header().Set("Content-Type", "text/plain")
	w.Write([]byte(strings.Join(lines, "\n")))
}

// handlePkarrPut backs PUT /pkarr/:pubky.
func (s *Server) handlePkarrPut(w http.ResponseWriter, r *http.Request) {
	pubky, ok := pubkyFromRequest(w, r)
	if !ok {
		return
	}
	payload, err := io.ReadAll(io.LimitReader(r.Body, maxBodyBytes))
	if err != nil {
		http.Error(w, "failed to read body", http.StatusBadRequest)
		return
	}
	if err := s.Relay.Put(r.Context(), pubky, payload); err != nil {
		http.Error(w, "invalid signed packet", http.StatusBadRequest)
		return
	}
	w.WriteHeader(http.StatusOK)
}

// handlePkarrGet backs GET /pkarr/:pubky.
func (s *Server) handlePkarrGet(w http.ResponseWriter, r *http.Request) {
	pubky, ok := pubkyFromRequest(w, r)
	if !ok {
		return
	}
	payload, ok, err := s.Relay.Get(r.Context(), pubky)
	if err != nil {
		http.Error(w, "storage error", http.StatusInternalServerError)
		return
	}
	if !ok {
		http.Error(w, "not found", http.StatusNotFound)
		return
	}
	w.Header().Set("Content-Type", "application/octet-stream")
	w.Write(payload)
}

// authorizeWrite loads the cookie-bound session for pubky and checks it
// against the capability-scoped write gate in spec.md §4.5.
func (s *Server) authorizeWrite(r *http.Request, pubky []byte, path string) error {
	secret, err := session.SecretFromRequest(r, pubky)
	if err != nil {
		return errNoSessionCookie
	}
	sess, ok, err := s.Store.GetSession(r.Context(), secret)
	if err != nil {
		return err
	}
	if !ok {
		return errNoSessionCookie
	}
	return authz.CheckWrite(sess.Pubky, pubky, sess.Capabilities, path)
}

var errNoSessionCookie = errors.New("httpapi: no session cookie")

func writeAuthzError(w http.ResponseWriter, err error) {
	if errors.Is(err, errNoSessionCookie) {
		http.Error(w, "no session cookie", http.StatusUnauthorized)
		return
	}
	var azErr *authz.Error
	if errors.As(err, &azErr) {
		http.Error(w, azErr.Message, http.StatusForbidden)
		return
	}
	http.Error(w, "storage error", http.StatusInternalServerError)
}

func queryFlag(q map[string][]string, name string) bool {
	_, ok := q[name]
	return ok
}

func authErrorMessage(err error) string {
	switch {
	case errors.Is(err, authtoken.ErrTooShort):
		return "auth token too short"
	case errors.Is(err, authtoken.ErrUnknownVersion):
		return "unknown auth token version"
	case errors.Is(err, authtoken.ErrTooFarInFuture):
		return "auth token timestamp too far in the future"
	case errors.Is(err, authtoken.ErrExpired):
		return "auth token expired"
	case errors.Is(err, authtoken.ErrInvalidSignature):
		return "invalid auth token signature"
	case errors.Is(err, authtoken.ErrAlreadyUsed):
		return "auth token already used"
	default:
		return "invalid auth token"
	}
}
