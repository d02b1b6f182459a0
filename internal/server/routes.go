package server

import (
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"strconv"

	"github.com/go-chi/chi/v5"
	"go.uber.org/zap"

	"github.com/k0sti/snowclaw-memory/internal/bindings"
	"github.com/k0sti/snowclaw-memory/internal/codec"
	"github.com/k0sti/snowclaw-memory/internal/conflict"
	"github.com/k0sti/snowclaw-memory/internal/model"
	"github.com/k0sti/snowclaw-memory/internal/store"
)

func (s *Server) handleGetMemory(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")

	m, err := s.cache.Get(r.Context(), id)
	if err != nil {
		s.log.Error("get memory", zap.String("id", id), zap.Error(err))
		writeError(w, http.StatusInternalServerError, err.Error())
		return
	}
	if m == nil {
		writeError(w, http.StatusNotFound, "memory "+id+" not found")
		return
	}
	writeJSON(w, http.StatusOK, m)
}

type searchResponse struct {
	Results   []model.SearchResult `json:"results"`
	Conflicts []model.Conflict     `json:"conflicts"`
}

func (s *Server) handleSearch(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	p := store.SearchParams{
		Query: q.Get("q"),
		Tier:  q.Get("tier"),
		Group: q.Get("group"),
		Topic: q.Get("topic"),
	}
	if v := q.Get("limit"); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil || n < 0 {
			writeError(w, http.StatusBadRequest, "limit must be a non-negative integer")
			return
		}
		p.Limit = n
	}

	results, err := s.cache.RankedSearch(r.Context(), p, s.trust)
	if errors.Is(err, store.ErrInvalidParams) {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	if err != nil {
		s.log.Error("search", zap.String("query", p.Query), zap.Error(err))
		writeError(w, http.StatusInternalServerError, err.Error())
		return
	}

	memories := make([]model.Memory, len(results))
	for i, res := range results {
		memories[i] = res.Memory
	}
	writeJSON(w, http.StatusOK, searchResponse{
		Results:   results,
		Conflicts: conflict.Detect(memories),
	})
}

func (s *Server) handleIngestEvent(w http.ResponseWriter, r *http.Request) {
	body, err := io.ReadAll(http.MaxBytesReader(w, r.Body, maxBodyBytes))
	if err != nil {
		writeError(w, http.StatusBadRequest, "read body failed")
		return
	}

	m, err := codec.DecodeJSON(body)
	if err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}

	err = s.cache.CacheMemory(r.Context(), m, body)
	switch {
	case errors.Is(err, store.ErrVersionOrder):
		writeError(w, http.StatusConflict, err.Error())
		return
	case errors.Is(err, model.ErrInvalidMemory):
		writeError(w, http.StatusBadRequest, err.Error())
		return
	case err != nil:
		writeError(w, http.StatusInternalServerError, err.Error())
		return
	}

	writeJSON(w, http.StatusCreated, map[string]string{"status": "stored", "id": m.ID})
}

func (s *Server) handleEvict(w http.ResponseWriter, r *http.Request) {
	n, err := s.cache.EvictStale(r.Context())
	if err != nil {
		writeError(w, http.StatusInternalServerError, err.Error())
		return
	}
	writeJSON(w, http.StatusOK, map[string]int{"evicted": n})
}

// trustDoc returns the request's trust document, or the server's when the
// request carries none.
func (s *Server) trustDoc(raw json.RawMessage) ([]byte, error) {
	if len(raw) > 0 && string(raw) != "null" {
		return raw, nil
	}
	return json.Marshal(s.trust)
}

func (s *Server) handleRank(w http.ResponseWriter, r *http.Request) {
	var req struct {
		Memories json.RawMessage `json:"memories"`
		Config   json.RawMessage `json:"config"`
	}
	if !decodeBody(w, r, &req) {
		return
	}
	cfg, err := s.trustDoc(req.Config)
	if err != nil {
		writeError(w, http.StatusInternalServerError, err.Error())
		return
	}
	out, err := bindings.RankJSON(orEmptyArray(req.Memories), cfg)
	s.writeBinding(w, out, err)
}

func (s *Server) handleDetectConflicts(w http.ResponseWriter, r *http.Request) {
	var req struct {
		Memories json.RawMessage `json:"memories"`
	}
	if !decodeBody(w, r, &req) {
		return
	}
	out, err := bindings.DetectConflictsJSON(orEmptyArray(req.Memories))
	s.writeBinding(w, out, err)
}

func (s *Server) handleResolveConflict(w http.ResponseWriter, r *http.Request) {
	var req struct {
		Conflict json.RawMessage `json:"conflict"`
		Config   json.RawMessage `json:"config"`
	}
	if !decodeBody(w, r, &req) {
		return
	}
	if len(req.Conflict) == 0 {
		writeError(w, http.StatusBadRequest, "conflict required")
		return
	}
	cfg, err := s.trustDoc(req.Config)
	if err != nil {
		writeError(w, http.StatusInternalServerError, err.Error())
		return
	}
	out, err := bindings.ResolveConflictJSON(req.Conflict, cfg)
	s.writeBinding(w, out, err)
}

func (s *Server) handleDecode(w http.ResponseWriter, r *http.Request) {
	body, err := io.ReadAll(http.MaxBytesReader(w, r.Body, maxBodyBytes))
	if err != nil {
		writeError(w, http.StatusBadRequest, "read body failed")
		return
	}
	out, err := bindings.DecodeEventJSON(body)
	s.writeBinding(w, out, err)
}

func (s *Server) writeBinding(w http.ResponseWriter, out []byte, err error) {
	var ie *bindings.InputError
	switch {
	case errors.As(err, &ie), errors.Is(err, codec.ErrDecode):
		writeError(w, http.StatusBadRequest, err.Error())
	case err != nil:
		s.log.Error("binding call", zap.Error(err))
		writeError(w, http.StatusInternalServerError, err.Error())
	default:
		writeRawJSON(w, http.StatusOK, out)
	}
}

func decodeBody(w http.ResponseWriter, r *http.Request, v any) bool {
	if err := json.NewDecoder(http.MaxBytesReader(w, r.Body, maxBodyBytes)).Decode(v); err != nil {
		writeError(w, http.StatusBadRequest, "invalid json")
		return false
	}
	return true
}

func orEmptyArray(raw json.RawMessage) []byte {
	if len(raw) == 0 {
		return []byte("[]")
	}
	return raw
}
