package server

import (
	"encoding/json"
	"fmt"
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"
	"go.uber.org/zap"

	logpkg "github.com/viant/simsearch/internal/logger"
	"github.com/viant/simsearch/internal/metrics"
	"github.com/viant/simsearch/modelstore"
	"github.com/viant/simsearch/similarity"
	"github.com/viant/simsearch/vecsync"
	"github.com/viant/simsearch/vector"
	"github.com/viant/simsearch/vecutil"
)

const defaultChangesLimit = 100

// VectorDTO carries either a dense list or a sparse (dim, indices, values) triple.
type VectorDTO struct {
	Dense   []float32 `json:"dense,omitempty"`
	Dim     int       `json:"dim,omitempty"`
	Indices []int32   `json:"indices,omitempty"`
	Values  []float32 `json:"values,omitempty"`
}

func (v VectorDTO) toVector() (similarity.Vector, error) {
	if v.Dense != nil {
		return similarity.Dense(v.Dense), nil
	}
	return similarity.NewSparse(v.Dim, v.Indices, v.Values)
}

// DocumentDTO is one document of an upsert request.
type DocumentDTO struct {
	ID       int64     `json:"id"`
	Content  string    `json:"content,omitempty"`
	Metadata string    `json:"metadata,omitempty"`
	Vector   VectorDTO `json:"vector"`
}

// UpsertRequest is the body of PUT /v1/datasets/{dataset}/documents.
type UpsertRequest struct {
	Documents []DocumentDTO `json:"documents"`
}

// UpsertResponse lists the ids written.
type UpsertResponse struct {
	IDs []int64 `json:"ids"`
}

// SearchRequest is the body of POST /v1/datasets/{dataset}/search. Omitted
// max_count and min_similarity fall back to the configured defaults.
type SearchRequest struct {
	Vector        VectorDTO `json:"vector"`
	MaxCount      *int      `json:"max_count,omitempty"`
	MinSimilarity *float64  `json:"min_similarity,omitempty"`
}

// MatchDTO is one ranked hit.
type MatchDTO struct {
	ID       int64   `json:"id"`
	Score    float64 `json:"score"`
	Content  string  `json:"content,omitempty"`
	Metadata string  `json:"metadata,omitempty"`
}

// SearchResponse holds ranked hits, best first.
type SearchResponse struct {
	Matches []MatchDTO `json:"matches"`
}

// ReindexResponse describes a persisted model.
type ReindexResponse struct {
	Dataset   string `json:"dataset"`
	SCN       int64  `json:"scn"`
	Documents int    `json:"documents"`
	Dim       int    `json:"dim"`
}

// ChangeDTO is one change-log entry.
type ChangeDTO struct {
	SCN        int64           `json:"scn"`
	Op         string          `json:"op"`
	DocumentID int64           `json:"document_id"`
	Payload    json.RawMessage `json:"payload,omitempty"`
	CreatedAt  time.Time       `json:"created_at"`
}

// ChangesResponse is the body of GET /v1/datasets/{dataset}/changes.
type ChangesResponse struct {
	Dataset string      `json:"dataset"`
	SCN     int64       `json:"scn"`
	Changes []ChangeDTO `json:"changes"`
}

// ErrorResponse is returned for every non-2xx status.
type ErrorResponse struct {
	Code    string `json:"code"`
	Message string `json:"message"`
}

func (s *Server) listDatasets(w http.ResponseWriter, r *http.Request) {
	names, err := s.store.Datasets(r.Context())
	if err != nil {
		s.handleDomainError(w, r, err)
		return
	}
	if names == nil {
		names = []string{}
	}
	writeJSON(w, http.StatusOK, map[string][]string{"datasets": names})
}

func (s *Server) upsertDocuments(w http.ResponseWriter, r *http.Request) {
	dataset := chi.URLParam(r, "dataset")
	var req UpsertRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "bad_request", "Invalid request body: "+err.Error())
		return
	}
	if len(req.Documents) == 0 {
		writeError(w, http.StatusBadRequest, "bad_request", "documents are required")
		return
	}
	docs := make([]vector.Document, 0, len(req.Documents))
	for _, d := range req.Documents {
		vec, err := d.Vector.toVector()
		if err != nil {
			s.handleDomainError(w, r, fmt.Errorf("document %d: %w", d.ID, err))
			return
		}
		docs = append(docs, vector.Document{Dataset: dataset, ID: d.ID, Content: d.Content, Metadata: d.Metadata, Vector: vec})
	}
	ids, err := s.store.AddDocuments(r.Context(), docs)
	if err != nil {
		s.handleDomainError(w, r, err)
		return
	}
	metrics.DocumentsUpsertedTotal.WithLabelValues(dataset).Add(float64(len(ids)))
	writeJSON(w, http.StatusOK, UpsertResponse{IDs: ids})
}

func (s *Server) deleteDocument(w http.ResponseWriter, r *http.Request) {
	dataset := chi.URLParam(r, "dataset")
	id, err := strconv.ParseInt(chi.URLParam(r, "id"), 10, 64)
	if err != nil {
		writeError(w, http.StatusBadRequest, "bad_request", "document id must be an integer")
		return
	}
	if err := s.store.Remove(r.Context(), dataset, id); err != nil {
		s.handleDomainError(w, r, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (s *Server) searchDataset(w http.ResponseWriter, r *http.Request) {
	dataset := chi.URLParam(r, "dataset")
	if s.limiter != nil && !s.limiter.Allow() {
		writeError(w, http.StatusTooManyRequests, "rate_limited", "Search rate limit exceeded")
		return
	}
	var req SearchRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "bad_request", "Invalid request body: "+err.Error())
		return
	}
	query, err := req.Vector.toVector()
	if err != nil {
		s.handleDomainError(w, r, err)
		return
	}
	maxCount := s.search.DefaultMaxCount
	if req.MaxCount != nil {
		maxCount = *req.MaxCount
	}
	minSimilarity := s.search.DefaultMinSimilarity
	if req.MinSimilarity != nil {
		minSimilarity = *req.MinSimilarity
	}

	idx, err := vecutil.NewIndex(s.store, dataset, nil,
		vecutil.WithCache(s.cache),
		vecutil.WithShards(s.search.Shards),
		vecutil.WithPersistedModels(s.store.DB()),
	)
	if err != nil {
		s.handleDomainError(w, r, err)
		return
	}
	start := time.Now()
	hits, err := idx.Query(r.Context(), query, maxCount, minSimilarity)
	metrics.ObserveSearch(dataset, time.Since(start).Seconds(), len(hits), err)
	if err != nil {
		s.handleDomainError(w, r, err)
		return
	}
	resp := SearchResponse{Matches: make([]MatchDTO, 0, len(hits))}
	for _, h := range hits {
		resp.Matches = append(resp.Matches, MatchDTO{ID: h.ID, Score: h.Score, Content: h.Content, Metadata: h.Meta})
	}
	logpkg.FromContext(r.Context()).Debug("search",
		zap.String("dataset", dataset),
		zap.Int("max_count", maxCount),
		zap.Float64("min_similarity", minSimilarity),
		zap.Int("matches", len(hits)),
	)
	writeJSON(w, http.StatusOK, resp)
}

func (s *Server) reindex(w http.ResponseWriter, r *http.Request) {
	dataset := chi.URLParam(r, "dataset")
	model, err := modelstore.Reindex(r.Context(), s.store.DB(), s.store, dataset, s.search.Shards)
	if err != nil {
		metrics.ReindexTotal.WithLabelValues(dataset, "error").Inc()
		s.handleDomainError(w, r, err)
		return
	}
	metrics.ReindexTotal.WithLabelValues(dataset, "ok").Inc()
	writeJSON(w, http.StatusOK, ReindexResponse{
		Dataset:   dataset,
		SCN:       model.SCN,
		Documents: model.Index.Len(),
		Dim:       model.Index.Dim(),
	})
}

func (s *Server) changes(w http.ResponseWriter, r *http.Request) {
	dataset := chi.URLParam(r, "dataset")
	var after int64
	if v := r.URL.Query().Get("after"); v != "" {
		n, err := strconv.ParseInt(v, 10, 64)
		if err != nil {
			writeError(w, http.StatusBadRequest, "bad_request", "after must be an integer")
			return
		}
		after = n
	}
	limit := defaultChangesLimit
	if v := r.URL.Query().Get("limit"); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil || n <= 0 {
			writeError(w, http.StatusBadRequest, "bad_request", "limit must be a positive integer")
			return
		}
		limit = n
	}
	scn, err := s.store.SCN(r.Context(), dataset)
	if err != nil {
		s.handleDomainError(w, r, err)
		return
	}
	entries, err := vecsync.Changes(r.Context(), s.store.DB(), "", dataset, after, limit)
	if err != nil {
		s.handleDomainError(w, r, err)
		return
	}
	resp := ChangesResponse{Dataset: dataset, SCN: scn, Changes: make([]ChangeDTO, 0, len(entries))}
	for _, e := range entries {
		resp.Changes = append(resp.Changes, ChangeDTO{
			SCN:        e.SCN,
			Op:         e.Op,
			DocumentID: e.DocumentID,
			Payload:    json.RawMessage(e.Payload),
			CreatedAt:  e.CreatedAt,
		})
	}
	writeJSON(w, http.StatusOK, resp)
}
