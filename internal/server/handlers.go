package server

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"

	"github.com/Sternrassler/alphavantage-client/pkg/client"
	"github.com/Sternrassler/alphavantage-client/pkg/logging"
	"github.com/Sternrassler/alphavantage-client/pkg/options"
	"github.com/Sternrassler/alphavantage-client/pkg/shape"
	"github.com/go-chi/chi/v5"
)

// Query parameters consumed by the proxy itself rather than forwarded.
const (
	queryFunction = "function"
	queryLimit    = "limit"
	queryAPIKey   = "apikey"
	queryDate     = "date"
)

// maxBatchSize bounds POST /api/v1/batch.
const maxBatchSize = 100

// errorResponse is the JSON body of every non-2xx answer.
type errorResponse struct {
	Error     string `json:"error"`
	Class     string `json:"class,omitempty"`
	RequestID string `json:"request_id,omitempty"`
}

// batchItem is one element of a POST /api/v1/batch body.
type batchItem struct {
	Function string         `json:"function"`
	Params   map[string]any `json:"params"`
}

// batchResult is one element of the POST /api/v1/batch response.
type batchResult struct {
	Index    int             `json:"index"`
	Function string          `json:"function"`
	Status   int             `json:"status"`
	Data     *client.Payload `json:"data,omitempty"`
	Advisory string          `json:"advisory,omitempty"`
	Error    string          `json:"error,omitempty"`
}

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	w.WriteHeader(http.StatusOK)
	fmt.Fprint(w, "OK")
}

// handleReady reports the advisory state; 503 while advisories are recent.
func (s *Server) handleReady(w http.ResponseWriter, r *http.Request) {
	if s.advisories == nil {
		writeJSON(w, http.StatusOK, map[string]bool{"is_healthy": true})
		return
	}

	state, err := s.advisories.GetState(r.Context())
	if err != nil {
		s.writeError(w, r, http.StatusServiceUnavailable, err)
		return
	}

	status := http.StatusOK
	if !state.IsHealthy {
		status = http.StatusServiceUnavailable
	}
	writeJSON(w, status, state)
}

// handleQuery forwards every query parameter except function, limit and
// apikey to the upstream function.
func (s *Server) handleQuery(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()

	limit := 0
	if raw := q.Get(queryLimit); raw != "" {
		n, err := strconv.Atoi(raw)
		if err != nil || n < 0 {
			s.writeError(w, r, http.StatusBadRequest, fmt.Errorf("invalid limit %q", raw))
			return
		}
		limit = n
	}

	req := requestFromQuery(q)

	payload, err := s.fetcher.FetchAPIData(r.Context(), req)
	if err != nil {
		s.writeError(w, r, statusForError(err), err)
		return
	}

	payload, err = shape.LimitSeries(payload, limit)
	if err != nil {
		s.writeError(w, r, http.StatusInternalServerError, err)
		return
	}

	s.writePayload(w, r, payload)
}

func (s *Server) handleOptions(w http.ResponseWriter, r *http.Request) {
	symbol := chi.URLParam(r, "symbol")
	q := r.URL.Query()

	criteria, err := options.CriteriaFromQuery(q)
	if err != nil {
		s.writeError(w, r, http.StatusBadRequest, err)
		return
	}

	result, err := s.options.Chain(r.Context(), symbol, q.Get(queryDate), criteria)
	if err != nil {
		s.writeError(w, r, statusForError(err), err)
		return
	}

	writeJSON(w, http.StatusOK, result)
}

// handleBatch resolves a list of requests. Failures are reported per item;
// the response itself is 200 once the body was accepted.
func (s *Server) handleBatch(w http.ResponseWriter, r *http.Request) {
	var items []batchItem
	if err := json.NewDecoder(io.LimitReader(r.Body, 1<<20)).Decode(&items); err != nil {
		s.writeError(w, r, http.StatusBadRequest, fmt.Errorf("decode batch: %w", err))
		return
	}
	if len(items) == 0 {
		s.writeError(w, r, http.StatusBadRequest, errors.New("batch is empty"))
		return
	}
	if len(items) > maxBatchSize {
		s.writeError(w, r, http.StatusBadRequest, fmt.Errorf("batch exceeds %d requests", maxBatchSize))
		return
	}

	requests := make([]client.ResourceRequest, len(items))
	for i, item := range items {
		requests[i] = client.ResourceRequest{ResourceType: item.Function, Params: item.Params}
	}

	results := s.batch.FetchAll(r.Context(), requests)

	out := make([]batchResult, len(results))
	for i, res := range results {
		out[i] = batchResult{Index: res.Index, Function: res.Request.ResourceType, Status: http.StatusOK}
		if res.Err != nil {
			out[i].Status = statusForError(res.Err)
			out[i].Error = res.Err.Error()
			continue
		}
		out[i].Data = res.Payload
		out[i].Advisory = res.Payload.Advisory
	}

	writeJSON(w, http.StatusOK, out)
}

// handleClearCache drops one request's entry when a function is given,
// otherwise the whole cache.
func (s *Server) handleClearCache(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	if q.Get(queryFunction) != "" {
		s.client.Invalidate(requestFromQuery(q))
	} else {
		s.client.GetCache().Clear()
	}

	logging.FromContext(r.Context()).Info().Str("function", q.Get(queryFunction)).Msg("Cache cleared")
	w.WriteHeader(http.StatusNoContent)
}

// requestFromQuery builds the upstream request for a proxied query. The
// response-shaping and credential parameters never reach the fingerprint.
func requestFromQuery(q url.Values) client.ResourceRequest {
	req := client.ResourceRequest{ResourceType: q.Get(queryFunction), Params: map[string]any{}}
	for key := range q {
		switch key {
		case queryFunction, queryLimit, queryAPIKey:
			continue
		}
		req.Params[key] = q.Get(key)
	}
	return req
}

// statusForError maps client and pipeline errors to HTTP statuses.
func statusForError(err error) int {
	var apiErr *client.APIError
	var transportErr *client.TransportError

	switch {
	case errors.Is(err, client.ErrMissingResourceType),
		errors.Is(err, options.ErrInvalidDate),
		errors.Is(err, options.ErrInvalidDecimal),
		errors.Is(err, options.ErrInvalidOptionType):
		return http.StatusBadRequest
	case errors.As(err, &apiErr):
		return http.StatusUnprocessableEntity
	case errors.As(err, &transportErr),
		errors.Is(err, client.ErrRetryExhausted),
		errors.Is(err, options.ErrNoChain):
		return http.StatusBadGateway
	case errors.Is(err, context.DeadlineExceeded):
		return http.StatusGatewayTimeout
	default:
		return http.StatusInternalServerError
	}
}

// writePayload renders an upstream payload; text payloads keep their raw body.
func (s *Server) writePayload(w http.ResponseWriter, r *http.Request, payload *client.Payload) {
	body, err := shape.Render(payload)
	if err != nil {
		s.writeError(w, r, http.StatusInternalServerError, err)
		return
	}

	if payload.Advisory != "" {
		w.Header().Set(AdvisoryHeader, payload.Advisory)
	}
	if payload.Kind == client.KindText {
		w.Header().Set("Content-Type", "text/plain; charset=utf-8")
	} else {
		w.Header().Set("Content-Type", "application/json")
	}
	w.WriteHeader(http.StatusOK)
	io.WriteString(w, body)
}

func (s *Server) writeError(w http.ResponseWriter, r *http.Request, status int, err error) {
	logger := logging.FromContext(r.Context())
	if status >= 500 {
		logger.Error().Err(err).Int("status", status).Str("path", r.URL.Path).Msg("Request failed")
	} else {
		logger.Debug().Err(err).Int("status", status).Str("path", r.URL.Path).Msg("Request rejected")
	}

	writeJSON(w, status, errorResponse{
		Error:     err.Error(),
		Class:     string(client.ClassOf(err)),
		RequestID: w.Header().Get(RequestIDHeader),
	})
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(v)
}
