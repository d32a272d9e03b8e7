// Package handlers provides HTTP handlers for cash allocation runs.
package handlers

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"mime"
	"net/http"
	"strings"
	"time"

	"github.com/rs/zerolog"
	"github.com/shopspring/decimal"
	"github.com/vmihailenco/msgpack/v5"

	"github.com/aristath/allocator/internal/metrics"
	"github.com/aristath/allocator/internal/modules/allocation"
)

const (
	contentTypeJSON    = "application/json"
	contentTypeMsgpack = "application/msgpack"

	maxBodyBytes = 8 << 20
)

// Allocator runs allocation requests.
type Allocator interface {
	ComputeAllocation(req allocation.Request) (*allocation.Result, error)
	ComputeBatch(ctx context.Context, reqs []allocation.Request) []allocation.BatchResult
	Config() allocation.Config
}

// Handler handles allocation HTTP requests
type Handler struct {
	service Allocator
	metrics *metrics.Metrics
	log     zerolog.Logger
}

// NewHandler creates a new allocation handler
func NewHandler(service Allocator, m *metrics.Metrics, log zerolog.Logger) *Handler {
	return &Handler{
		service: service,
		metrics: m,
		log:     log.With().Str("handler", "allocation").Logger(),
	}
}

// AllocationRequest is the body of POST /api/allocation.
// Prices plus InitialInvestment may replace Returns and CashFlows.
type AllocationRequest struct {
	Returns             []float64 `json:"returns" msgpack:"returns"`
	CashFlows           []float64 `json:"cash_flows" msgpack:"cash_flows"`
	MarketIndices       []float64 `json:"market_indices" msgpack:"market_indices"`
	FundCharacteristics []float64 `json:"fund_characteristics" msgpack:"fund_characteristics"`
	HorizonDays         int       `json:"horizon_days" msgpack:"horizon_days"`
	Sentiment           []float64 `json:"sentiment,omitempty" msgpack:"sentiment,omitempty"`
	ActionValues        []float64 `json:"action_values,omitempty" msgpack:"action_values,omitempty"`
	KClusters           int       `json:"k_clusters,omitempty" msgpack:"k_clusters,omitempty"`
	Seed                *uint64   `json:"seed,omitempty" msgpack:"seed,omitempty"`
	Prices              []float64 `json:"prices,omitempty" msgpack:"prices,omitempty"`
	InitialInvestment   *float64  `json:"initial_investment,omitempty" msgpack:"initial_investment,omitempty"`
	FallbackUniform     bool      `json:"fallback_uniform,omitempty" msgpack:"fallback_uniform,omitempty"`
}

// BatchRequest is the body of POST /api/allocation/batch.
type BatchRequest struct {
	Requests []AllocationRequest `json:"requests" msgpack:"requests"`
}

// RegimeResponse summarizes the clustering of a run.
type RegimeResponse struct {
	K          int   `json:"k" msgpack:"k"`
	Labels     []int `json:"labels" msgpack:"labels"`
	Iterations int   `json:"iterations" msgpack:"iterations"`
	Converged  bool  `json:"converged" msgpack:"converged"`
}

// AllocationResponse is the result of one allocation run.
type AllocationResponse struct {
	RunID        string          `json:"run_id,omitempty" msgpack:"run_id,omitempty"`
	Allocation   []float64       `json:"allocation" msgpack:"allocation"`
	Amounts      []string        `json:"amounts,omitempty" msgpack:"amounts,omitempty"`
	Regime       *RegimeResponse `json:"regime,omitempty" msgpack:"regime,omitempty"`
	ForecastDays int             `json:"forecast_days" msgpack:"forecast_days"`
	Fallback     bool            `json:"fallback" msgpack:"fallback"`
}

// BatchItemResponse is one entry of a batch response. Exactly one of Result and
// Error is set.
type BatchItemResponse struct {
	Index  int                 `json:"index" msgpack:"index"`
	Result *AllocationResponse `json:"result,omitempty" msgpack:"result,omitempty"`
	Error  string              `json:"error,omitempty" msgpack:"error,omitempty"`
	Kind   string              `json:"kind,omitempty" msgpack:"kind,omitempty"`
}

// BatchResponse is the result of a batch call, in request order.
type BatchResponse struct {
	Results []BatchItemResponse `json:"results" msgpack:"results"`
}

// ErrorResponse is returned for failed requests.
type ErrorResponse struct {
	Error string `json:"error" msgpack:"error"`
	Kind  string `json:"kind,omitempty" msgpack:"kind,omitempty"`
}

// HandleComputeAllocation handles POST /api/allocation
func (h *Handler) HandleComputeAllocation(w http.ResponseWriter, r *http.Request) {
	defer h.metrics.Track()()

	var body AllocationRequest
	if err := h.decode(r, &body); err != nil {
		h.log.Warn().Err(err).Msg("Failed to decode request body")
		h.writeError(w, r, http.StatusBadRequest, "invalid request body", "")
		return
	}

	start := time.Now()
	resp, err := h.run(body)
	if err != nil {
		kind := allocation.KindOf(err)
		h.metrics.ObserveRun(metrics.StatusFailed, string(kind), time.Since(start), 0)
		status := statusFor(kind)
		if status >= http.StatusInternalServerError {
			h.log.Error().Err(err).Str("kind", string(kind)).Msg("Allocation run failed")
		} else {
			h.log.Debug().Err(err).Str("kind", string(kind)).Msg("Allocation request rejected")
		}
		h.writeError(w, r, status, err.Error(), string(kind))
		return
	}

	h.metrics.ObserveRun(runStatus(resp), "", time.Since(start), len(resp.Allocation))
	h.writeResponse(w, r, http.StatusOK, resp)
}

// HandleComputeBatch handles POST /api/allocation/batch
func (h *Handler) HandleComputeBatch(w http.ResponseWriter, r *http.Request) {
	defer h.metrics.Track()()

	var body BatchRequest
	if err := h.decode(r, &body); err != nil {
		h.log.Warn().Err(err).Msg("Failed to decode batch request body")
		h.writeError(w, r, http.StatusBadRequest, "invalid request body", "")
		return
	}
	if len(body.Requests) == 0 {
		h.writeError(w, r, http.StatusBadRequest, "batch contains no requests", string(allocation.KindInputValidation))
		return
	}
	start := time.Now()
	results := make([]BatchItemResponse, len(body.Requests))
	durations := make([]time.Duration, len(body.Requests))
	ran := make([]bool, len(body.Requests))
	reqs := make([]allocation.Request, 0, len(body.Requests))
	positions := make([]int, 0, len(body.Requests))
	for i, item := range body.Requests {
		results[i].Index = i
		req, err := toRequest(item)
		if err != nil {
			results[i].Error, results[i].Kind = err.Error(), string(allocation.KindOf(err))
			continue
		}
		reqs = append(reqs, req)
		positions = append(positions, i)
	}

	for j, res := range h.service.ComputeBatch(r.Context(), reqs) {
		i := positions[j]
		durations[i], ran[i] = res.Duration, true
		resp, err := h.finish(body.Requests[i], reqs[j], res.Result, res.Err)
		if err != nil {
			results[i].Error, results[i].Kind = err.Error(), string(allocation.KindOf(err))
			continue
		}
		results[i].Result = resp
	}

	elapsed := time.Since(start)
	h.metrics.ObserveBatch(len(body.Requests), elapsed)
	failed := 0
	for i, item := range results {
		switch {
		case !ran[i]:
			failed++
			h.metrics.ObserveRejected(item.Kind)
		case item.Result == nil:
			failed++
			h.metrics.ObserveRun(metrics.StatusFailed, item.Kind, durations[i], 0)
		default:
			h.metrics.ObserveRun(runStatus(item.Result), "", durations[i], len(item.Result.Allocation))
		}
	}
	h.log.Info().
		Int("requests", len(results)).
		Int("failed", failed).
		Dur("duration", elapsed).
		Msg("Batch allocation finished")

	h.writeResponse(w, r, http.StatusOK, BatchResponse{Results: results})
}

// run converts, computes and renders a single request.
func (h *Handler) run(body AllocationRequest) (*AllocationResponse, error) {
	req, err := toRequest(body)
	if err != nil {
		return nil, err
	}
	result, err := h.service.ComputeAllocation(req)
	return h.finish(body, req, result, err)
}

// toRequest maps the wire form onto a pipeline request, deriving returns and cash
// flows from prices when given.
func toRequest(body AllocationRequest) (allocation.Request, error) {
	req := allocation.Request{
		Returns:             body.Returns,
		CashFlows:           body.CashFlows,
		MarketIndices:       body.MarketIndices,
		FundCharacteristics: body.FundCharacteristics,
		HorizonDays:         body.HorizonDays,
		Sentiment:           body.Sentiment,
		ActionValues:        body.ActionValues,
		Clusters:            body.KClusters,
		Seed:                body.Seed,
	}

	if len(body.Prices) == 0 {
		return req, nil
	}
	if len(body.Returns) > 0 || len(body.CashFlows) > 0 {
		return req, fmt.Errorf("%w: prices cannot be combined with returns or cash_flows", allocation.ErrInputValidation)
	}
	if body.InitialInvestment == nil {
		return req, fmt.Errorf("%w: prices require initial_investment", allocation.ErrInputValidation)
	}

	returns, err := allocation.ReturnsFromPrices(body.Prices)
	if err != nil {
		return req, fmt.Errorf("prices: %w", err)
	}
	cashFlows, err := allocation.CashFlowsFromReturns(returns, *body.InitialInvestment)
	if err != nil {
		return req, fmt.Errorf("prices: %w", err)
	}
	req.Returns, req.CashFlows = returns, cashFlows
	return req, nil
}

// finish renders a pipeline outcome, applying the uniform fallback when the caller
// asked for it.
func (h *Handler) finish(body AllocationRequest, req allocation.Request, result *allocation.Result, err error) (*AllocationResponse, error) {
	var resp *AllocationResponse
	switch {
	case err == nil:
		resp = &AllocationResponse{
			RunID:        result.RunID,
			Allocation:   result.Allocation,
			ForecastDays: result.ForecastDays,
			Regime: &RegimeResponse{
				K:          result.Clusters.K,
				Labels:     result.Clusters.Labels,
				Iterations: result.Clusters.Iterations,
				Converged:  result.Clusters.Converged,
			},
		}
	case body.FallbackUniform && errors.Is(err, allocation.ErrDegenerateAllocation):
		resp = &AllocationResponse{
			Allocation: allocation.UniformAllocation(h.fallbackDays(req)),
			Fallback:   true,
		}
	default:
		return nil, err
	}

	if body.InitialInvestment != nil {
		amounts, err := allocation.DollarAmounts(resp.Allocation, decimal.NewFromFloat(*body.InitialInvestment))
		if err != nil {
			return nil, fmt.Errorf("amounts: %w", err)
		}
		resp.Amounts = make([]string, len(amounts))
		for i, a := range amounts {
			resp.Amounts[i] = a.StringFixed(2)
		}
	}
	return resp, nil
}

// fallbackDays is the length the pipeline would have produced. With horizon extension
// every series reaches the horizon before a degenerate result can occur.
func (h *Handler) fallbackDays(req allocation.Request) int {
	days := req.HorizonDays
	if h.service.Config().ExtendHorizon {
		return days
	}
	for _, n := range []int{len(req.Returns), len(req.CashFlows), len(req.MarketIndices), len(req.FundCharacteristics)} {
		days = min(days, n)
	}
	return days
}

func runStatus(resp *AllocationResponse) string {
	if resp.Fallback {
		return metrics.StatusFallback
	}
	return metrics.StatusOK
}

// statusFor maps an error kind to an HTTP status.
func statusFor(kind allocation.ErrorKind) int {
	switch kind {
	case allocation.KindInputValidation,
		allocation.KindInsufficientData,
		allocation.KindClustering,
		allocation.KindDegenerateAllocation:
		return http.StatusUnprocessableEntity
	default:
		return http.StatusInternalServerError
	}
}

func isMsgpack(value string) bool {
	for _, part := range strings.Split(value, ",") {
		mediaType, _, err := mime.ParseMediaType(strings.TrimSpace(part))
		if err == nil && (mediaType == contentTypeMsgpack || mediaType == "application/x-msgpack") {
			return true
		}
	}
	return false
}

func (h *Handler) decode(r *http.Request, v interface{}) error {
	body := io.LimitReader(r.Body, maxBodyBytes)
	if isMsgpack(r.Header.Get("Content-Type")) {
		return msgpack.NewDecoder(body).Decode(v)
	}
	return json.NewDecoder(body).Decode(v)
}

// writeResponse encodes msgpack when the client accepts it or sent msgpack, JSON
// otherwise.
func (h *Handler) writeResponse(w http.ResponseWriter, r *http.Request, status int, data interface{}) {
	if !isMsgpack(r.Header.Get("Accept")) && !isMsgpack(r.Header.Get("Content-Type")) {
		h.writeJSON(w, status, data)
		return
	}

	w.Header().Set("Content-Type", contentTypeMsgpack)
	w.WriteHeader(status)
	if err := msgpack.NewEncoder(w).Encode(data); err != nil {
		h.log.Error().Err(err).Msg("Failed to encode msgpack response")
	}
}

func (h *Handler) writeJSON(w http.ResponseWriter, status int, data interface{}) {
	w.Header().Set("Content-Type", contentTypeJSON)
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(data); err != nil {
		h.log.Error().Err(err).Msg("Failed to encode JSON response")
	}
}

func (h *Handler) writeError(w http.ResponseWriter, r *http.Request, status int, message, kind string) {
	h.writeResponse(w, r, status, ErrorResponse{Error: message, Kind: kind})
}
