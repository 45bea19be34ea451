// Package estimator predicts how long a set of packs takes to process.
package estimator

import (
	"context"
	"fmt"
	"time"

	"github.com/go-resty/resty/v2"
	"go.uber.org/zap"

	"canister-transfer-backend/config"
	"canister-transfer-backend/internal/logging"
)

// Estimator returns an advisory processing time in seconds.
type Estimator interface {
	Estimate(ctx context.Context, packIDs []int64) (int, error)
}

// PerPack charges a flat number of seconds for every pack.
type PerPack struct {
	Seconds int
}

func (p PerPack) Estimate(_ context.Context, packIDs []int64) (int, error) {
	return len(packIDs) * p.Seconds, nil
}

// apiResponse models the estimate service's response envelope.
type apiResponse struct {
	Code int    `json:"code"`
	Msg  string `json:"msg"`
	Data struct {
		EstimatedSeconds int `json:"estimated_seconds"`
	} `json:"data"`
}

// HTTPEstimator asks the pack planning service for an estimate.
type HTTPEstimator struct {
	client *resty.Client
	path   string
	logger *zap.Logger
}

func NewHTTPEstimator(cfg *config.EstimatorConfig, logger *zap.Logger) *HTTPEstimator {
	client := resty.New().
		SetBaseURL(cfg.BaseURL).
		SetTimeout(cfg.Timeout).
		SetRetryCount(cfg.RetryCount).
		SetRetryWaitTime(500 * time.Millisecond).
		SetRetryMaxWaitTime(2 * time.Second).
		SetHeader("Content-Type", "application/json").
		SetHeader("Accept", "application/json").
		SetHeaders(cfg.Headers)

	return &HTTPEstimator{
		client: client,
		path:   cfg.Path,
		logger: logging.OrNop(logger),
	}
}

func (e *HTTPEstimator) Estimate(ctx context.Context, packIDs []int64) (int, error) {
	if len(packIDs) == 0 {
		return 0, nil
	}

	var response apiResponse
	resp, err := e.client.R().
		SetContext(ctx).
		SetBody(map[string]any{"pack_ids": packIDs}).
		SetResult(&response).
		Post(e.path)
	if err != nil {
		return 0, fmt.Errorf("failed to call estimate service: %w", err)
	}
	if resp.IsError() {
		return 0, fmt.Errorf("estimate service returned HTTP %d", resp.StatusCode())
	}
	if response.Code != 0 {
		return 0, fmt.Errorf("estimate service error: %s (code: %d)", response.Msg, response.Code)
	}

	e.logger.Debug("estimated pack processing time",
		zap.Int("packs", len(packIDs)),
		zap.Int("seconds", response.Data.EstimatedSeconds),
	)
	return response.Data.EstimatedSeconds, nil
}

// New picks the HTTP estimator when a base URL is configured, the flat per-pack one otherwise.
func New(cfg *config.EstimatorConfig, logger *zap.Logger) Estimator {
	if cfg.BaseURL == "" {
		return PerPack{Seconds: cfg.SecondsPerPack}
	}
	return NewHTTPEstimator(cfg, logger)
}
