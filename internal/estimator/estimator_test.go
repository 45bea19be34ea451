package estimator

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"canister-transfer-backend/config"
)

func TestPerPack_Estimate(t *testing.T) {
	seconds, err := PerPack{Seconds: 30}.Estimate(context.Background(), []int64{1, 2, 3})
	require.NoError(t, err)
	assert.Equal(t, 90, seconds)
}

func TestHTTPEstimator_Estimate(t *testing.T) {
	testCases := []struct {
		name            string
		handler         http.HandlerFunc
		expectedSeconds int
		expectedErr     bool
	}{
		{
			name: "successful estimate",
			handler: func(w http.ResponseWriter, r *http.Request) {
				var body struct {
					PackIDs []int64 `json:"pack_ids"`
				}
				assert.NoError(t, json.NewDecoder(r.Body).Decode(&body))
				assert.Equal(t, []int64{7, 8}, body.PackIDs)
				assert.Equal(t, "secret", r.Header.Get("X-Api-Key"))
				w.Header().Set("Content-Type", "application/json")
				w.Write([]byte(`{"code":0,"data":{"estimated_seconds":420}}`))
			},
			expectedSeconds: 420,
		},
		{
			name: "service level error code",
			handler: func(w http.ResponseWriter, r *http.Request) {
				w.Header().Set("Content-Type", "application/json")
				w.Write([]byte(`{"code":3,"msg":"unknown pack"}`))
			},
			expectedErr: true,
		},
		{
			name: "http error status",
			handler: func(w http.ResponseWriter, r *http.Request) {
				w.WriteHeader(http.StatusBadGateway)
			},
			expectedErr: true,
		},
	}

	for _, tc := range testCases {
		t.Run(tc.name, func(t *testing.T) {
			server := httptest.NewServer(tc.handler)
			defer server.Close()

			cfg := &config.EstimatorConfig{
				BaseURL: server.URL,
				Path:    "/packs/estimate",
				Headers: map[string]string{"X-Api-Key": "secret"},
				Timeout: time.Second,
			}
			seconds, err := New(cfg, nil).Estimate(context.Background(), []int64{7, 8})

			if tc.expectedErr {
				assert.Error(t, err)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tc.expectedSeconds, seconds)
		})
	}
}

func TestNew_FallsBackToPerPack(t *testing.T) {
	est := New(&config.EstimatorConfig{SecondsPerPack: 12}, nil)
	assert.Equal(t, PerPack{Seconds: 12}, est)
}
