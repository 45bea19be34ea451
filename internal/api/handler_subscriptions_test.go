package api

import (
	"bytes"
	"context"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/SherClockHolmes/webpush-go"
	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"

	"canister-transfer-backend/internal/model"
	"canister-transfer-backend/internal/store"
)

func setupSubscriptionRouter(repo *mockRepository) *gin.Engine {
	gin.SetMode(gin.TestMode)
	r := gin.New()
	handler := NewHandler(repo, nil, nil, &webpush.Options{VAPIDPublicKey: "BPub"}, nil)
	r.GET("/api/subscriptions", handler.GetSubscription)
	r.PUT("/api/subscriptions", handler.PutSubscription)
	r.DELETE("/api/subscriptions", handler.DeleteSubscription)
	r.GET("/api/vapid_public_key", handler.GetVAPIDPublicKey)
	return r
}

func TestPutSubscription(t *testing.T) {
	testCases := []struct {
		name           string
		body           string
		expectedCode   int
		expectedBody   string
		expectedDevice []int64
	}{
		{
			name:         "missing body",
			expectedCode: http.StatusBadRequest,
			expectedBody: `{"error":"invalid request"}`,
		},
		{
			name:         "missing keys",
			body:         `{"endpoint":"https://push.example/1"}`,
			expectedCode: http.StatusBadRequest,
			expectedBody: `{"error":"invalid request"}`,
		},
		{
			name:           "subscribes to devices",
			body:           `{"endpoint":"https://push.example/1","p256dh":"k","auth":"a","subscribed_devices":[3,4]}`,
			expectedCode:   http.StatusCreated,
			expectedDevice: []int64{3, 4},
		},
	}

	for _, tc := range testCases {
		t.Run(tc.name, func(t *testing.T) {
			var saved []int64
			repo := &mockRepository{
				SaveSubscriptionFunc: func(_ context.Context, sub *model.PushSubscription, deviceIDs []int64) error {
					assert.Equal(t, "https://push.example/1", sub.Endpoint)
					saved = deviceIDs
					return nil
				},
			}
			router := setupSubscriptionRouter(repo)

			w := httptest.NewRecorder()
			req, _ := http.NewRequest(http.MethodPut, "/api/subscriptions", bytes.NewBufferString(tc.body))
			router.ServeHTTP(w, req)

			assert.Equal(t, tc.expectedCode, w.Code)
			if tc.expectedBody != "" {
				assert.JSONEq(t, tc.expectedBody, w.Body.String())
			}
			assert.Equal(t, tc.expectedDevice, saved)
		})
	}
}

func TestGetSubscription(t *testing.T) {
	repo := &mockRepository{
		GetSubscriptionFunc: func(_ context.Context, endpoint string) (*model.PushSubscription, error) {
			if endpoint == "https%3A%2F%2Fpush.example%2F1" {
				return &model.PushSubscription{Endpoint: endpoint, Devices: []*model.Device{{ID: 3}, {ID: 4}}}, nil
			}
			return nil, store.ErrNotFound
		},
	}
	router := setupSubscriptionRouter(repo)

	testCases := []struct {
		name         string
		query        string
		expectedCode int
		expectedBody string
	}{
		{name: "endpoint is matched verbatim", query: "?endpoint=https%3A%2F%2Fpush.example%2F1", expectedCode: http.StatusOK, expectedBody: `{"subscribed_devices":[3,4]}`},
		{name: "unknown endpoint", query: "?endpoint=other", expectedCode: http.StatusNotFound, expectedBody: `{"error":"subscription not found"}`},
		{name: "missing endpoint", query: "", expectedCode: http.StatusBadRequest, expectedBody: `{"error":"endpoint is required"}`},
	}

	for _, tc := range testCases {
		t.Run(tc.name, func(t *testing.T) {
			w := httptest.NewRecorder()
			req, _ := http.NewRequest(http.MethodGet, "/api/subscriptions"+tc.query, nil)
			router.ServeHTTP(w, req)

			assert.Equal(t, tc.expectedCode, w.Code)
			assert.JSONEq(t, tc.expectedBody, w.Body.String())
		})
	}
}

func TestDeleteSubscription(t *testing.T) {
	var deleted string
	repo := &mockRepository{
		DeleteSubscriptionFunc: func(_ context.Context, endpoint string) error {
			deleted = endpoint
			return nil
		},
	}
	router := setupSubscriptionRouter(repo)

	w := httptest.NewRecorder()
	req, _ := http.NewRequest(http.MethodDelete, "/api/subscriptions", bytes.NewBufferString(`{"endpoint":"https://push.example/1"}`))
	router.ServeHTTP(w, req)

	assert.Equal(t, http.StatusNoContent, w.Code)
	assert.Equal(t, "https://push.example/1", deleted)
}

func TestGetVAPIDPublicKey(t *testing.T) {
	router := setupSubscriptionRouter(&mockRepository{})

	w := httptest.NewRecorder()
	req, _ := http.NewRequest(http.MethodGet, "/api/vapid_public_key", nil)
	router.ServeHTTP(w, req)

	assert.Equal(t, http.StatusOK, w.Code)
	assert.JSONEq(t, `{"public_key":"BPub"}`, w.Body.String())
}
