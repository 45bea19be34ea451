package notification

import (
	"bytes"
	"context"
	"encoding/json"
	"io"
	"net/http"
	"sync"
	"testing"
	"time"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/SherClockHolmes/webpush-go"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gorm.io/driver/postgres"
	"gorm.io/gorm"
)

// mockSender is a mock implementation of the NotificationSender interface.
type mockSender struct {
	SendFunc func(payload []byte, sub *webpush.Subscription, options *webpush.Options) (*http.Response, error)
}

// Send calls the mock SendFunc.
func (m *mockSender) Send(payload []byte, sub *webpush.Subscription, options *webpush.Options) (*http.Response, error) {
	return m.SendFunc(payload, sub, options)
}

// A helper function to create a mock database connection.
func newTestDB(t *testing.T) (*gorm.DB, sqlmock.Sqlmock) {
	db, mock, err := sqlmock.New()
	require.NoError(t, err)

	gormDB, err := gorm.Open(postgres.New(postgres.Config{
		Conn: db,
	}), &gorm.Config{})
	require.NoError(t, err)

	return gormDB, mock
}

const subscriptionQuery = `SELECT DISTINCT push_subscriptions\.\* FROM "push_subscriptions".*JOIN subscription_devices sd.*WHERE sd\.device_id IN \(\$1\)`

func TestWorkerPool_Dispatch(t *testing.T) {
	db, _ := newTestDB(t)
	wp := NewWorkerPool(1, 1, db, &webpush.Options{}, nil)

	wp.Dispatch(Job{DeviceIDs: []int64{123}})
	wp.Dispatch(Job{DeviceIDs: []int64{456}})

	assert.Len(t, wp.Jobs(), 1, "second job must be dropped when the queue is full")
	select {
	case job := <-wp.Jobs():
		assert.Equal(t, []int64{123}, job.DeviceIDs)
	case <-time.After(1 * time.Second):
		t.Fatal("timed out waiting for job to be dispatched")
	}
}

func TestWorkerPool_PublishEncodesEnvelope(t *testing.T) {
	db, _ := newTestDB(t)
	wp := NewWorkerPool(1, 4, db, &webpush.Options{}, nil)

	wp.PublishPendingTransferFlag(context.Background(), PendingTransferFlag{DeviceID: 9, BatchID: 3, Pending: true})
	wp.PublishCycleCreated(context.Background(), CycleCreated{CycleID: 5})

	require.Len(t, wp.Jobs(), 1, "cycle event without devices is not queued")
	job := <-wp.Jobs()
	assert.Equal(t, []int64{9}, job.DeviceIDs)

	var got struct {
		Type string              `json:"type"`
		Data PendingTransferFlag `json:"data"`
	}
	require.NoError(t, json.Unmarshal(job.Payload, &got))
	assert.Equal(t, TypePendingTransferFlag, got.Type)
	assert.Equal(t, PendingTransferFlag{DeviceID: 9, BatchID: 3, Pending: true}, got.Data)
}

func TestWorkerPool_WorkerLogic(t *testing.T) {
	subscriptionColumns := []string{"endpoint", "p256dh", "auth", "created_at"}

	t.Run("sends payload to every subscription", func(t *testing.T) {
		gormDB, mock := newTestDB(t)
		wp := NewWorkerPool(1, 1, gormDB, &webpush.Options{}, nil)

		var wg sync.WaitGroup
		wg.Add(1)
		wp.sender = &mockSender{
			SendFunc: func(payload []byte, sub *webpush.Subscription, options *webpush.Options) (*http.Response, error) {
				assert.Equal(t, "https://example.com/push", sub.Endpoint)
				assert.Equal(t, `{"type":"drawer_scanned"}`, string(payload))
				wg.Done()
				return &http.Response{
					StatusCode: http.StatusCreated,
					Body:       io.NopCloser(bytes.NewBufferString("")),
				}, nil
			},
		}

		mock.ExpectQuery(subscriptionQuery).
			WithArgs(int64(101)).
			WillReturnRows(sqlmock.NewRows(subscriptionColumns).
				AddRow("https://example.com/push", "test_p256dh", "test_auth", time.Now()))

		ctx, cancel := context.WithCancel(context.Background())
		defer cancel()
		wp.Start(ctx)

		wp.Dispatch(Job{DeviceIDs: []int64{101}, Payload: []byte(`{"type":"drawer_scanned"}`)})
		wg.Wait()
		assert.NoError(t, mock.ExpectationsWereMet())
	})

	t.Run("deletes expired subscription", func(t *testing.T) {
		gormDB, mock := newTestDB(t)
		wp := NewWorkerPool(1, 1, gormDB, &webpush.Options{}, nil)

		wp.sender = &mockSender{
			SendFunc: func(payload []byte, sub *webpush.Subscription, options *webpush.Options) (*http.Response, error) {
				return &http.Response{
					StatusCode: http.StatusGone,
					Body:       io.NopCloser(bytes.NewBufferString("")),
				}, nil
			},
		}

		mock.ExpectQuery(subscriptionQuery).
			WithArgs(int64(102)).
			WillReturnRows(sqlmock.NewRows(subscriptionColumns).
				AddRow("https://example.com/expired", "test_p256dh_expired", "test_auth_expired", time.Now()))
		mock.ExpectBegin()
		mock.ExpectExec(`DELETE FROM "push_subscriptions" WHERE "push_subscriptions"."endpoint" = \$1`).
			WithArgs("https://example.com/expired").
			WillReturnResult(sqlmock.NewResult(1, 1))
		mock.ExpectCommit()

		ctx, cancel := context.WithCancel(context.Background())
		defer cancel()
		wp.Start(ctx)

		wp.Dispatch(Job{DeviceIDs: []int64{102}, Payload: []byte(`{}`)})
		assert.Eventually(t, func() bool {
			return mock.ExpectationsWereMet() == nil
		}, time.Second, 10*time.Millisecond)
	})

	t.Run("no subscriptions sends nothing", func(t *testing.T) {
		gormDB, mock := newTestDB(t)
		wp := NewWorkerPool(1, 1, gormDB, &webpush.Options{}, nil)

		wp.sender = &mockSender{
			SendFunc: func(payload []byte, sub *webpush.Subscription, options *webpush.Options) (*http.Response, error) {
				t.Error("sender must not be called")
				return nil, nil
			},
		}
		mock.ExpectQuery(subscriptionQuery).
			WithArgs(int64(103)).
			WillReturnRows(sqlmock.NewRows(subscriptionColumns))

		wp.deliver(context.Background(), Job{DeviceIDs: []int64{103}, Payload: []byte(`{}`)})
		assert.NoError(t, mock.ExpectationsWereMet())
	})
}
