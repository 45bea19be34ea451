package notification

import (
	"context"
	"encoding/json"
	"net/http"

	"github.com/SherClockHolmes/webpush-go"
	"go.uber.org/zap"
	"gorm.io/gorm"

	"canister-transfer-backend/internal/logging"
	"canister-transfer-backend/internal/model"
)

// NotificationSender defines the interface for sending a web push notification.
type NotificationSender interface {
	Send(payload []byte, sub *webpush.Subscription, options *webpush.Options) (*http.Response, error)
}

// WebPushSender is a real implementation of NotificationSender using the webpush library.
type WebPushSender struct{}

// Send sends a notification using the webpush library.
func (s *WebPushSender) Send(payload []byte, sub *webpush.Subscription, options *webpush.Options) (*http.Response, error) {
	return webpush.SendNotification(payload, sub, options)
}

// Job is one payload to push to every subscription of the listed devices.
type Job struct {
	DeviceIDs []int64
	Payload   []byte
}

// WorkerPool delivers push notifications to operator browsers. It implements Sink.
type WorkerPool struct {
	size    int
	jobs    chan Job
	db      *gorm.DB
	webpush *webpush.Options
	sender  NotificationSender
	logger  *zap.Logger
}

// NewWorkerPool creates a new worker pool.
func NewWorkerPool(size, queueSize int, db *gorm.DB, webpushOptions *webpush.Options, logger *zap.Logger) *WorkerPool {
	if queueSize < size {
		queueSize = size
	}
	return &WorkerPool{
		size:    size,
		jobs:    make(chan Job, queueSize),
		db:      db,
		webpush: webpushOptions,
		sender:  &WebPushSender{},
		logger:  logging.OrNop(logger),
	}
}

// Start launches the worker goroutines.
func (wp *WorkerPool) Start(ctx context.Context) {
	for i := 0; i < wp.size; i++ {
		go wp.worker(ctx, i)
	}
}

func (wp *WorkerPool) worker(ctx context.Context, id int) {
	log := wp.logger.With(zap.Int("worker", id))
	log.Debug("push worker started")
	for {
		select {
		case job := <-wp.jobs:
			wp.deliver(ctx, job)
		case <-ctx.Done():
			log.Debug("push worker shutting down")
			return
		}
	}
}

// Dispatch queues a job. A full queue drops the job.
func (wp *WorkerPool) Dispatch(job Job) {
	select {
	case wp.jobs <- job:
	default:
		wp.logger.Warn("push queue full, dropping notification", zap.Int64s("device_ids", job.DeviceIDs))
	}
}

// Jobs returns the jobs channel for testing.
func (wp *WorkerPool) Jobs() chan Job {
	return wp.jobs
}

func (wp *WorkerPool) publish(eventType string, deviceIDs []int64, data any) {
	if len(deviceIDs) == 0 {
		return
	}
	payload, err := json.Marshal(envelope{Type: eventType, Data: data})
	if err != nil {
		wp.logger.Error("failed to encode push payload", zap.String("type", eventType), zap.Error(err))
		return
	}
	wp.Dispatch(Job{DeviceIDs: deviceIDs, Payload: payload})
}

func (wp *WorkerPool) PublishCycleCreated(_ context.Context, ev CycleCreated) {
	wp.publish(TypeCycleCreated, ev.DeviceIDs, ev)
}

func (wp *WorkerPool) PublishDrawerScanned(_ context.Context, ev DrawerScanned) {
	wp.publish(TypeDrawerScanned, []int64{ev.DeviceID}, ev)
}

func (wp *WorkerPool) PublishPendingTransferFlag(_ context.Context, ev PendingTransferFlag) {
	wp.publish(TypePendingTransferFlag, []int64{ev.DeviceID}, ev)
}

// deliver fetches the subscriptions of the job's devices and sends the payload once to each.
func (wp *WorkerPool) deliver(ctx context.Context, job Job) {
	var subscriptions []model.PushSubscription
	err := wp.db.WithContext(ctx).
		Distinct("push_subscriptions.*").
		Joins("JOIN subscription_devices sd ON sd.push_subscription_endpoint = push_subscriptions.endpoint").
		Where("sd.device_id IN ?", job.DeviceIDs).
		Find(&subscriptions).Error
	if err != nil {
		wp.logger.Error("failed to fetch subscriptions", zap.Int64s("device_ids", job.DeviceIDs), zap.Error(err))
		return
	}

	if len(subscriptions) == 0 {
		return
	}

	wp.logger.Debug("sending push notifications", zap.Int("count", len(subscriptions)))
	for _, sub := range subscriptions {
		wp.sendNotification(ctx, sub, job.Payload)
	}
}

// sendNotification sends a single web push notification.
func (wp *WorkerPool) sendNotification(ctx context.Context, sub model.PushSubscription, payload []byte) {
	wpSub := &webpush.Subscription{
		Endpoint: sub.Endpoint,
		Keys: webpush.Keys{
			P256dh: sub.P256DH,
			Auth:   sub.Auth,
		},
	}

	resp, err := wp.sender.Send(payload, wpSub, wp.webpush)
	if err != nil {
		wp.logger.Warn("failed to send push notification", zap.String("endpoint", sub.Endpoint), zap.Error(err))
		return
	}
	defer resp.Body.Close()

	// Handle expired subscriptions
	if resp.StatusCode == http.StatusGone {
		wp.logger.Info("push subscription expired, deleting", zap.String("endpoint", sub.Endpoint))
		if err := wp.db.WithContext(ctx).Delete(&sub).Error; err != nil {
			wp.logger.Error("failed to delete expired subscription", zap.String("endpoint", sub.Endpoint), zap.Error(err))
		}
	}
}
