// Package eventbus exposes the process-wide event bus. The pipeline
// publishes one event per finished request; subscribers (logging, metrics)
// are attached during bootstrap.
package eventbus

import (
	"sync"

	evbus "github.com/asaskevich/EventBus"
)

// Topics published by the ingestion pipeline.
const (
	TopicPhotoProcessed = "photo.processed"
	TopicPhotoFailed    = "photo.failed"
)

// ProcessedEvent accompanies TopicPhotoProcessed.
type ProcessedEvent struct {
	Filename   string
	Hothash    string
	DurationMs int64
	Raw        bool
}

// FailedEvent accompanies TopicPhotoFailed.
type FailedEvent struct {
	Filename string
	Kind     string
	Message  string
}

var (
	instance evbus.Bus
	once     sync.Once
)

// Get returns the singleton bus.
func Get() evbus.Bus {
	once.Do(func() {
		instance = evbus.New()
	})
	return instance
}

func Publish(topic string, args ...interface{}) {
	Get().Publish(topic, args...)
}

func Subscribe(topic string, fn interface{}) error {
	return Get().Subscribe(topic, fn)
}

// SubscribeAsync registers a handler that runs in its own goroutine per
// event. Handlers for the same topic are not serialised.
func SubscribeAsync(topic string, fn interface{}) error {
	return Get().SubscribeAsync(topic, fn, false)
}

func Unsubscribe(topic string, fn interface{}) error {
	return Get().Unsubscribe(topic, fn)
}

// WaitAsync blocks until all async handlers have finished. Used in tests
// and during shutdown.
func WaitAsync() {
	Get().WaitAsync()
}
