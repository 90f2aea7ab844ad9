package notify

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"
	"time"

	"github.com/MarkoPoloResearchLab/boxoffice/pkg/boxoffice"
	"go.uber.org/zap"
)

const (
	defaultQueueSize   = 256
	defaultWorkers     = 2
	defaultSendTimeout = 10 * time.Second
	defaultDrainWindow = 5 * time.Second
)

// ErrDispatcherRunning is returned when Run is called twice.
var ErrDispatcherRunning = errors.New("dispatcher already running")

// Sender delivers one notification over one channel.
type Sender interface {
	Name() string
	Send(ctx context.Context, notification boxoffice.Notification) error
}

// Config sizes the dispatcher.
type Config struct {
	QueueSize   int
	Workers     int
	SendTimeout time.Duration
	DrainWindow time.Duration
}

// Dispatcher implements boxoffice.Notifier with a bounded queue drained by workers.
// Notify never blocks: when the queue is full or the dispatcher has stopped the
// notification is dropped and logged.
type Dispatcher struct {
	logger  *zap.Logger
	senders []Sender
	config  Config
	queue   chan boxoffice.Notification
	running atomic.Bool
	stopped atomic.Bool
	dropped atomic.Int64
}

// NewDispatcher builds a dispatcher fanning every notification out to senders.
func NewDispatcher(logger *zap.Logger, config Config, senders ...Sender) *Dispatcher {
	if logger == nil {
		logger = zap.NewNop()
	}
	if config.QueueSize <= 0 {
		config.QueueSize = defaultQueueSize
	}
	if config.Workers <= 0 {
		config.Workers = defaultWorkers
	}
	if config.SendTimeout <= 0 {
		config.SendTimeout = defaultSendTimeout
	}
	if config.DrainWindow <= 0 {
		config.DrainWindow = defaultDrainWindow
	}
	return &Dispatcher{
		logger:  logger,
		senders: senders,
		config:  config,
		queue:   make(chan boxoffice.Notification, config.QueueSize),
	}
}

// Notify enqueues a notification without blocking.
func (dispatcher *Dispatcher) Notify(_ context.Context, notification boxoffice.Notification) {
	if dispatcher.stopped.Load() {
		dispatcher.drop(notification, "stopped")
		return
	}
	select {
	case dispatcher.queue <- notification:
	default:
		dispatcher.drop(notification, "queue full")
	}
}

// Dropped reports how many notifications were discarded.
func (dispatcher *Dispatcher) Dropped() int64 {
	return dispatcher.dropped.Load()
}

// Run delivers queued notifications until ctx is cancelled, then drains what is
// left for at most the drain window.
func (dispatcher *Dispatcher) Run(ctx context.Context) error {
	if !dispatcher.running.CompareAndSwap(false, true) {
		return ErrDispatcherRunning
	}
	var workers sync.WaitGroup
	for index := 0; index < dispatcher.config.Workers; index++ {
		workers.Add(1)
		go func() {
			defer workers.Done()
			for {
				select {
				case <-ctx.Done():
					return
				case notification := <-dispatcher.queue:
					dispatcher.deliver(context.WithoutCancel(ctx), notification)
				}
			}
		}()
	}
	workers.Wait()
	dispatcher.stopped.Store(true)

	drainCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), dispatcher.config.DrainWindow)
	defer cancel()
	for {
		select {
		case notification := <-dispatcher.queue:
			dispatcher.deliver(drainCtx, notification)
		default:
			return nil
		}
	}
}

func (dispatcher *Dispatcher) deliver(ctx context.Context, notification boxoffice.Notification) {
	for _, sender := range dispatcher.senders {
		sendCtx, cancel := context.WithTimeout(ctx, dispatcher.config.SendTimeout)
		err := sender.Send(sendCtx, notification)
		cancel()
		if err != nil {
			dispatcher.logger.Warn("notification delivery failed",
				zap.String("sender", sender.Name()),
				zap.String("kind", string(notification.Kind)),
				zap.String("subject", notification.Subject),
				zap.Error(err),
			)
		}
	}
}

func (dispatcher *Dispatcher) drop(notification boxoffice.Notification, reason string) {
	dispatcher.dropped.Add(1)
	dispatcher.logger.Warn("notification dropped",
		zap.String("reason", reason),
		zap.String("kind", string(notification.Kind)),
		zap.String("subject", notification.Subject),
	)
}
