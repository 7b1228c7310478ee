package kms

import (
	"context"
	"log/slog"
	"time"

	"github.com/outpostlabs/kmscore/internal/kmsabi"
)

// EventLoop runs a single goroutine that owns all mutable device state:
// every uevent, flip-complete event, and externally-submitted job is
// funneled through one channel and processed one at a time. Producers
// (the uevent reader goroutine, a device's flip-complete reader goroutine,
// callers wanting to submit work) never touch Device/Connector fields
// directly — they only ever send onto job. This keeps the solver and
// present engine free of locking even though several goroutines feed the
// loop; the lease broker (lease.go) still takes dev.mu.
type EventLoop struct {
	sup    *Supervisor
	logger *slog.Logger
	job    chan func()
}

// NewEventLoop wraps a Supervisor with a single-threaded job queue.
func NewEventLoop(sup *Supervisor, logger *slog.Logger) *EventLoop {
	return &EventLoop{sup: sup, logger: logger, job: make(chan func(), 256)}
}

// Post enqueues f to run on the loop goroutine; safe to call from any
// goroutine, including uevent/flip-complete readers and external API
// callers (e.g. the lease wire protocol's request handler).
func (l *EventLoop) Post(f func()) {
	l.job <- f
}

// Run drives the loop until ctx is canceled: a 250ms ticker drives
// PollResets and RetryPendingRevocations for every device, and jobs posted
// via Post run inline on this goroutine in submission order.
func (l *EventLoop) Run(ctx context.Context) {
	ticker := time.NewTicker(250 * time.Millisecond)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case f := <-l.job:
			f()
		case <-ticker.C:
			l.sup.PollResets()
			for _, dev := range l.sup.Devices() {
				RetryPendingRevocations(dev)
			}
		}
	}
}

// PauseAll posts Supervisor.PauseAll onto the loop, so a VT-switch pause
// signal from logind never races an in-flight present or reconfigure.
func (l *EventLoop) PauseAll() {
	l.Post(func() { l.sup.PauseAll() })
}

// ResumeAll posts Supervisor.ResumeAll onto the loop, for the same reason
// as PauseAll.
func (l *EventLoop) ResumeAll() {
	l.Post(func() { l.sup.ResumeAll() })
}

// WatchUevents starts a goroutine reading DRM hot-plug uevents off the
// shared NETLINK_KOBJECT_UEVENT socket and posting a reprobe job for every
// open device to the loop for each one observed. The kernel's uevent group
// is system-wide, not per-card, so this runs once per process rather than
// once per device; it exits when sock's underlying fd is closed or ctx is
// canceled.
func (l *EventLoop) WatchUevents(ctx context.Context, sock *kmsabi.UeventSocket) {
	go func() {
		for {
			ev, err := sock.Read()
			if err != nil {
				return
			}
			if !kmsabi.IsDRMCardEvent(ev) {
				continue
			}
			select {
			case <-ctx.Done():
				return
			default:
			}
			l.Post(func() {
				for _, dev := range l.sup.Devices() {
					if err := l.sup.Reprobe(dev.ID); err != nil {
						l.logger.Error("reprobe after uevent", "device", dev.ID, "error", err)
					}
				}
			})
		}
	}()
}

// WatchFlipEvents starts a goroutine reading flip-complete events off a
// device's card fd and posting each to the loop, where a connector's
// pendingFlip bookkeeping is updated and a presentation-feedback
// notification is dispatched (see feedback.go).
func (l *EventLoop) WatchFlipEvents(ctx context.Context, devID uint64) {
	dev, ok := l.sup.Device(devID)
	if !ok {
		return
	}
	go func() {
		for {
			select {
			case <-ctx.Done():
				return
			default:
			}
			events, err := kmsabi.ReadEvents(dev.file)
			if err != nil {
				return
			}
			if len(events) == 0 {
				continue
			}
			l.Post(func() {
				for _, fe := range events {
					handleFlipComplete(dev, fe)
				}
			})
		}
	}()
}
