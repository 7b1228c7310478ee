// compositord is the device-supervisor daemon: it opens one or more DRM
// cards, runs the solver and present engine for each, brokers leases to
// remote clients over a Unix socket, and follows systemd-logind for
// privileged device handover and VT-switch pause/resume.
package main

import (
	"context"
	"log/slog"
	"os"
	"os/signal"
	"strings"
	"syscall"

	"github.com/outpostlabs/kmscore/internal/kms"
	"github.com/outpostlabs/kmscore/internal/kmsabi"
	"github.com/outpostlabs/kmscore/internal/session"
)

func main() {
	logger := slog.New(slog.NewTextHandler(os.Stdout, &slog.HandlerOptions{
		Level: slog.LevelInfo,
	}))

	cfg := struct {
		devices    []string
		socketPath string
	}{
		devices:    splitList(envOrDefault("COMPOSITORD_DEVICES", "/dev/dri/card0")),
		socketPath: envOrDefault("COMPOSITORD_SOCKET", "/run/compositord/lease.sock"),
	}

	ctx, cancel := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer cancel()

	sup := kms.NewSupervisor(logger)
	loop := kms.NewEventLoop(sup, logger)

	sess, err := session.Open(ctx, logger)
	if err != nil {
		logger.Warn("logind session unavailable, opening devices directly", "error", err)
	} else {
		defer sess.Close()
		go watchSessionEvents(ctx, sess, loop, logger)
	}

	for _, path := range cfg.devices {
		dev, err := openConfiguredDevice(ctx, sess, sup, path, logger)
		if err != nil {
			logger.Error("failed to open device", "device", path, "error", err)
			continue
		}
		if err := sup.Reconfigure(dev.ID); err != nil {
			logger.Error("initial reconfigure failed", "device", path, "error", err)
		}
		dev.OnPresentFeedback(func(fb kms.PresentFeedback) {
			logger.Debug("present feedback", "connector", fb.ConnectorID, "kind", fb.Kind, "sequence", fb.Sequence)
		})
		loop.WatchFlipEvents(ctx, dev.ID)
	}

	if uevents, err := kmsabi.OpenUeventSocket(); err != nil {
		logger.Warn("hot-plug uevent socket unavailable", "error", err)
	} else {
		defer uevents.Close()
		loop.WatchUevents(ctx, uevents)
	}

	leaseServer := kms.NewLeaseServer(sup, loop, cfg.socketPath, logger)
	go func() {
		if err := leaseServer.Run(ctx); err != nil && ctx.Err() == nil {
			logger.Error("lease server stopped", "error", err)
		}
	}()

	logger.Info("compositord running", "devices", cfg.devices, "socket", cfg.socketPath)
	loop.Run(ctx)
	logger.Info("compositord shutdown complete")
}

// openConfiguredDevice opens path via the logind-handed fd when a session is
// available, falling back to a direct open (root, or a container already
// granted access to the device node).
func openConfiguredDevice(ctx context.Context, sess *session.Session, sup *kms.Supervisor, path string, logger *slog.Logger) (*kms.Device, error) {
	if sess == nil {
		return sup.AddDevice(path)
	}
	st, err := os.Stat(path)
	if err != nil {
		return nil, err
	}
	rdev := rdevOf(st)
	major, minor := session.SplitRdev(rdev)
	fd, _, err := sess.TakeDevice(ctx, major, minor)
	if err != nil {
		logger.Warn("TakeDevice failed, falling back to direct open", "device", path, "error", err)
		return sup.AddDevice(path)
	}
	return sup.AddDeviceFD(fd, path)
}

// watchSessionEvents drives PauseAll/ResumeAll from logind's PauseDevice and
// ResumeDevice signals, ignoring events for device classes other than DRM
// (logind also manages input devices under the same session). Both are
// posted onto the event loop rather than called directly, so a VT switch
// never races an in-flight present or reconfigure.
func watchSessionEvents(ctx context.Context, sess *session.Session, loop *kms.EventLoop, logger *slog.Logger) {
	for {
		select {
		case <-ctx.Done():
			return
		case ev, ok := <-sess.Events():
			if !ok {
				return
			}
			if !session.IsDRMDevice(ev.Major) {
				continue
			}
			switch ev.Kind {
			case session.EventPauseDevice:
				logger.Info("session paused", "pause_type", ev.PauseType)
				loop.PauseAll()
			case session.EventResumeDevice:
				logger.Info("session resumed")
				loop.ResumeAll()
			}
		}
	}
}

func envOrDefault(key, def string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return def
}

func splitList(s string) []string {
	var out []string
	for _, p := range strings.Split(s, ",") {
		if p = strings.TrimSpace(p); p != "" {
			out = append(out, p)
		}
	}
	return out
}
