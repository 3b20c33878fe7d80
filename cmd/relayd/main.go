// Command relayd drives a GPIO relay behind an authenticated HTTP API,
// enforcing safety timeouts and publishing state changes to MQTT.
package main

import (
	"context"
	"flag"
	"fmt"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"gopkg.in/yaml.v3"

	"github.com/picorelay/relayd/internal/config"
	"github.com/picorelay/relayd/internal/gpio"
	"github.com/picorelay/relayd/internal/mqtt"
	"github.com/picorelay/relayd/internal/relay"
	"github.com/picorelay/relayd/internal/security"
	"github.com/picorelay/relayd/internal/stats"
	"github.com/picorelay/relayd/internal/status"
	"github.com/picorelay/relayd/internal/web"
)

// sweepInterval is how often expired sessions, rate windows and lockout
// entries are reaped. Independent of HTTP traffic so state on a quiet
// device still expires.
const sweepInterval = time.Minute

func main() {
	configPath := flag.String("config", "relayd.yaml", "Path to YAML config file")
	poll := flag.Duration("poll", time.Second, "Safety timer polling interval")
	showConfig := flag.Bool("show-config", false, "Print the effective configuration and exit")

	flag.Parse()

	cfg, err := config.Load(*configPath)
	if err != nil {
		log.Fatalf("fatal: %v", err)
	}

	if *showConfig {
		printConfig(cfg)
		return
	}

	if err := run(cfg, *poll); err != nil {
		log.Fatalf("fatal: %v", err)
	}
}

// printConfig dumps the effective configuration with the password redacted.
func printConfig(cfg config.Config) {
	cfg.Auth.Password = "<redacted>"
	out, err := yaml.Marshal(cfg)
	if err != nil {
		log.Fatalf("fatal: %v", err)
	}
	fmt.Print(string(out))
}

func run(cfg config.Config, poll time.Duration) error {
	driver, err := gpio.NewRealDriver(cfg.Relay.PinNumber, cfg.Relay.ActiveLow)
	if err != nil {
		return fmt.Errorf("init gpio: %w", err)
	}
	defer driver.Close()

	store, err := stats.OpenSQLite(cfg.System.StatsPath)
	if err != nil {
		return fmt.Errorf("open stats: %w", err)
	}
	defer store.Close()

	boot, err := store.Load()
	if err != nil {
		// A corrupt stats file must not keep the relay offline.
		log.Printf("stats load failed, starting with zero counters: %v", err)
		boot = relay.Counters{}
	}

	ctrl, err := relay.New(driver, cfg.Timers(), boot, time.Now())
	if err != nil {
		return fmt.Errorf("init relay: %w", err)
	}

	hash, err := security.HashPassword(cfg.Auth.Password)
	if err != nil {
		return fmt.Errorf("hash password: %w", err)
	}
	mgr, err := security.NewManager(security.Config{
		Username:         cfg.Auth.Username,
		PasswordHash:     hash,
		SessionLifetime:  cfg.SessionLifetime(),
		CSRFLifetime:     cfg.CSRFLifetime(),
		MaxSessions:      cfg.Auth.MaxSessions,
		MaxLoginAttempts: cfg.Auth.MaxLoginAttempts,
		LockoutDuration:  cfg.LockoutDuration(),
		RateLimit:        cfg.API.RateLimit,
		RateWindow:       cfg.RateWindow(),
		MaxClients:       cfg.Auth.MaxClients,
	})
	if err != nil {
		return fmt.Errorf("init security: %w", err)
	}

	// MQTT is best-effort: the relay must stay controllable with the
	// broker down.
	var publisher mqtt.Publisher
	var mqttStatus mqtt.ConnectionStatus
	if cfg.MQTT.Broker != "" {
		real, err := mqtt.NewRealPublisher(cfg.MQTT.Broker, cfg.System.DeviceName)
		if err != nil {
			log.Printf("mqtt connect failed, continuing without broker: %v", err)
		} else {
			publisher = real
			mqttStatus = real
			defer real.Close()
		}
	}

	tracker := status.NewTracker(time.Now(), status.Config{
		DeviceName:       cfg.System.DeviceName,
		Pin:              cfg.Relay.PinNumber,
		ActiveLow:        cfg.Relay.ActiveLow,
		SafetyTimeoutSec: cfg.Relay.SafetyTimeoutSec,
		MaxOnTimeSec:     cfg.Relay.MaxOnTimeSec,
		PollMs:           poll.Milliseconds(),
		HeartbeatSec:     cfg.MQTT.HeartbeatSec,
		Broker:           cfg.MQTT.Broker,
		Addr:             cfg.Web.Addr,
	})
	tracker.Update(ctrl.Status(time.Now()), 0)

	srv := web.New(web.Config{
		Addr:            cfg.Web.Addr,
		MaxConnections:  cfg.Web.MaxConnections,
		RequestTimeout:  cfg.RequestTimeout(),
		MaxRequestBytes: cfg.Web.MaxRequestBytes,
		OpenStatus:      cfg.Web.OpenStatus,
		SessionLifetime: cfg.SessionLifetime(),
	}, ctrl, mgr, tracker, time.Now)
	srv.SetTransitionHook(func(tr relay.Transition) {
		if publisher != nil {
			if err := publisher.PublishTransition(tr); err != nil {
				log.Printf("publish transition: %v", err)
			}
		}
		if err := store.Save(ctrl.Counters()); err != nil {
			log.Printf("save counters: %v", err)
		}
	})
	go func() {
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Printf("http server error: %v", err)
		}
	}()
	defer srv.Shutdown(context.Background())
	log.Printf("http server listening on %s (max %d conns)", cfg.Web.Addr, cfg.Web.MaxConnections)

	// Publish startup event with full status snapshot.
	if publisher != nil {
		snap := tracker.Snapshot()
		startup := mqtt.SystemEvent{
			Timestamp:  snap.Now,
			Event:      "STARTUP",
			Retained:   true,
			RawPayload: status.FormatStatusEvent(snap, "STARTUP", ""),
		}
		if err := publisher.PublishSystem(startup); err != nil {
			log.Printf("failed to publish startup event: %v", err)
		}
	}

	log.Printf("started: pin=%d active_low=%v safety=%ds max_on=%ds poll=%v",
		cfg.Relay.PinNumber, cfg.Relay.ActiveLow, cfg.Relay.SafetyTimeoutSec, cfg.Relay.MaxOnTimeSec, poll)

	ticker := time.NewTicker(poll)
	defer ticker.Stop()

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)

	return runLoop(ctrl, mgr, store, publisher, mqttStatus, tracker, cfg.Heartbeat(), time.Now, ticker.C, sigCh)
}

// runLoop is the daemon's safety heart: every tick evaluates the relay
// timers so an expired ON session is forced OFF even when no HTTP
// traffic arrives. It returns after a shutdown signal, with the relay
// released.
func runLoop(ctrl *relay.Controller, sec *security.Manager, store stats.Store, publisher mqtt.Publisher, mqttStatus mqtt.ConnectionStatus, tracker *status.Tracker, heartbeat time.Duration, now func() time.Time, tick <-chan time.Time, sig <-chan os.Signal) error {
	start := now()
	lastSweep := start
	lastHeartbeat := start

	for {
		select {
		case s := <-sig:
			log.Printf("received %v, shutting down", s)
			signalName := "UNKNOWN"
			if s == syscall.SIGINT {
				signalName = "SIGINT"
			} else if s == syscall.SIGTERM {
				signalName = "SIGTERM"
			}

			t := now()
			if tr := ctrl.EmergencyStop(t); tr != nil {
				log.Printf("relay forced OFF on shutdown (was on %v)", tr.SessionDuration)
				publishTransition(publisher, *tr)
			}
			if store != nil {
				if err := store.Save(ctrl.Counters()); err != nil {
					log.Printf("save counters on shutdown: %v", err)
				}
			}

			if publisher != nil {
				event := mqtt.SystemEvent{
					Timestamp: t,
					Event:     "SHUTDOWN",
					Reason:    signalName,
					Retained:  true,
				}
				if tracker != nil {
					refreshTracker(tracker, ctrl, sec, mqttStatus, t)
					event.RawPayload = status.FormatStatusEvent(tracker.Snapshot(), "SHUTDOWN", signalName)
				}
				if err := publisher.PublishSystem(event); err != nil {
					log.Printf("failed to publish shutdown event: %v", err)
				}
			}
			return nil

		case <-tick:
			t := now()

			if tr := ctrl.Tick(t); tr != nil {
				log.Printf("safety timeout: relay forced OFF after %v", tr.SessionDuration)
				publishTransition(publisher, *tr)
				if store != nil {
					if err := store.Save(ctrl.Counters()); err != nil {
						log.Printf("save counters: %v", err)
					}
				}
			}

			if t.Sub(lastSweep) >= sweepInterval {
				if n := sec.Sweep(t); n > 0 {
					log.Printf("sweep: removed %d expired entries", n)
				}
				lastSweep = t
			}

			if tracker != nil {
				refreshTracker(tracker, ctrl, sec, mqttStatus, t)
			}

			if heartbeat > 0 && t.Sub(lastHeartbeat) >= heartbeat {
				lastHeartbeat = t
				if publisher != nil {
					hb := mqtt.SystemEvent{Timestamp: t, Event: "HEARTBEAT"}
					if tracker != nil {
						hb.RawPayload = status.FormatStatusEvent(tracker.Snapshot(), "HEARTBEAT", "")
					}
					if err := publisher.PublishSystem(hb); err != nil {
						log.Printf("heartbeat publish error: %v", err)
					}
				}
			}
		}
	}
}

func publishTransition(publisher mqtt.Publisher, tr relay.Transition) {
	if publisher == nil {
		return
	}
	if err := publisher.PublishTransition(tr); err != nil {
		log.Printf("publish transition: %v", err)
	}
}

func refreshTracker(tracker *status.Tracker, ctrl *relay.Controller, sec *security.Manager, mqttStatus mqtt.ConnectionStatus, t time.Time) {
	tracker.Update(ctrl.Status(t), sec.SessionCount())
	if mqttStatus != nil {
		tracker.SetMQTTConnected(mqttStatus.IsConnected())
	}
}
