package app

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog/log"

	"github.com/dokzlo13/lightlink/internal/config"
	"github.com/dokzlo13/lightlink/internal/db"
	"github.com/dokzlo13/lightlink/internal/instance"
	"github.com/dokzlo13/lightlink/internal/ledger"
	"github.com/dokzlo13/lightlink/internal/light"
	"github.com/dokzlo13/lightlink/internal/mqtt"
	"github.com/dokzlo13/lightlink/internal/payload"
	"github.com/dokzlo13/lightlink/internal/remote"
)

// Services is a container for all application services.
// It manages service initialization order and dependencies.
type Services struct {
	cfg *config.Config

	// Core infrastructure
	DB     *db.DB
	Ledger *ledger.Ledger

	// Transports: host-side message channels and the remote link
	Host   *mqtt.Client
	Remote *mqtt.Client

	// Device pipeline
	Provider *remote.Provider
	Bridge   *mqtt.Bridge
	Instance *instance.Instance
}

// NewServices creates all services with proper dependency injection.
func NewServices(cfg *config.Config) (*Services, error) {
	s := &Services{cfg: cfg}

	deviceID := cfg.Device.ID
	if deviceID == "" {
		deviceID = uuid.NewString()
		log.Info().Str("device", deviceID).Msg("No device ID configured, generated one")
	}

	// Diagnostics ledger (optional)
	if cfg.Ledger.Enabled {
		database, err := db.Open(cfg.Database.Path)
		if err != nil {
			return nil, err
		}
		s.DB = database
		s.Ledger = ledger.New(database.DB, deviceID)
	}

	// Resolve configured on/off values once, at startup
	onValue, err := payload.Resolve(cfg.Device.OnValue)
	if err != nil {
		s.Close()
		return nil, fmt.Errorf("device.on_value: %w", err)
	}
	offValue, err := payload.Resolve(cfg.Device.OffValue)
	if err != nil {
		s.Close()
		return nil, fmt.Errorf("device.off_value: %w", err)
	}

	// Connect both brokers
	s.Host, err = mqtt.Connect(mqtt.Config{
		Broker:   cfg.MQTT.Broker,
		ClientID: cfg.MQTT.ClientID,
		Username: cfg.MQTT.Username,
		Password: cfg.MQTT.Password,
		QoS:      byte(cfg.MQTT.QoS),
	})
	if err != nil {
		s.Close()
		return nil, err
	}
	s.Remote, err = mqtt.Connect(mqtt.Config{
		Broker:   cfg.Remote.Broker,
		ClientID: cfg.Remote.ClientID,
		Username: cfg.Remote.Username,
		Password: cfg.Remote.Password,
		QoS:      1,
	})
	if err != nil {
		s.Close()
		return nil, err
	}

	s.Provider = remote.NewProvider(s.Remote, cfg.Remote)
	s.Bridge = mqtt.NewBridge(s.Host, cfg.MQTT)

	sinks := instance.Sinks{
		Emitter: s.Bridge,
		Status:  s.Bridge,
		Warn:    s.Bridge,
	}
	if s.Ledger != nil {
		sinks.Recorder = s.Ledger
	}

	s.Instance = instance.New(instance.Options{
		ID:   deviceID,
		Name: cfg.Device.Name,
		Room: cfg.Device.Room,
		Caps: light.Caps{
			Brightness: cfg.Device.BrightnessControl,
			Color:      cfg.Device.ColorControl,
		},
		Structured:         cfg.Device.StructuredPayload,
		BrightnessOverride: cfg.Device.BrightnessOverride,
		OnValue:            onValue,
		OffValue:           offValue,
		Passthrough:        cfg.Device.Passthrough,
		OutTopic:           cfg.MQTT.OutputTopic,
	}, s.Provider, sinks)
	s.Bridge.Bind(s.Instance)

	return s, nil
}

// maxCleanupFailures is how many consecutive ledger cleanup failures
// are tolerated before the database is considered broken.
const maxCleanupFailures = 3

// Start starts all services in the correct order.
// The onFatalError callback is called when a fatal error occurs.
func (s *Services) Start(ctx context.Context, onFatalError func(error)) error {
	s.Instance.Start()

	if err := s.Bridge.Start(); err != nil {
		return err
	}

	if s.Ledger != nil {
		go s.runLedgerCleanup(ctx, onFatalError)
	}

	return nil
}

// runLedgerCleanup periodically enforces the ledger retention policy.
// A single failure is transient; consecutive failures past the
// threshold escalate to onFatalError.
func (s *Services) runLedgerCleanup(ctx context.Context, onFatalError func(error)) {
	interval := s.cfg.Ledger.CleanupInterval.Duration()
	retention := time.Duration(s.cfg.Ledger.RetentionDays) * 24 * time.Hour

	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	failures := 0
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			n, err := s.Ledger.DeleteOlderThan(retention)
			if err != nil {
				failures++
				if failures >= maxCleanupFailures {
					if onFatalError != nil {
						onFatalError(fmt.Errorf("ledger cleanup failed %d times: %w", failures, err))
					}
					return
				}
				log.Warn().Err(err).Msg("Ledger cleanup failed")
				continue
			}
			failures = 0
			if n > 0 {
				log.Debug().Int64("removed", n).Msg("Ledger cleanup done")
			}
		}
	}
}

// Stop gracefully stops all services.
func (s *Services) Stop() error {
	s.Close()
	return nil
}

// Close releases all resources.
func (s *Services) Close() {
	if s.Instance != nil {
		s.Instance.Close()
	}
	if s.Remote != nil {
		s.Remote.Close()
	}
	if s.Host != nil {
		s.Host.Close()
	}
	if s.DB != nil {
		s.DB.Close()
	}
}
