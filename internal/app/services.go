package app

import (
	"context"
	"fmt"
	"time"

	"github.com/rs/zerolog/log"

	"github.com/anshulkhare7/shadowd/internal/config"
	"github.com/anshulkhare7/shadowd/internal/db"
	"github.com/anshulkhare7/shadowd/internal/equipment"
	"github.com/anshulkhare7/shadowd/internal/heartbeat"
	"github.com/anshulkhare7/shadowd/internal/httpapi"
	"github.com/anshulkhare7/shadowd/internal/ledger"
	"github.com/anshulkhare7/shadowd/internal/mqtt"
	"github.com/anshulkhare7/shadowd/internal/shadow"
)

// Services is a container for all application services.
// It manages service initialization order and dependencies.
type Services struct {
	cfg *config.Config

	// Core infrastructure
	DB     *db.DB
	Ledger *ledger.Ledger

	// Hardware and transport singletons
	Equipment *equipment.Controller
	Transport *mqtt.Client

	// High-level services
	Engine    *shadow.Engine
	Heartbeat *heartbeat.Publisher
	API       *httpapi.Server

	engineDone chan struct{}
}

// NewServices creates all services with proper dependency injection.
func NewServices(cfg *config.Config) (*Services, error) {
	s := &Services{cfg: cfg}

	// Initialize the hardware driver and controller
	driver, err := newDriver(&cfg.GPIO)
	if err != nil {
		return nil, err
	}
	s.Equipment = equipment.New(driver)

	// Initialize the reconciliation ledger
	if cfg.Ledger.IsEnabled() {
		database, err := db.Open(cfg.Database.Path)
		if err != nil {
			s.Close()
			return nil, err
		}
		s.DB = database
		s.Ledger = ledger.New(database.DB)
	}

	// Initialize the transport. Lifecycle callbacks run on the client's
	// goroutines and reach the engine through its event queue; the engine is
	// assigned before Connect is ever called.
	s.Transport, err = mqtt.NewClient(mqtt.Config{
		BrokerURL:      cfg.MQTT.BrokerURL(),
		ClientID:       cfg.MQTT.ClientID,
		CAFile:         cfg.MQTT.CAFile,
		CertFile:       cfg.MQTT.CertFile,
		KeyFile:        cfg.MQTT.KeyFile,
		KeepAlive:      cfg.MQTT.KeepAlive.Duration(),
		ConnectTimeout: cfg.MQTT.ConnectTimeout.Duration(),
		AckTimeout:     cfg.MQTT.AckTimeout.Duration(),
	}, func() {
		s.Engine.OnConnect()
	}, func(err error) {
		s.Engine.OnConnectionLost(err)
	})
	if err != nil {
		s.Close()
		return nil, err
	}

	// Initialize the shadow engine
	topics := shadow.TopicsFor(cfg.Thing.ID)
	publisher := shadow.NewPublisher(s.Transport, topics.Update, cfg.Shadow.PublishRateRPS)

	var recorder shadow.Recorder
	if s.Ledger != nil {
		recorder = s.Ledger
	}
	s.Engine = shadow.NewEngine(cfg.Thing.ID, s.Transport, s.Equipment, publisher, recorder)

	// Initialize telemetry and the control API
	if cfg.Heartbeat.IsEnabled() {
		s.Heartbeat = heartbeat.New(cfg.Thing.ID, cfg.Heartbeat.Topic, cfg.Heartbeat.Interval.Duration(), s.Transport, s.Equipment)
	}
	if cfg.HTTP.IsEnabled() {
		s.API = httpapi.NewServer(cfg.HTTP.Host, cfg.HTTP.Port, s.Engine, s.Ledger)
	}

	return s, nil
}

// newDriver builds the configured hardware driver.
func newDriver(cfg *config.GPIOConfig) (equipment.Driver, error) {
	switch cfg.Driver {
	case "memory":
		log.Warn().Msg("Using in-memory GPIO driver, no hardware will be driven")
		return equipment.NewMemory(), nil
	case "gpiod":
		pins := make(map[equipment.Kind]int, len(cfg.Pins))
		for name, pin := range cfg.Pins {
			kind, err := equipment.ParseKind(name)
			if err != nil {
				return nil, fmt.Errorf("gpio.pins: %w", err)
			}
			pins[kind] = pin
		}
		return equipment.NewGPIOD(cfg.Chip, pins, cfg.IsActiveLow())
	}
	return nil, fmt.Errorf("unknown gpio driver %q", cfg.Driver)
}

// Start starts all services in the correct order. The engine loop must be
// consuming before the transport can deliver its first connect event.
func (s *Services) Start(ctx context.Context) error {
	s.engineDone = make(chan struct{})
	go func() {
		defer close(s.engineDone)
		if err := s.Engine.Run(ctx); err != nil {
			log.Error().Err(err).Msg("Shadow engine error")
		}
	}()

	// Connect in the background: the client retries on its own, and the
	// control API answers "not ready" until startup sync completes.
	go func() {
		if err := s.Transport.Connect(ctx); err != nil {
			log.Error().Err(err).Msg("Failed to connect to broker")
		}
	}()

	if s.Heartbeat != nil {
		go func() {
			if err := s.Heartbeat.Run(ctx); err != nil {
				log.Error().Err(err).Msg("Heartbeat publisher error")
			}
		}()
	}

	if s.API != nil {
		go func() {
			if err := s.API.Run(ctx, s.cfg.ShutdownTimeout.Duration()); err != nil {
				log.Error().Err(err).Msg("Control API server error")
			}
		}()
	}

	if s.Ledger != nil {
		go s.runLedgerCleanup(ctx)
	}

	return nil
}

// runLedgerCleanup periodically removes old reconciliation history.
func (s *Services) runLedgerCleanup(ctx context.Context) {
	retention := time.Duration(s.cfg.Ledger.RetentionDays) * 24 * time.Hour
	ticker := time.NewTicker(s.cfg.Ledger.CleanupInterval.Duration())
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			deleted, err := s.Ledger.DeleteOlderThan(retention)
			if err != nil {
				log.Error().Err(err).Msg("Failed to cleanup old ledger entries")
			} else if deleted > 0 {
				log.Info().Int64("deleted", deleted).Dur("retention", retention).Msg("Cleaned up old ledger entries")
			}
		}
	}
}

// Stop gracefully stops all services. The engine finishes its in-flight
// batch, outputs are driven to the safe off state, then the transport and
// database are released.
func (s *Services) Stop() error {
	if s.engineDone != nil {
		select {
		case <-s.engineDone:
		case <-time.After(s.cfg.ShutdownTimeout.Duration()):
			log.Warn().Msg("Timed out waiting for shadow engine to stop")
		}
	}

	if s.Equipment != nil {
		if err := s.Equipment.AllOff(); err != nil {
			log.Error().Err(err).Msg("Failed to drive outputs to safe state")
		} else {
			log.Info().Msg("All outputs driven to safe state")
		}
	}

	s.Close()
	return nil
}

// Close releases all resources.
func (s *Services) Close() {
	if s.Transport != nil {
		s.Transport.Disconnect()
	}
	if s.Equipment != nil {
		if err := s.Equipment.Close(); err != nil {
			log.Error().Err(err).Msg("Failed to close equipment driver")
		}
	}
	if s.DB != nil {
		s.DB.Close()
	}
}
