// Package show owns the application root: one Show value holds every
// collaborator the real-time core needs (per-universe controllers, the
// master clock, the fx engine, fixture patch, scene tracking and
// sequencing) and the process wires it once at startup instead of reaching
// for package-level singletons (spec.md §9 design notes).
package show

import (
	"fmt"
	"log"

	"github.com/lacylights/dmxcore/internal/clock"
	"github.com/lacylights/dmxcore/internal/config"
	"github.com/lacylights/dmxcore/internal/fixture"
	"github.com/lacylights/dmxcore/internal/fx"
	"github.com/lacylights/dmxcore/internal/pubsub"
	"github.com/lacylights/dmxcore/internal/scene"
	"github.com/lacylights/dmxcore/internal/transaction"
	"github.com/lacylights/dmxcore/internal/universe"
	"github.com/lacylights/dmxcore/pkg/artnet"
)

// Show is the application root. Construct one on startup after
// configuration is parsed; tear it down on shutdown, which flushes one
// final frame per universe.
type Show struct {
	cfg *config.Config

	Controllers map[string]*universe.UniverseController
	TxRegistry  *transaction.MapRegistry
	Fixtures    *fixture.Registry
	Clock       *clock.MasterClock
	FxEngine    *fx.Engine
	Tracker     *scene.Tracker
	Sequencer   *scene.Sequencer
	PubSub      *pubsub.PubSub
}

// New builds every collaborator and wires the listeners between them. It
// starts only one goroutine per universe that waits for a fatal transport
// error; the clock and controller loops are started by Start.
func New(cfg *config.Config) (*Show, error) {
	controllers := make(map[string]*universe.UniverseController, len(cfg.Universes))
	txControllers := make(map[string]transaction.Controller, len(cfg.Universes))

	for _, uc := range cfg.Universes {
		key := universeKey(uc.Subnet, uc.Universe)

		transport, err := buildTransport(cfg, uc)
		if err != nil {
			return nil, fmt.Errorf("show: build transport for universe %s: %w", key, err)
		}

		ctrl := universe.NewUniverseController(universe.Config{
			Address:                artnet.Address{Subnet: uc.Subnet, Universe: uc.Universe},
			CadenceMs:              cfg.CadenceMs,
			FadeStepMs:             cfg.FadeStepMs,
			RefreshMs:              cfg.RefreshMs,
			MaxConsecutiveSendErrs: cfg.MaxConsecutiveSendErrs,
			NeedsRefresh:           uc.NeedsRefresh,
			IdleRateHz:             cfg.IdleRateHz,
			HighRateDuration:       cfg.HighRateDuration,
		}, transport)

		controllers[key] = ctrl
		txControllers[key] = ctrl
	}

	txReg := transaction.NewMapRegistry(txControllers)
	fixtures := fixture.NewRegistry()
	mclock := clock.New(cfg.DefaultBPM)
	fxEngine := fx.NewEngine(fixtures, txReg, mclock)
	tracker := scene.NewTracker()
	sequencer := scene.NewSequencer(txReg, tracker)
	ps := pubsub.New()

	s := &Show{
		cfg:         cfg,
		Controllers: controllers,
		TxRegistry:  txReg,
		Fixtures:    fixtures,
		Clock:       mclock,
		FxEngine:    fxEngine,
		Tracker:     tracker,
		Sequencer:   sequencer,
		PubSub:      ps,
	}
	s.wire()
	return s, nil
}

// wire connects each universe's emitted-frame feed to scene invalidation
// and the debug pubsub, and forwards sequencer status to the pubsub.
func (s *Show) wire() {
	for key, ctrl := range s.Controllers {
		key := key
		ctrl.Subscribe(func(diff universe.ChannelDiff) {
			s.Tracker.OnChannelsChanged(key, diff)
			s.PubSub.Publish(pubsub.TopicFrameEmitted, key, diff)
		})
		go func(key string, ctrl *universe.UniverseController) {
			if err := <-ctrl.FatalErrors(); err != nil {
				s.PubSub.Publish(pubsub.TopicUniverseFatal, key, err)
				log.Printf("show: universe %s reported a fatal transport error: %v", key, err)
			}
		}(key, ctrl)
	}

	s.Sequencer.Subscribe(func(status scene.PlaybackState) {
		s.PubSub.PublishAll(pubsub.TopicSequencerStatus, status)
	})
}

// Start launches every universe controller's loops, attaches the fx engine
// to the master clock, and starts the clock.
func (s *Show) Start() {
	for _, ctrl := range s.Controllers {
		ctrl.Start()
	}
	s.FxEngine.Attach()
	s.Clock.Start()
}

// Shutdown stops the clock and every universe controller in turn, which
// flushes one final frame (a blackout is the caller's choice, not ours:
// Shutdown preserves whatever state was live) per universe before the
// transport closes.
func (s *Show) Shutdown() {
	s.Clock.Stop()
	for key, ctrl := range s.Controllers {
		ctrl.Stop()
		log.Printf("show: universe %s stopped", key)
	}
}

func universeKey(subnet, universe uint8) string {
	return fmt.Sprintf("%d.%d", subnet, universe)
}

func buildTransport(cfg *config.Config, uc config.UniverseConfig) (universe.Transport, error) {
	if !cfg.ArtNetEnabled {
		return nil, nil
	}

	host := cfg.ArtNetBroadcastAddr
	if uc.Transport == config.TransportUnicast {
		host = uc.UnicastAddr
	}
	return artnet.NewTransport(host, cfg.ArtNetPort)
}
