// Package app wires the call engine together: configuration, signaling
// transport, relay transport, engine and status API.
package app

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/sebas/relaycall/internal/callengine/api"
	"github.com/sebas/relaycall/internal/callengine/call"
	"github.com/sebas/relaycall/internal/callengine/config"
	"github.com/sebas/relaycall/internal/callengine/relay"
	"github.com/sebas/relaycall/internal/callengine/signal"
)

// App is the assembled call engine service.
type App struct {
	cfg    *config.Config
	sipT   *signal.SIPTransport
	relayT relay.Transport
	engine *call.Engine
	apiSrv *api.Server
}

// New builds the service from configuration. The relay transport is
// only dialed when a relay URL is configured; without it calls proceed
// unmediated.
func New(cfg *config.Config) (*App, error) {
	sipT, err := signal.NewSIPTransport(signal.SIPConfig{
		BindAddr:      cfg.BindAddr,
		Port:          cfg.Port,
		AdvertiseAddr: cfg.AdvertiseAddr,
		User:          cfg.User,
	})
	if err != nil {
		return nil, fmt.Errorf("create SIP transport: %w", err)
	}

	var relayT relay.Transport
	relayAddr := ""
	if cfg.RelayURL != "" {
		wsCfg := relay.DefaultWSConfig()
		wsCfg.URL = cfg.RelayURL
		wsCfg.ReplyTimeout = cfg.ReplyTimeout
		relayT, err = relay.NewWSTransport(wsCfg)
		if err != nil {
			sipT.Close()
			return nil, fmt.Errorf("connect to relay: %w", err)
		}
		relayAddr = cfg.RelayAddress
		if relayAddr == "" {
			relayAddr = cfg.RelayURL
		}
	}

	var autoAnswer call.AutoAnswerPolicy
	if cfg.AutoAnswer {
		autoAnswer = call.AnswerAll()
	}

	engine := call.NewEngine(call.EngineConfig{
		Relay:        relayT,
		Signal:       sipT,
		RelayAddress: relayAddr,
		LocalAddress: cfg.LocalAddress(),
		Security:     call.SecurityPolicy{MandatoryEncryption: cfg.MandatoryEncryption},
		AutoAnswer:   autoAnswer,
	})

	return &App{
		cfg:    cfg,
		sipT:   sipT,
		relayT: relayT,
		engine: engine,
		apiSrv: api.NewServer(cfg.APIAddr, engine),
	}, nil
}

// Engine returns the call engine.
func (a *App) Engine() *call.Engine {
	return a.engine
}

// Start runs the SIP listener, the relay update pump and the status API
// until the context is canceled.
func (a *App) Start(ctx context.Context) error {
	if err := a.apiSrv.Start(); err != nil {
		return err
	}

	go a.engine.Run(ctx)
	go a.drainEvents(ctx)

	return a.sipT.Serve(ctx)
}

// drainEvents logs engine events. A real frontend would consume the
// stream instead.
func (a *App) drainEvents(ctx context.Context) {
	for {
		select {
		case ev := <-a.engine.Events().C():
			slog.Info("Engine event",
				"event_type", string(ev.EventType),
				"call_id", ev.CallID,
				"peer", ev.PeerAddress,
				"peer_state", ev.PeerState,
				"reason", ev.Reason)
		case <-ctx.Done():
			return
		}
	}
}

// Close releases all transports.
func (a *App) Close() {
	if a.apiSrv != nil {
		a.apiSrv.Stop()
	}
	if a.relayT != nil {
		a.relayT.Close()
	}
	if a.sipT != nil {
		a.sipT.Close()
	}
}
