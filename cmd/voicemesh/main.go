package main

import (
	"context"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/pion/webrtc/v4"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"

	"github.com/squadlink/voicemesh/internal/adapters/httpapi"
	"github.com/squadlink/voicemesh/internal/adapters/rtc"
	"github.com/squadlink/voicemesh/internal/adapters/signalws"
	"github.com/squadlink/voicemesh/internal/app"
	"github.com/squadlink/voicemesh/internal/config"
	"github.com/squadlink/voicemesh/internal/domain"
)

func main() {
	ctx, cancel := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer cancel()

	// Initialize zerolog global logger early so config.Load can use it.
	zerolog.TimeFieldFormat = zerolog.TimeFormatUnix
	// Human-friendly output for terminal; in production you may want JSON only.
	log.Logger = log.Output(zerolog.ConsoleWriter{Out: os.Stderr})
	zerolog.SetGlobalLevel(zerolog.InfoLevel)

	cfg, err := config.Load()
	if err != nil {
		log.Fatal().Err(err).Msg("failed to load config")
	}

	self, err := domain.NewParticipantRef(
		domain.ParticipantID(cfg.ParticipantID),
		cfg.DisplayName,
		domain.Role(cfg.Role),
	)
	if err != nil {
		log.Fatal().Err(err).Msg("invalid identity")
	}

	sig := signalws.New(signalws.Config{
		Endpoint:     cfg.SignalURL,
		Identity:     self,
		ReconnectMin: cfg.ReconnectMin,
		ReconnectMax: cfg.ReconnectMax,
		PingPeriod:   cfg.PingPeriod,
		ReadLimit:    cfg.ReadLimit,
	})

	capture := rtc.NewCapture(rtc.OpenUDP(cfg.CaptureAddr))

	fallback := make([]webrtc.ICEServer, 0, len(cfg.StunURLs))
	for _, u := range cfg.StunURLs {
		fallback = append(fallback, webrtc.ICEServer{URLs: []string{u}})
	}
	if len(fallback) == 0 {
		fallback = rtc.DefaultICEServers()
	}

	sess := app.NewSession(app.Config{
		Self:               self,
		Signal:             sig,
		Capture:            capture,
		Factory:            rtc.NewTransportFactory(fallback),
		NegotiationTimeout: cfg.NegotiationTimeout,
	})
	capture.OnSpeaking(sess.LocalSpeaking)

	sessDone := make(chan struct{})
	go func() {
		sess.Run(ctx)
		close(sessDone)
	}()

	r := httpapi.SetupRouter(cfg, sess)
	addr := fmt.Sprintf(":%d", cfg.HTTPPort)
	srv := &http.Server{
		Addr:    addr,
		Handler: r,
	}

	go func() {
		log.Info().Str("addr", addr).Str("participant", cfg.ParticipantID).Msg("voicemesh client started")
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Error().Err(err).Msg("server error")
		}
	}()

	<-ctx.Done()
	log.Info().Msg("Shutting down")
	<-sessDone
	sig.Close()

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer shutdownCancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		log.Error().Err(err).Msg("Server forced to shutdown")
	}
	log.Info().Msg("Exited gracefully")
}
