// Interview console: drives a live voice interview against a
// realtime conversational backend, with a local web dashboard for
// session control, the protocol event log, and audio visualization.
package main

import (
	"context"
	"flag"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/marcussrh/interview-console/internal/config"
	"github.com/marcussrh/interview-console/internal/log"
	"github.com/marcussrh/interview-console/pkg/audio"
	"github.com/marcussrh/interview-console/pkg/interview"
	"github.com/marcussrh/interview-console/pkg/realtime"
	"github.com/marcussrh/interview-console/pkg/report"
	"github.com/marcussrh/interview-console/pkg/visualizer"
	"github.com/marcussrh/interview-console/pkg/web"
)

const (
	vizWidth  = 300
	vizHeight = 100
)

func main() {
	if err := run(); err != nil {
		fmt.Fprintf(os.Stderr, "interview-console: %v\n", err)
		os.Exit(1)
	}
}

func run() error {
	configPath := flag.String("config", "", "Path to config file (optional)")
	interviewID := flag.String("interview-id", "", "Interview to conduct (required)")
	level := flag.String("level", "", "Log level: debug, info, warn, error (overrides config)")
	addr := flag.String("addr", "", "Dashboard listen address (overrides config)")
	staticDir := flag.String("static", "", "Dashboard static assets directory (optional)")
	flag.Parse()

	if *interviewID == "" {
		return fmt.Errorf("--interview-id is required")
	}

	cfg, err := config.Load(*configPath)
	if err != nil {
		return err
	}
	if err := cfg.Validate(); err != nil {
		return err
	}

	if *level != "" {
		cfg.LogLevel = *level
	}
	log.Init(cfg.LogLevel)
	logger := log.Component("console")

	client, err := realtime.NewClient(
		realtime.WithURL(cfg.StreamURL()),
		realtime.WithAPIKey(cfg.RealtimeAPIKey),
		realtime.WithSampleRate(cfg.SampleRate),
		realtime.WithLogger(log.Component("realtime")),
	)
	if err != nil {
		return err
	}

	capture := audio.NewMalgoCapture(cfg.SampleRate)
	recorder := audio.NewRecorder(capture,
		audio.WithRecorderSampleRate(cfg.SampleRate),
		audio.WithRecorderLogger(log.Component("recorder")),
	)

	playback := audio.NewOtoPlayback(cfg.SampleRate)
	player := audio.NewStreamPlayer(playback,
		audio.WithPlayerSampleRate(cfg.SampleRate),
		audio.WithPlayerLogger(log.Component("player")),
	)
	defer player.Close()

	reporter := report.NewGenerator(report.Config{
		CompletionsURL: cfg.ChatCompletionsURL,
		APIKey:         cfg.RealtimeAPIKey,
		Model:          cfg.ReportModel,
		BackendURL:     cfg.BackendURL,
		Logger:         log.Component("report"),
	})
	backend := interview.NewBackendClient(cfg.BackendURL, log.Component("backend"))

	session := interview.NewSession(*interviewID, client, recorder, player,
		reporter, backend,
		interview.WithSessionLogger(log.Component("session")),
	)

	listenAddr := *addr
	if listenAddr == "" {
		listenAddr = ":" + cfg.DashboardPort
	}
	webOpts := []web.Option{
		web.WithAddr(listenAddr),
		web.WithLogger(log.Component("web")),
	}
	if *staticDir != "" {
		webOpts = append(webOpts, web.WithStaticDir(*staticDir))
	}
	server := web.NewServer(session, webOpts...)

	clientSurface := visualizer.NewSurface(visualizer.DirectionClient, visualizer.ClientStyle())
	clientSurface.Resize(vizWidth, vizHeight)
	serverSurface := visualizer.NewSurface(visualizer.DirectionServer, visualizer.ServerStyle())
	serverSurface.Resize(vizWidth, vizHeight)
	loop := visualizer.NewLoop(clientSurface, serverSurface,
		session.InputFrequencies, session.OutputFrequencies, server.PublishFrame)
	loop.Start()
	defer loop.Stop()

	ctx, cancel := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer cancel()

	errCh := make(chan error, 1)
	go func() { errCh <- server.Start() }()

	logger.Info("interview console ready",
		"interview_id", *interviewID, "dashboard", listenAddr)

	select {
	case <-ctx.Done():
		logger.Info("shutting down")
	case err := <-errCh:
		if err != nil {
			return err
		}
	}

	// Finish a live session cleanly so the transcript is scored and
	// persisted before exit.
	if session.State() == interview.StateLive {
		if err := session.Disconnect(context.Background()); err != nil {
			logger.Error("session teardown failed", "error", err)
		}
	}
	return server.Shutdown()
}
