// Command boardpilot wires the full perception-decision-execution
// pipeline together and runs one session: flag parsing, config.Load,
// logger.Setup, component construction, graceful shutdown on signal.
// CLI argument parsing beyond a handful of override flags and YAML
// config loading belong to a richer host program; this command only
// assembles already-resolved configuration.
package main

import (
	"context"
	"flag"
	"fmt"
	"image"
	"image/png"
	"net/http"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"
	"time"

	"github.com/google/uuid"
	"github.com/gorilla/websocket"
	"github.com/rs/zerolog/log"

	"github.com/kestrelsoft/boardpilot/internal/decision"
	"github.com/kestrelsoft/boardpilot/internal/domain"
	bperr "github.com/kestrelsoft/boardpilot/internal/domain/errors"
	"github.com/kestrelsoft/boardpilot/internal/executor"
	"github.com/kestrelsoft/boardpilot/internal/geometry"
	"github.com/kestrelsoft/boardpilot/internal/infrastructure/config"
	"github.com/kestrelsoft/boardpilot/internal/infrastructure/logger"
	"github.com/kestrelsoft/boardpilot/internal/infrastructure/storage"
	"github.com/kestrelsoft/boardpilot/internal/platform"
	"github.com/kestrelsoft/boardpilot/internal/recognition"
	"github.com/kestrelsoft/boardpilot/internal/rules"
	"github.com/kestrelsoft/boardpilot/internal/session"
	"github.com/kestrelsoft/boardpilot/internal/telemetry"
	"github.com/kestrelsoft/boardpilot/internal/template"
	"github.com/kestrelsoft/boardpilot/internal/vision"
	"github.com/kestrelsoft/boardpilot/internal/vlm"
)

func main() {
	platformName := flag.String("platform", "", "registered platform adapter name (overrides BOARDPILOT_PLATFORM)")
	dryRun := flag.Bool("dry-run", false, "force dry-run mode regardless of config")
	requireFull := flag.Bool("require-full", false, "fail startup unless every capability is available")
	templateRoot := flag.String("template-root", "gamedata/templates", "filesystem root for the template registry")
	selfCheck := flag.Bool("self-check", false, "replay the offline pipeline against fixture screenshots and exit")
	selfCheckOut := flag.String("self-check-out", "selfcheck_results.json", "path the self-check results artifact is written to")
	fixtureDir := flag.String("fixtures", "", "directory of fixture PNGs for self-check (synthetic frames when empty)")
	flag.Parse()

	cfg := config.Load()
	if *platformName != "" {
		cfg.PlatformName = *platformName
	}
	if *dryRun {
		cfg.DryRun = true
	}
	if *requireFull {
		cfg.RequireFull = true
	}

	logger.Setup(cfg.LogLevel)

	catalog := geometry.NewRegionCatalog()
	registry := loadTemplateRegistry(*templateRoot)

	matcher := vision.NewMatcher(templateLoaderFor(registry, *templateRoot))
	ocrEngine := vision.NewEngine() // no OCR backend ships with boardpilot; see capability matrix below
	recognitionEngine := recognition.NewEngine(catalog, matcher, ocrEngine, registry)

	ruleEngine := rules.NewQuickActionEngine()

	var vlmBackend decision.VLMBackend
	vlmConfigured := cfg.VLMAPIKey != ""
	if vlmConfigured {
		vlmCfg := vlm.DefaultConfig()
		vlmCfg.Model = cfg.VLMModel
		vlmCfg.Timeout = cfg.VLMTimeout
		vlmCfg.MaxRetries = cfg.VLMMaxRetries
		vlmCfg.BudgetPerSession = cfg.VLMBudgetPerSession
		if cfg.VLMBaseURL != "" {
			vlmBackend = vlm.NewWithBaseURL(cfg.VLMAPIKey, cfg.VLMBaseURL, vlmCfg)
		} else {
			vlmBackend = vlm.New(cfg.VLMAPIKey, vlmCfg)
		}
	}

	capMatrix := vision.BuildCapabilityMatrix(ocrEngine, true, vlmConfigured)
	log.Info().Str("flavor", string(capMatrix.Flavor())).Msg("capability matrix computed")
	if missing := capMatrix.RequireFull(cfg.RequireFull); len(missing) > 0 {
		for _, m := range missing {
			log.Error().Str("capability", m.Name).Str("status", string(m.Status)).Msg("required capability unavailable")
		}
		log.Fatal().Err(bperr.NewFatalError("require_full set but one or more capabilities are not available", nil)).Msg("startup aborted")
	}

	decisionEngine := decision.New(ruleEngine, vlmBackend, catalog)

	costLookup := func(heroID string) int { return 0 } // no static game-data cost table ships with boardpilot

	if *selfCheck {
		offlineEngine := decision.New(ruleEngine, nil, catalog)
		if err := runSelfCheck(recognitionEngine, offlineEngine, costLookup, *fixtureDir, *selfCheckOut); err != nil {
			log.Fatal().Err(err).Msg("self-check failed to write its results artifact")
		}
		return
	}

	adapter, err := resolveAdapter(cfg.PlatformName)
	if err != nil {
		log.Fatal().Err(err).Msg("no usable platform adapter")
	}

	initialSize := geometry.BaseResolution
	if info, ok, err := adapter.WindowInfo(context.Background()); err == nil && ok {
		initialSize = geometry.Size{W: info.Width, H: info.Height}
	}

	exec, err := executor.New(adapter, catalog, initialSize, executor.DefaultHumanization())
	if err != nil {
		log.Fatal().Err(err).Msg("failed to construct executor")
	}

	safety := session.DefaultSafety()
	safety.DryRun = cfg.DryRun
	safety.MaxActionsPerMin = cfg.MaxActionsPerMin
	safety.MaxClicks = cfg.MaxClicks
	safety.SessionTimeout = cfg.SessionTimeout
	safety.DecisionInterval = cfg.DecisionInterval

	if !safety.DryRun && vlmConfigured && cfg.VLMBudgetPerSession <= 0 {
		log.Fatal().Err(bperr.NewFatalError("live mode with a configured VLM provider requires a positive call budget", nil)).
			Msg("startup aborted")
	}

	loop := session.New(adapter, exec, recognitionEngine, decisionEngine, costLookup, catalog, safety)

	sessionID := uuid.New()

	if cfg.TelemetryAddr != "" {
		hub := telemetry.NewHub()
		go hub.Run()
		loop.Telemetry = hub
		go serveTelemetry(cfg.TelemetryAddr, hub)
	}

	if cfg.DatabaseDSN != "" {
		store := storage.NewTickStore(cfg.DatabaseDSN, sessionID)
		ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		if err := store.InitSchema(ctx); err != nil {
			log.Warn().Err(err).Msg("tick store schema init failed, running without persistence")
		} else {
			loop.Store = store
		}
		cancel()
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	log.Info().Str("session_id", sessionID.String()).Bool("dry_run", safety.DryRun).Msg("starting session")
	summary := loop.Run(ctx)
	log.Info().
		Int("decisions", summary.Decisions).
		Int("executed", summary.Executed).
		Int("errors", summary.Errors).
		Int("recognition_failures", summary.RecognitionFailures).
		Int("safety_blocks", summary.SafetyBlocks).
		Dur("duration", summary.Duration).
		Msg("session ended")
}

// loadTemplateRegistry reads manifest.json under root if present,
// falling back to an empty registry (startup never aborts on a missing
// or malformed manifest, since a degraded Lite-flavor session without
// template matching is still a valid capability outcome).
func loadTemplateRegistry(root string) *template.Registry {
	manifestPath := filepath.Join(root, "manifest.json")
	data, err := os.ReadFile(manifestPath)
	if err != nil {
		log.Warn().Err(err).Str("path", manifestPath).Msg("no template manifest found, starting with an empty registry")
		return template.NewRegistry(root)
	}
	reg, err := template.LoadManifest(root, data)
	if err != nil {
		log.Warn().Err(err).Str("path", manifestPath).Msg("template manifest invalid, starting with an empty registry")
		return template.NewRegistry(root)
	}
	for _, w := range reg.Warnings() {
		log.Warn().Str("warning", w).Msg("template registry alias collision")
	}
	return reg
}

// templateLoaderFor adapts a Registry into the loader vision.Matcher
// needs: it resolves a bare key to a registered template path by
// scanning every entity kind (Matcher only ever sees the id, not the
// kind it was recognized against), then decodes the PNG at that path.
func templateLoaderFor(reg *template.Registry, root string) func(key string) (image.Image, error) {
	return func(key string) (image.Image, error) {
		for _, kind := range []domain.EntityKind{domain.EntityHero, domain.EntityItem, domain.EntitySynergy} {
			if path, ok := reg.GetTemplatePath(kind, key); ok {
				return loadPNG(filepath.Join(root, path))
			}
		}
		return nil, fmt.Errorf("no template registered for key %q", key)
	}
}

func loadPNG(path string) (image.Image, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	defer f.Close()
	return png.Decode(f)
}

// resolveAdapter looks up a registered platform.Adapter by name.
// boardpilot ships no concrete adapter; "null" selects a no-op adapter
// suitable for a dry-run smoke test of the pipeline wiring, and an
// empty name defaults to it.
func resolveAdapter(name string) (platform.Adapter, error) {
	if name == "" || name == "null" {
		return newNullAdapter(), nil
	}
	return nil, bperr.NewFatalError("no platform adapter registered under name \""+name+"\"", nil)
}

func serveTelemetry(addr string, hub *telemetry.Hub) {
	upgrader := websocket.Upgrader{
		ReadBufferSize:  1024,
		WriteBufferSize: 1024,
		CheckOrigin:     func(r *http.Request) bool { return true },
	}
	mux := http.NewServeMux()
	mux.HandleFunc("/ws", func(w http.ResponseWriter, r *http.Request) {
		conn, err := upgrader.Upgrade(w, r, nil)
		if err != nil {
			log.Warn().Err(err).Msg("telemetry websocket upgrade failed")
			return
		}
		client := telemetry.NewClient(uuid.New().String(), hub, conn)
		hub.Register(client)
	})
	log.Info().Str("addr", addr).Msg("telemetry hub listening")
	if err := http.ListenAndServe(addr, mux); err != nil {
		log.Error().Err(err).Msg("telemetry http server stopped")
	}
}
