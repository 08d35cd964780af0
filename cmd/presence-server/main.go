package main

import (
	"context"
	"log"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/ecstasyos/presence/server/internal/config"
	"github.com/ecstasyos/presence/server/internal/db"
	"github.com/ecstasyos/presence/server/internal/httpapi"
	"github.com/ecstasyos/presence/server/internal/presence/camera"
	"github.com/ecstasyos/presence/server/internal/presence/capture"
	"github.com/ecstasyos/presence/server/internal/presence/detect"
	"github.com/ecstasyos/presence/server/internal/presence/emitter"
	"github.com/ecstasyos/presence/server/internal/presence/geofence"
	"github.com/ecstasyos/presence/server/internal/presence/location"
	"github.com/ecstasyos/presence/server/internal/presence/model"
	"github.com/ecstasyos/presence/server/internal/presence/service"
	"github.com/ecstasyos/presence/server/internal/presence/store"
	"github.com/ecstasyos/presence/server/internal/presence/store/memory"
	sqlitestore "github.com/ecstasyos/presence/server/internal/presence/store/sqlite"
)

func main() {
	cfg := config.FromEnv()
	logger := log.New(os.Stdout, "presence-server ", log.LstdFlags|log.LUTC)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	// Reference points
	sites, err := geofence.LoadFile(cfg.SitesFile)
	if err != nil {
		logger.Fatalf("sites: %v", err)
	}

	// Event store (sqlite when a path is configured, memory otherwise)
	var (
		events    store.EventStore
		siteStore store.SiteStore
	)
	if cfg.DBPath != "" {
		conn, err := db.Open(ctx, db.Config{Path: cfg.DBPath, Env: cfg.Env})
		if err != nil {
			logger.Fatalf("db: %v", err)
		}
		defer conn.Close()

		if err := db.SeedSites(ctx, conn, sites.Points()); err != nil {
			logger.Fatalf("seed sites: %v", err)
		}

		writer := db.NewWorker(conn)
		defer writer.Close()
		events = sqlitestore.NewEventStore(conn, writer)
		siteStore = sqlitestore.NewSiteStore(conn, writer)
	} else {
		events = memory.NewEventStore()
		siteStore = memory.NewSiteStore(sites.Points()...)
		logger.Printf("no db path configured; events are kept in memory")
	}

	// Detector + model provider
	var (
		detector detect.Detector
		provider *model.Provider
	)
	if cfg.DetectorAddr != "" {
		remote, err := detect.DialRemote(cfg.DetectorAddr, 5*time.Second)
		if err != nil {
			logger.Fatalf("detector: %v", err)
		}
		defer remote.Close()
		detector = remote
		provider = model.NewProvider(nil, nil, remote, logger)
	} else {
		pigo := detect.NewPigoDetector(detect.CascadeConfig{
			MinSize:      cfg.MinFaceSize,
			MaxSize:      cfg.MaxFaceSize,
			ShiftFactor:  0.1,
			ScaleFactor:  1.1,
			IoUThreshold: 0.2,
			QualityFloor: cfg.FaceQualityFloor,
		})
		detector = pigo
		provider = model.NewProvider(assetFetcher(cfg), cfg.ModelAssets, pigo, logger)
	}
	// Load once per process; sessions only observe it.
	provider.Load(ctx)

	// Camera
	var src camera.Source = camera.Unavailable{}
	switch {
	case cfg.CameraSnapshotURL != "":
		src = camera.NewSnapshotSource(cfg.CameraSnapshotURL, cfg.CameraMaxEdge)
	case cfg.CameraImagePath != "":
		src = &camera.FileSource{Path: cfg.CameraImagePath, MaxEdge: cfg.CameraMaxEdge}
	default:
		logger.Printf("no camera configured; camera grants will be refused")
	}
	interval := time.Duration(cfg.CameraIntervalMS) * time.Millisecond

	// Location
	var probe location.Probe = location.Reported{}
	if cfg.LocationMode == "static" {
		var pos *location.Position
		if cfg.HasKioskPosition() {
			pos = &location.Position{Lat: cfg.KioskLat, Lng: cfg.KioskLng}
		}
		probe = location.NewStatic(pos)
	}

	// Listeners
	recorder := service.NewEventRecorder(events, logger)
	listeners := []capture.Listener{recorder.Record}

	if cfg.MQTTBroker != "" {
		em, err := emitter.Dial(emitter.Config{
			Broker:      cfg.MQTTBroker,
			ClientID:    cfg.MQTTClientID,
			TopicPrefix: cfg.MQTTTopicPrefix,
			QoS:         1,
		}, logger)
		if err != nil {
			// Attendance still works without fan-out.
			logger.Printf("mqtt disabled: %v", err)
		} else {
			defer em.Close()
			listeners = append(listeners, em.Listen)
		}
	}

	// Services
	attendance := service.NewAttendanceService(service.SessionDeps{
		NewCamera: func() capture.Camera {
			return camera.NewController(src, interval, logger)
		},
		Models:   provider,
		Probe:    probe,
		Detector: detector,
		Sites:    siteStore,
	}, sites, logger, listeners...)
	defer attendance.Close()

	pruner := service.NewEventPruner(events, service.PrunerConfig{
		RetentionDays: cfg.EventRetentionDays,
		IntervalHours: cfg.PruneIntervalHours,
	}, logger)
	pruner.Start(ctx)
	defer pruner.Stop()

	// HTTP
	if cfg.AuthSecret == "" && cfg.Env == "prod" {
		logger.Printf("warning: no auth secret in prod; every request will be refused")
	}
	srv := httpapi.NewServer(httpapi.Dependencies{
		Logger:          logger,
		Addr:            cfg.HTTPAddr,
		Attendance:      attendance,
		Auth:            httpapi.NewAuthenticator(cfg.AuthSecret, cfg.Env == "dev"),
		Models:          provider,
		AutoStartCamera: cfg.AutoStartCamera,
	})

	go func() {
		logger.Printf("listening on %s", cfg.HTTPAddr)
		if err := srv.Start(); err != nil {
			logger.Printf("server error: %v", err)
			stop()
		}
	}()

	<-ctx.Done()

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	_ = srv.Shutdown(shutdownCtx)
}

func assetFetcher(cfg config.Config) model.Fetcher {
	if cfg.ModelBaseURL != "" {
		return model.NewHTTPFetcher(cfg.ModelBaseURL)
	}
	return model.DirFetcher{Dir: cfg.ModelDir}
}

