package main

import (
	"context"
	"errors"
	"net/http"
	"os"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/angelmondragon/maiyom-backend/api/routes"
	"github.com/angelmondragon/maiyom-backend/internal/conversations"
	"github.com/angelmondragon/maiyom-backend/internal/geocode"
	"github.com/angelmondragon/maiyom-backend/internal/ledger"
	"github.com/angelmondragon/maiyom-backend/internal/media"
	"github.com/angelmondragon/maiyom-backend/internal/missions"
	"github.com/angelmondragon/maiyom-backend/internal/notifications"
	"github.com/angelmondragon/maiyom-backend/internal/offers"
	"github.com/angelmondragon/maiyom-backend/internal/profiles"
	"github.com/angelmondragon/maiyom-backend/pkg/auth/session"
	"github.com/angelmondragon/maiyom-backend/pkg/bootstrap"
	"github.com/angelmondragon/maiyom-backend/pkg/config"
	"github.com/angelmondragon/maiyom-backend/pkg/db"
	"github.com/angelmondragon/maiyom-backend/pkg/logger"
	"github.com/angelmondragon/maiyom-backend/pkg/maps"
	"github.com/angelmondragon/maiyom-backend/pkg/metrics"
	"github.com/angelmondragon/maiyom-backend/pkg/outbox"
	"github.com/angelmondragon/maiyom-backend/pkg/realtime"
	"github.com/angelmondragon/maiyom-backend/pkg/redis"
	"github.com/angelmondragon/maiyom-backend/pkg/security"
	"github.com/angelmondragon/maiyom-backend/pkg/storage/gcs"
)

const shutdownTimeout = 15 * time.Second

func main() {
	p := bootstrap.Start("api")
	cfg, logg := p.Config, p.Logger

	dbClient := p.Database()
	redisClient := p.Redis()

	sessionManager, err := session.NewManager(redisClient, cfg.JWT)
	p.Must("session manager", err)

	broker, err := newBroker(cfg, redisClient, logg)
	p.Must("realtime broker", err)
	p.OnClose("realtime broker", broker.Close)

	gcsClient, err := gcs.NewClient(context.Background(), cfg.GCS, cfg.GCP, logg)
	p.Must("gcs", err)
	p.OnClose("gcs", gcsClient.Close)

	deps, err := buildDependencies(cfg, logg, dbClient, redisClient, broker, gcsClient)
	p.Must("services", err)
	deps.Sessions = sessionManager

	port := os.Getenv("PORT")
	if port == "" {
		port = cfg.App.Port
	}
	server := &http.Server{
		Addr:              ":" + port,
		Handler:           routes.NewRouter(cfg, logg, deps),
		ReadHeaderTimeout: 10 * time.Second,
	}
	p.Run(func(ctx context.Context) error {
		return serve(logg.WithField(ctx, "addr", server.Addr), logg, server)
	})
}

// serve runs server until ctx ends, then drains it. Open SSE streams end
// once the broker closes their subscriptions.
func serve(ctx context.Context, logg *logger.Logger, server *http.Server) error {
	errCh := make(chan error, 1)
	go func() {
		logg.Info(ctx, "listening")
		errCh <- server.ListenAndServe()
	}()

	select {
	case err := <-errCh:
		if errors.Is(err, http.ErrServerClosed) {
			return nil
		}
		return err
	case <-ctx.Done():
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()
	if err := server.Shutdown(shutdownCtx); err != nil {
		logg.Error(ctx, "api server shutdown incomplete", err)
	}
	return ctx.Err()
}

func newBroker(cfg *config.Config, redisClient *redis.Client, logg *logger.Logger) (realtime.Broker, error) {
	if cfg.FeatureFlags.RealtimeDriver == "memory" {
		return realtime.NewMemoryBroker(), nil
	}
	return realtime.NewRedisBroker(redisClient, logg)
}

func buildDependencies(
	cfg *config.Config,
	logg *logger.Logger,
	dbClient *db.Client,
	redisClient *redis.Client,
	broker realtime.Broker,
	gcsClient *gcs.Client,
) (routes.Dependencies, error) {
	sealKey, err := cfg.OTP.SealKey()
	if err != nil {
		return routes.Dependencies{}, err
	}
	sealer, err := security.NewSealer(sealKey)
	if err != nil {
		return routes.Dependencies{}, err
	}
	missionMetrics := metrics.NewMissionMetrics(prometheus.DefaultRegisterer)
	outboxService := outbox.NewService(outbox.NewRepository(dbClient.DB()), logg)
	missionRepo := missions.NewRepository(dbClient.DB())

	ledgerService, err := ledger.NewService(ledger.NewRepository(dbClient.DB()))
	if err != nil {
		return routes.Dependencies{}, err
	}
	profileService, err := profiles.NewService(profiles.NewRepository(dbClient.DB()))
	if err != nil {
		return routes.Dependencies{}, err
	}
	conversationService, err := conversations.NewService(conversations.NewRepository(dbClient.DB()), missionRepo, profileService, broker, logg)
	if err != nil {
		return routes.Dependencies{}, err
	}
	notificationService, err := notifications.NewService(notifications.NewRepository(dbClient.DB()), broker)
	if err != nil {
		return routes.Dependencies{}, err
	}
	mediaService, err := media.NewService(gcsClient, cfg.GCS.BucketName, cfg.Media.MaxUploadBytes(), logg)
	if err != nil {
		return routes.Dependencies{}, err
	}

	var geocoder geocode.Service
	if cfg.FeatureFlags.Geocoding && cfg.GoogleMaps.APIKey != "" {
		mapsClient, err := maps.NewClient(cfg.GoogleMaps.APIKey)
		if err != nil {
			return routes.Dependencies{}, err
		}
		geocoder = geocode.NewService(mapsClient, redisClient, cfg.GoogleMaps, logg)
	} else {
		logg.Warn(context.Background(), "geocoding disabled")
	}

	attempts, err := missions.NewAttemptLimiter(redisClient, cfg.OTP)
	if err != nil {
		return routes.Dependencies{}, err
	}
	missionParams := missions.ServiceParams{
		Repo:     missionRepo,
		Tx:       dbClient,
		Outbox:   outboxService,
		Ledger:   ledgerService,
		Support:  conversationService,
		Attempts: attempts,
		Sealer:   sealer,
		Metrics:  missionMetrics,
		Logger:   logg,
	}
	if geocoder != nil {
		missionParams.Geocoder = geocoder
	}
	missionService, err := missions.NewService(missionParams)
	if err != nil {
		return routes.Dependencies{}, err
	}
	offerService, err := offers.NewService(offers.ServiceParams{
		Repo:     offers.NewRepository(dbClient.DB()),
		Missions: missionRepo,
		Tx:       dbClient,
		Outbox:   outboxService,
		Ledger:   ledgerService,
		Sealer:   sealer,
		Metrics:  missionMetrics,
		Logger:   logg,
	})
	if err != nil {
		return routes.Dependencies{}, err
	}

	return routes.Dependencies{
		DB:            dbClient,
		Redis:         redisClient,
		Storage:       gcsClient,
		Metrics:       promhttp.Handler(),
		Missions:      missionService,
		Offers:        offerService,
		Profiles:      profileService,
		Conversations: conversationService,
		Notifications: notificationService,
		Media:         mediaService,
		Ledger:        ledgerService,
		Geocode:       geocoder,
	}, nil
}
