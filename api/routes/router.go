package routes

import (
	"context"
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/angelmondragon/maiyom-backend/api/controllers"
	"github.com/angelmondragon/maiyom-backend/api/middleware"
	"github.com/angelmondragon/maiyom-backend/internal/conversations"
	"github.com/angelmondragon/maiyom-backend/internal/geocode"
	"github.com/angelmondragon/maiyom-backend/internal/ledger"
	"github.com/angelmondragon/maiyom-backend/internal/media"
	"github.com/angelmondragon/maiyom-backend/internal/missions"
	"github.com/angelmondragon/maiyom-backend/internal/notifications"
	"github.com/angelmondragon/maiyom-backend/internal/offers"
	"github.com/angelmondragon/maiyom-backend/internal/profiles"
	"github.com/angelmondragon/maiyom-backend/pkg/auth/session"
	"github.com/angelmondragon/maiyom-backend/pkg/config"
	"github.com/angelmondragon/maiyom-backend/pkg/enums"
	"github.com/angelmondragon/maiyom-backend/pkg/logger"
)

// RedisStore is the slice of the redis client the HTTP layer relies on.
type RedisStore interface {
	middleware.ResponseStore
	middleware.RateLimitStore
	Ping(ctx context.Context) error
}

// Dependencies carries everything the router hands to middleware and
// controllers. Nil services answer 503 on their routes.
type Dependencies struct {
	DB       controllers.Pinger
	Redis    RedisStore
	Storage  controllers.Pinger
	Sessions session.AccessSessionChecker
	Metrics  http.Handler

	Missions      missions.Service
	Offers        offers.Service
	Profiles      profiles.Service
	Conversations conversations.Service
	Notifications notifications.Service
	Media         media.Service
	Ledger        ledger.Service
	Geocode       geocode.Service
}

func NewRouter(cfg *config.Config, logg *logger.Logger, deps Dependencies) http.Handler {
	r := chi.NewRouter()

	r.Use(
		middleware.Recoverer(logg),
		middleware.RequestID(logg),
		middleware.Logging(logg),
		middleware.CORS(),
	)

	r.Route("/health", func(r chi.Router) {
		r.Get("/live", controllers.HealthLive(cfg))
		r.Get("/ready", controllers.HealthReady(cfg, logg, readinessChecks(deps)))
	})
	if deps.Metrics != nil {
		r.Method(http.MethodGet, "/metrics", deps.Metrics)
	}

	var rateStore middleware.RateLimitStore
	var idemStore middleware.ResponseStore
	if deps.Redis != nil {
		rateStore = deps.Redis
		idemStore = deps.Redis
	}
	offerLimit := middleware.RateLimit(middleware.OfferRateLimitPolicy(cfg.RateLimit), rateStore, logg)
	otpLimit := middleware.RateLimit(middleware.OTPRateLimitPolicy(cfg.RateLimit), rateStore, logg)
	requester := middleware.RequireRole(enums.RoleRequester, logg)
	runner := middleware.RequireRole(enums.RoleRunner, logg)

	r.Route("/api/v1", func(r chi.Router) {
		r.Use(middleware.Auth(cfg.JWT, deps.Sessions, logg))
		r.Use(middleware.ActiveRole(logg))
		r.Use(middleware.Idempotency(idemStore, logg))

		r.Route("/missions", func(r chi.Router) {
			r.With(requester).Post("/", controllers.CreateMission(deps.Missions, logg))
			r.With(requester).Post("/from-template", controllers.CreateMissionFromTemplate(deps.Missions, logg))
			r.With(runner).Get("/open", controllers.ListOpenMissions(deps.Missions, logg))
			r.With(requester).Get("/mine", controllers.ListMyMissions(deps.Missions, logg))
			r.With(requester).Get("/templates", controllers.ListMissionTemplates(deps.Missions, logg))
			r.With(runner).Get("/runner", controllers.ListRunnerMissions(deps.Missions, logg))

			r.Route("/{missionId}", func(r chi.Router) {
				r.Get("/", controllers.GetMission(deps.Missions, logg))
				r.With(requester).Post("/boost", controllers.BoostMission(deps.Missions, logg))
				r.With(requester).Post("/confirm-receipt", controllers.ConfirmReceipt(deps.Missions, logg))
				r.With(runner).Post("/costs", controllers.AddAdditionalCost(deps.Missions, logg))
				r.With(runner, otpLimit).Post("/pickup", controllers.ConfirmPickup(deps.Missions, logg))
				r.With(runner, otpLimit).Post("/delivery", controllers.ConfirmDelivery(deps.Missions, logg))
				r.Post("/dispute", controllers.RaiseDispute(deps.Missions, logg))
				r.With(runner, offerLimit).Post("/offers", controllers.SubmitOffer(deps.Offers, logg))
				r.With(requester).Get("/offers", controllers.ListMissionOffers(deps.Offers, logg))
				r.Get("/ledger", controllers.GetMissionLedger(deps.Missions, deps.Ledger, logg))
			})
		})

		r.Route("/offers", func(r chi.Router) {
			r.With(runner).Get("/mine", controllers.ListMyOffers(deps.Offers, logg))
			r.Route("/{offerId}", func(r chi.Router) {
				r.With(requester, offerLimit).Post("/counter", controllers.CounterOffer(deps.Offers, logg))
				r.Post("/reject", controllers.RejectOffer(deps.Offers, logg))
				r.With(requester).Post("/accept", controllers.AcceptOffer(deps.Offers, logg))
				r.With(runner).Post("/accept-counter", controllers.AcceptCounter(deps.Offers, logg))
			})
		})

		r.Route("/profile", func(r chi.Router) {
			r.Get("/", controllers.GetProfile(deps.Profiles, logg))
			r.Put("/", controllers.UpsertProfile(deps.Profiles, logg))
			r.Post("/kyc", controllers.SubmitKYC(deps.Profiles, logg))
		})

		r.Route("/conversations", func(r chi.Router) {
			r.Get("/", controllers.ListConversations(deps.Conversations, logg))
			r.Get("/messages", controllers.ListMessages(deps.Conversations, logg))
			r.Post("/messages", controllers.SendMessage(deps.Conversations, logg))
			r.Get("/messages/stream", controllers.StreamMessages(deps.Conversations, logg))
		})

		r.Route("/notifications", func(r chi.Router) {
			r.Get("/", controllers.ListNotifications(deps.Notifications, logg))
			r.Get("/unread-count", controllers.UnreadNotificationCount(deps.Notifications, logg))
			r.Get("/stream", controllers.StreamNotifications(deps.Notifications, logg))
			r.Post("/read-all", controllers.MarkAllNotificationsRead(deps.Notifications, logg))
			r.Post("/{notificationId}/read", controllers.MarkNotificationRead(deps.Notifications, logg))
		})

		r.Post("/media/photos", controllers.UploadPhoto(deps.Media, cfg.Media.MaxUploadBytes(), logg))
		r.Get("/ledger/transactions", controllers.ListMyTransactions(deps.Ledger, logg))

		r.Route("/geocode", func(r chi.Router) {
			r.Get("/", controllers.GeocodeAddress(deps.Geocode, logg))
			r.Get("/suggest", controllers.SuggestAddresses(deps.Geocode, logg))
		})
	})

	return r
}

func readinessChecks(deps Dependencies) map[string]controllers.Pinger {
	checks := map[string]controllers.Pinger{}
	if deps.DB != nil {
		checks["database"] = deps.DB
	}
	if deps.Redis != nil {
		checks["redis"] = deps.Redis
	}
	if deps.Storage != nil {
		checks["storage"] = deps.Storage
	}
	return checks
}
