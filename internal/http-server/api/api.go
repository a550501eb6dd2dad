package api

import (
	"fmt"
	"log/slog"
	"net"
	"net/http"
	"time"

	"refhub/internal/config"
	"refhub/internal/http-server/handlers/admin"
	"refhub/internal/http-server/handlers/errors"
	"refhub/internal/http-server/handlers/referral"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/render"

	"refhub/internal/http-server/middleware/authenticate"
	"refhub/internal/http-server/middleware/ratelimit"
	"refhub/internal/http-server/middleware/timeout"
	"refhub/lib/sl"
)

type Server struct {
	conf       *config.Config
	httpServer *http.Server
	log        *slog.Logger
}

type Handler interface {
	authenticate.Authenticate
	referral.Core
	admin.Core
}

func New(conf *config.Config, log *slog.Logger, handler Handler, limitStore ratelimit.Store) error {

	server := Server{
		conf: conf,
		log:  log.With(sl.Module("api.server")),
	}

	router := chi.NewRouter()
	router.Use(timeout.Timeout(5))
	router.Use(middleware.RequestID)
	router.Use(middleware.Recoverer)
	router.Use(render.SetContentType(render.ContentTypeJSON))

	router.NotFound(errors.NotFound(log))
	router.MethodNotAllowed(errors.NotAllowed(log))

	router.Route("/v1", func(rootApi chi.Router) {
		rootApi.Route("/referral", func(ref chi.Router) {
			if conf.RateLimit.Enabled && limitStore != nil {
				window := time.Duration(conf.RateLimit.WindowSeconds) * time.Second
				ref.Use(ratelimit.New(log, limitStore, conf.RateLimit.Limit, window))
			}
			ref.Post("/register", referral.Register(log, handler))
			ref.Get("/code/{code}", referral.Validate(log, handler))
			ref.Post("/redeem", referral.Redeem(log, handler))
			ref.Get("/stats", referral.Stats(log, handler))
		})
		rootApi.Route("/admin", func(adm chi.Router) {
			adm.Use(authenticate.New(log, handler))
			adm.Get("/redemptions", admin.Redemptions(log, handler))
			adm.Put("/redemptions/{id}/status", admin.SetStatus(log, handler))
		})
	})

	httpLog := slog.NewLogLogger(log.Handler(), slog.LevelError)
	server.httpServer = &http.Server{
		Handler:      router,
		ErrorLog:     httpLog,
		ReadTimeout:  5 * time.Second,
		WriteTimeout: 10 * time.Second,
		IdleTimeout:  60 * time.Second,
	}

	serverAddress := fmt.Sprintf("%s:%s", conf.Listen.BindIp, conf.Listen.Port)
	listener, err := net.Listen("tcp", serverAddress)
	if err != nil {
		return err
	}

	server.log.Info("starting api server", slog.String("address", serverAddress))

	return server.httpServer.Serve(listener)
}
