package admin

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/render"

	"refhub/entity"
	"refhub/lib/api/cont"
	"refhub/lib/api/response"
	"refhub/lib/sl"
)

// Core is the admin slice of the service: redemption review and the
// out-of-band status transitions (pending -> verified -> paid).
type Core interface {
	Redemptions(ctx context.Context) ([]*entity.Redemption, error)
	SetRedemptionStatus(ctx context.Context, id string, status entity.RedemptionStatus) (*entity.Redemption, error)
}

func Redemptions(log *slog.Logger, handler Core) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		mod := sl.Module("http.handlers.admin")
		user := cont.GetUser(r.Context())

		logger := log.With(
			mod,
			slog.String("request_id", middleware.GetReqID(r.Context())),
			slog.String("user", user.Username),
		)

		redemptions, err := handler.Redemptions(r.Context())
		if err != nil {
			logger.Error("list redemptions", sl.Err(err))
			render.Status(r, 500)
			render.JSON(w, r, response.Error(fmt.Sprintf("Request failed: %v", err)))
			return
		}
		logger.Debug("redemptions listed", slog.Int("count", len(redemptions)))

		render.JSON(w, r, response.Ok(redemptions))
	}
}

func SetStatus(log *slog.Logger, handler Core) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		mod := sl.Module("http.handlers.admin")
		id := chi.URLParam(r, "id")
		user := cont.GetUser(r.Context())

		logger := log.With(
			mod,
			slog.String("request_id", middleware.GetReqID(r.Context())),
			slog.String("user", user.Username),
			slog.String("id", id),
		)

		var params entity.StatusParams
		if err := render.Bind(r, &params); err != nil {
			logger.Error("bind request", sl.Err(err))
			render.Status(r, 400)
			render.JSON(w, r, response.Error(fmt.Sprintf("Invalid request: %v", err)))
			return
		}

		redemption, err := handler.SetRedemptionStatus(r.Context(), id, params.Status)
		if err != nil {
			logger.Error("set redemption status", sl.Err(err))
			render.Status(r, 400)
			render.JSON(w, r, response.Error(fmt.Sprintf("Status change failed: %v", err)))
			return
		}
		logger.Info("redemption status set", slog.String("status", string(params.Status)))

		render.JSON(w, r, response.Ok(redemption))
	}
}
