package referral

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/render"

	"refhub/entity"
	refsvc "refhub/impl/referral"
	"refhub/lib/api/response"
	"refhub/lib/sl"
)

// Core is the part of the referral service these handlers consume.
type Core interface {
	RegisterReferrer(ctx context.Context, params *entity.RegisterParams) refsvc.RegisterResult
	ValidateCode(ctx context.Context, code string) refsvc.Validation
	RedeemCode(ctx context.Context, params *entity.RedeemParams) refsvc.RedeemResult
	ReferrerStats(ctx context.Context, email string) refsvc.StatsResult
}

func Register(log *slog.Logger, handler Core) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		mod := sl.Module("http.handlers.referral")

		logger := log.With(
			mod,
			slog.String("request_id", middleware.GetReqID(r.Context())),
		)

		var params entity.RegisterParams
		if err := render.Bind(r, &params); err != nil {
			logger.Error("bind request", sl.Err(err))
			render.Status(r, 400)
			render.JSON(w, r, response.Error(fmt.Sprintf("Invalid request: %v", err)))
			return
		}
		logger = logger.With(sl.Email("email", params.Email))

		result := handler.RegisterReferrer(r.Context(), &params)
		if !result.Success {
			logger.Error("register referrer", slog.String("reason", result.Error))
			render.Status(r, 400)
			render.JSON(w, r, response.Error(result.Error))
			return
		}
		logger.Debug("referrer registered", slog.Bool("is_existing", result.IsExisting))

		render.JSON(w, r, response.Ok(result))
	}
}

func Validate(log *slog.Logger, handler Core) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		mod := sl.Module("http.handlers.referral")
		code := chi.URLParam(r, "code")

		logger := log.With(
			mod,
			slog.String("request_id", middleware.GetReqID(r.Context())),
			slog.String("code", code),
		)

		validation := handler.ValidateCode(r.Context(), code)
		if !validation.Valid {
			logger.Debug("code rejected", slog.String("reason", validation.Error))
			render.Status(r, 404)
			render.JSON(w, r, response.Error(validation.Error))
			return
		}
		logger.Debug("code validated")

		render.JSON(w, r, response.Ok(validation))
	}
}

func Redeem(log *slog.Logger, handler Core) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		mod := sl.Module("http.handlers.referral")

		logger := log.With(
			mod,
			slog.String("request_id", middleware.GetReqID(r.Context())),
		)

		var params entity.RedeemParams
		if err := render.Bind(r, &params); err != nil {
			logger.Error("bind request", sl.Err(err))
			render.Status(r, 400)
			render.JSON(w, r, response.Error(fmt.Sprintf("Invalid request: %v", err)))
			return
		}
		logger = logger.With(
			slog.String("code", params.Code),
			sl.Email("friend_email", params.FriendEmail),
		)

		result := handler.RedeemCode(r.Context(), &params)
		if !result.Success {
			logger.Warn("redeem rejected", slog.String("reason", result.Error))
			render.Status(r, 400)
			render.JSON(w, r, response.Error(result.Error))
			return
		}
		logger.Debug("code redeemed", slog.String("redemption_id", result.RedemptionId))

		render.JSON(w, r, response.Ok(result))
	}
}

func Stats(log *slog.Logger, handler Core) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		mod := sl.Module("http.handlers.referral")
		email := r.URL.Query().Get("email")

		logger := log.With(
			mod,
			slog.String("request_id", middleware.GetReqID(r.Context())),
			sl.Email("email", email),
		)

		if email == "" {
			render.Status(r, 400)
			render.JSON(w, r, response.Error("Email is required"))
			return
		}

		result := handler.ReferrerStats(r.Context(), email)
		if result.Error != "" {
			logger.Error("referrer stats", slog.String("reason", result.Error))
			render.Status(r, 400)
			render.JSON(w, r, response.Error(result.Error))
			return
		}
		// found=false is an expected outcome, not an error
		logger.Debug("stats served", slog.Bool("found", result.Found))

		render.JSON(w, r, response.Ok(result))
	}
}
