// Package core aggregates the referral service and admin authentication
// behind the interface the API server consumes.
package core

import (
	"context"
	"fmt"
	"log/slog"

	"refhub/entity"
	"refhub/impl/referral"
	"refhub/lib/sl"
)

type AuthService interface {
	UserByToken(ctx context.Context, token string) (*entity.User, error)
}

type Core struct {
	ref  *referral.Service
	auth AuthService
	log  *slog.Logger
}

func New(ref *referral.Service, auth AuthService, log *slog.Logger) Core {
	if ref == nil {
		panic("referral service is nil")
	}
	return Core{
		ref:  ref,
		auth: auth,
		log:  log.With(sl.Module("core")),
	}
}

func (c Core) AuthenticateByToken(ctx context.Context, token string) (*entity.User, error) {
	if c.auth == nil {
		return nil, fmt.Errorf("auth service not connected")
	}
	return c.auth.UserByToken(ctx, token)
}

func (c Core) RegisterReferrer(ctx context.Context, params *entity.RegisterParams) referral.RegisterResult {
	return c.ref.Register(ctx, params.Name, params.Email, params.Phone)
}

func (c Core) ValidateCode(ctx context.Context, code string) referral.Validation {
	return c.ref.Validate(ctx, code)
}

func (c Core) RedeemCode(ctx context.Context, params *entity.RedeemParams) referral.RedeemResult {
	return c.ref.Redeem(ctx, params.Code, params.FriendName, params.FriendEmail, params.FriendPhone)
}

func (c Core) ReferrerStats(ctx context.Context, email string) referral.StatsResult {
	return c.ref.Stats(ctx, email)
}

func (c Core) Redemptions(ctx context.Context) ([]*entity.Redemption, error) {
	return c.ref.Redemptions(ctx)
}

func (c Core) SetRedemptionStatus(ctx context.Context, id string, status entity.RedemptionStatus) (*entity.Redemption, error) {
	return c.ref.SetRedemptionStatus(ctx, id, status)
}
