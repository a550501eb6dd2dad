// Package referral implements the referral program core: registration,
// code validation, redemption and stats.
package referral

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"refhub/entity"
	"refhub/lib/refcode"
	"refhub/lib/sl"

	"github.com/google/uuid"
)

const (
	// maxCodeAttempts bounds random code generation before falling back
	// to a time-derived code.
	maxCodeAttempts = 10

	msgInvalidCode = "Invalid referral code"
	msgEmailUsed   = "This email has already used a referral code"
)

// Database defines the storage operations the referral core depends on.
// Implemented by internal/database adapters. Lookups return nil without an
// error when no record matches; creates return entity.ErrDuplicate when a
// unique index rejects the write.
type Database interface {
	ReferrerByEmail(ctx context.Context, email string) (*entity.Referrer, error)
	ReferrerByCode(ctx context.Context, code string) (*entity.Referrer, error)
	CodeExists(ctx context.Context, code string) (bool, error)
	CreateReferrer(ctx context.Context, referrer *entity.Referrer) error
	RedemptionByFriendEmail(ctx context.Context, email string) (*entity.Redemption, error)
	RedemptionById(ctx context.Context, id string) (*entity.Redemption, error)
	CreateRedemption(ctx context.Context, redemption *entity.Redemption) error
	IncrementReferralCount(ctx context.Context, referrerId string) error
	RedemptionsByReferrer(ctx context.Context, referrerId string) ([]*entity.Redemption, error)
	Redemptions(ctx context.Context) ([]*entity.Redemption, error)
	SetRedemptionStatus(ctx context.Context, id string, status entity.RedemptionStatus) error
}

// Config carries the reward amounts applied on each redemption.
type Config struct {
	ReferrerReward int64
	FriendReward   int64
}

type RegisterResult struct {
	Success    bool             `json:"success"`
	IsExisting bool             `json:"is_existing"`
	Referrer   *entity.Referrer `json:"referrer,omitempty"`
	Error      string           `json:"error,omitempty"`
}

type Validation struct {
	Valid    bool                 `json:"valid"`
	Referrer *entity.ReferrerInfo `json:"referrer,omitempty"`
	Error    string               `json:"error,omitempty"`
}

type RedeemResult struct {
	Success        bool   `json:"success"`
	RedemptionId   string `json:"redemption_id,omitempty"`
	ReferrerName   string `json:"referrer_name,omitempty"`
	ReferrerReward int64  `json:"referrer_reward,omitempty"`
	FriendReward   int64  `json:"friend_reward,omitempty"`
	Error          string `json:"error,omitempty"`
}

type StatsResult struct {
	Found     bool                 `json:"found"`
	Referrer  *entity.Referrer     `json:"referrer,omitempty"`
	Referrals []*entity.Redemption `json:"referrals,omitempty"`
	Error     string               `json:"error,omitempty"`
}

// Service holds no state between calls; every operation reads from the
// store. Public operations return structured results and never propagate
// errors: they are called straight from request handlers.
type Service struct {
	db   Database
	conf Config
	log  *slog.Logger
}

func New(db Database, conf Config, log *slog.Logger) *Service {
	if db == nil {
		panic("referral database is nil")
	}
	return &Service{
		db:   db,
		conf: conf,
		log:  log.With(sl.Module("referral")),
	}
}

// Register creates a referrer record for the email or returns the existing
// one. Repeat registration is idempotent and does not refresh name or
// phone: first write wins.
func (s *Service) Register(ctx context.Context, name, email, phone string) RegisterResult {
	name = strings.TrimSpace(name)
	email = normalizeEmail(email)
	phone = strings.TrimSpace(phone)

	existing, err := s.db.ReferrerByEmail(ctx, email)
	if err != nil {
		s.log.Error("referrer lookup", sl.Email("email", email), sl.Err(err))
		return RegisterResult{Error: err.Error()}
	}
	if existing != nil {
		return RegisterResult{Success: true, IsExisting: true, Referrer: existing}
	}

	code, err := s.uniqueCode(ctx)
	if err != nil {
		s.log.Error("resolve unique code", sl.Err(err))
		return RegisterResult{Error: err.Error()}
	}

	referrer := &entity.Referrer{
		Id:            uuid.NewString(),
		Name:          name,
		Email:         email,
		Phone:         phone,
		Code:          code,
		ReferralCount: 0,
		Earnings:      0,
		Status:        entity.StatusActive,
		CreatedAt:     time.Now().UTC(),
	}

	err = s.db.CreateReferrer(ctx, referrer)
	if errors.Is(err, entity.ErrDuplicate) {
		// lost a registration race; the store's unique index on email
		// rejected the write, so the record we need already exists
		existing, err = s.db.ReferrerByEmail(ctx, email)
		if err != nil {
			return RegisterResult{Error: err.Error()}
		}
		if existing != nil {
			return RegisterResult{Success: true, IsExisting: true, Referrer: existing}
		}
		// the duplicate was the code, not the email
		return RegisterResult{Error: "Registration failed, please retry"}
	}
	if err != nil {
		s.log.Error("create referrer", sl.Email("email", email), sl.Err(err))
		return RegisterResult{Error: err.Error()}
	}

	s.log.Info("referrer registered", slog.String("code", code))
	return RegisterResult{Success: true, Referrer: referrer}
}

// uniqueCode resolves a code not yet present among referrers. Only logical
// collisions are retried; store errors propagate to the caller.
func (s *Service) uniqueCode(ctx context.Context) (string, error) {
	for i := 0; i < maxCodeAttempts; i++ {
		code := refcode.Generate()
		exists, err := s.db.CodeExists(ctx, code)
		if err != nil {
			return "", err
		}
		if !exists {
			return code, nil
		}
	}
	// every random attempt collided; a time-derived code is near-unique
	// under any realistic contention
	return refcode.FromTimestamp(time.Now()), nil
}

// Validate checks a code and returns the minimal referrer projection for
// the friend-facing flow. Malformed and unknown codes get the same answer.
func (s *Service) Validate(ctx context.Context, code string) Validation {
	normalized := refcode.Normalize(code)

	referrer, err := s.db.ReferrerByCode(ctx, normalized)
	if err != nil {
		s.log.Error("code lookup", slog.String("code", normalized), sl.Err(err))
		return Validation{Error: err.Error()}
	}
	if referrer == nil {
		return Validation{Error: msgInvalidCode}
	}

	return Validation{Valid: true, Referrer: referrer.Info()}
}

// Redeem records a friend using a referral code. One redemption per friend
// email, across all referrers.
func (s *Service) Redeem(ctx context.Context, code, friendName, friendEmail, friendPhone string) RedeemResult {
	validation := s.Validate(ctx, code)
	if !validation.Valid {
		return RedeemResult{Error: validation.Error}
	}

	email := normalizeEmail(friendEmail)
	existing, err := s.db.RedemptionByFriendEmail(ctx, email)
	if err != nil {
		s.log.Error("redemption lookup", sl.Email("friend_email", email), sl.Err(err))
		return RedeemResult{Error: err.Error()}
	}
	if existing != nil {
		return RedeemResult{Error: msgEmailUsed}
	}

	redemption := &entity.Redemption{
		Id:             uuid.NewString(),
		ReferrerCode:   refcode.Normalize(code),
		ReferrerId:     validation.Referrer.Id,
		ReferrerName:   validation.Referrer.Name,
		FriendName:     strings.TrimSpace(friendName),
		FriendEmail:    email,
		FriendPhone:    strings.TrimSpace(friendPhone),
		UsedAt:         time.Now().UTC(),
		Status:         entity.RedemptionPending,
		ReferrerReward: s.conf.ReferrerReward,
		FriendReward:   s.conf.FriendReward,
	}

	err = s.db.CreateRedemption(ctx, redemption)
	if errors.Is(err, entity.ErrDuplicate) {
		// two redemptions raced on the same friend email; the unique
		// index let exactly one through
		return RedeemResult{Error: msgEmailUsed}
	}
	if err != nil {
		s.log.Error("create redemption", sl.Err(err))
		return RedeemResult{Error: err.Error()}
	}

	// The redemption is already recorded at this point. A failure on the
	// increment leaves the counter behind by one; there is no compensating
	// write and no reconciliation job.
	err = s.db.IncrementReferralCount(ctx, validation.Referrer.Id)
	if err != nil {
		s.log.Error("increment referral count",
			slog.String("referrer_id", validation.Referrer.Id), sl.Err(err))
		return RedeemResult{Error: err.Error()}
	}

	s.log.Info("referral code redeemed",
		slog.String("code", redemption.ReferrerCode),
		slog.String("referrer", redemption.ReferrerName),
	)
	return RedeemResult{
		Success:        true,
		RedemptionId:   redemption.Id,
		ReferrerName:   redemption.ReferrerName,
		ReferrerReward: redemption.ReferrerReward,
		FriendReward:   redemption.FriendReward,
	}
}

// Stats returns a referrer's profile with all their redemptions. A missing
// referrer is an expected outcome, not an error.
func (s *Service) Stats(ctx context.Context, email string) StatsResult {
	normalized := normalizeEmail(email)

	referrer, err := s.db.ReferrerByEmail(ctx, normalized)
	if err != nil {
		s.log.Error("referrer lookup", sl.Email("email", normalized), sl.Err(err))
		return StatsResult{Error: err.Error()}
	}
	if referrer == nil {
		return StatsResult{}
	}

	redemptions, err := s.db.RedemptionsByReferrer(ctx, referrer.Id)
	if err != nil {
		s.log.Error("redemptions lookup",
			slog.String("referrer_id", referrer.Id), sl.Err(err))
		return StatsResult{Error: err.Error()}
	}

	return StatsResult{Found: true, Referrer: referrer, Referrals: redemptions}
}

// Redemptions lists every redemption for the admin surface.
func (s *Service) Redemptions(ctx context.Context) ([]*entity.Redemption, error) {
	return s.db.Redemptions(ctx)
}

// SetRedemptionStatus advances a redemption along pending -> verified ->
// paid. This service never performs the transitions itself; they come from
// the admin API after manual review.
func (s *Service) SetRedemptionStatus(ctx context.Context, id string, status entity.RedemptionStatus) (*entity.Redemption, error) {
	redemption, err := s.db.RedemptionById(ctx, id)
	if err != nil {
		return nil, err
	}
	if redemption == nil {
		return nil, fmt.Errorf("redemption not found: %s", id)
	}
	if !redemption.Status.ValidTransition(status) {
		return nil, fmt.Errorf("invalid status transition: %s -> %s", redemption.Status, status)
	}

	if err = s.db.SetRedemptionStatus(ctx, id, status); err != nil {
		return nil, err
	}

	redemption.Status = status
	s.log.Info("redemption status changed",
		slog.String("id", id),
		slog.String("status", string(status)),
	)
	return redemption, nil
}

func normalizeEmail(email string) string {
	return strings.ToLower(strings.TrimSpace(email))
}
