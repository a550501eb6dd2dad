package entity

import (
	"net/http"
	"strings"
	"time"
	"refhub/lib/validate"
)

// RedemptionStatus follows a redemption through its payout lifecycle.
// This service only ever writes "pending"; verified and paid are set through
// the admin API after manual review.
type RedemptionStatus string

const (
	RedemptionPending  RedemptionStatus = "pending"
	RedemptionVerified RedemptionStatus = "verified"
	RedemptionPaid     RedemptionStatus = "paid"
)

// ValidTransition reports whether a status change is allowed.
// The chain is pending -> verified -> paid, no skipping, no going back.
func (s RedemptionStatus) ValidTransition(to RedemptionStatus) bool {
	switch s {
	case RedemptionPending:
		return to == RedemptionVerified
	case RedemptionVerified:
		return to == RedemptionPaid
	default:
		return false
	}
}

// Redemption records a friend using a referrer's code. At most one per
// friend email, globally. ReferrerName is a snapshot taken at redemption
// time so later edits to the referrer do not rewrite history.
type Redemption struct {
	Id             string           `json:"id" bson:"_id"`
	ReferrerCode   string           `json:"referrer_code" bson:"referrer_code"`
	ReferrerId     string           `json:"referrer_id" bson:"referrer_id"`
	ReferrerName   string           `json:"referrer_name" bson:"referrer_name"`
	FriendName     string           `json:"friend_name" bson:"friend_name"`
	FriendEmail    string           `json:"friend_email" bson:"friend_email"`
	FriendPhone    string           `json:"friend_phone" bson:"friend_phone"`
	UsedAt         time.Time        `json:"used_at" bson:"used_at"`
	Status         RedemptionStatus `json:"status" bson:"status"`
	ReferrerReward int64            `json:"referrer_reward" bson:"referrer_reward"`
	FriendReward   int64            `json:"friend_reward" bson:"friend_reward"`
}

// RedeemParams is the redemption request body.
type RedeemParams struct {
	Code        string `json:"code" validate:"required"`
	FriendName  string `json:"friend_name" validate:"required"`
	FriendEmail string `json:"friend_email" validate:"required,email"`
	FriendPhone string `json:"friend_phone" validate:"omitempty"`
}

func (p *RedeemParams) Bind(_ *http.Request) error {
	p.Code = strings.TrimSpace(p.Code)
	p.FriendName = strings.TrimSpace(p.FriendName)
	p.FriendEmail = strings.TrimSpace(p.FriendEmail)
	return validate.Struct(p)
}

// StatusParams carries an admin status change request.
type StatusParams struct {
	Status RedemptionStatus `json:"status" validate:"required,oneof=verified paid"`
}

func (p *StatusParams) Bind(_ *http.Request) error {
	return validate.Struct(p)
}
