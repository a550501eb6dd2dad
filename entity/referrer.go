package entity

import (
	"net/http"
	"strings"
	"time"
	"refhub/lib/validate"
)

// ReferrerStatus marks whether a referrer may still hand out their code.
// Only "active" referrers are created by this service; deactivation is a
// manual operation on the store.
type ReferrerStatus string

const (
	StatusActive   ReferrerStatus = "active"
	StatusInactive ReferrerStatus = "inactive"
)

// Referrer is a person who registered to receive a shareable referral code.
// Email is the natural key: stored lower-cased, at most one record per email.
// Code is globally unique across all referrers.
// ReferralCount is maintained incrementally via an atomic increment on the
// store, never by read-modify-write.
type Referrer struct {
	Id            string         `json:"id" bson:"_id"`
	Name          string         `json:"name" bson:"name"`
	Email         string         `json:"email" bson:"email"`
	Phone         string         `json:"phone" bson:"phone"`
	Code          string         `json:"code" bson:"code"`
	ReferralCount int64          `json:"referral_count" bson:"referral_count"`
	Earnings      float64        `json:"earnings" bson:"earnings"`
	Status        ReferrerStatus `json:"status" bson:"status"`
	CreatedAt     time.Time      `json:"created_at" bson:"created_at"`
}

// ReferrerInfo is the projection exposed to the friend-facing validation
// flow. Email and phone never cross that boundary.
type ReferrerInfo struct {
	Id   string `json:"id"`
	Name string `json:"name"`
	Code string `json:"code"`
}

func (r *Referrer) Info() *ReferrerInfo {
	return &ReferrerInfo{
		Id:   r.Id,
		Name: r.Name,
		Code: r.Code,
	}
}

// RegisterParams is the registration request body.
type RegisterParams struct {
	Name  string `json:"name" validate:"required"`
	Email string `json:"email" validate:"required,email"`
	Phone string `json:"phone" validate:"omitempty"`
}

func (p *RegisterParams) Bind(_ *http.Request) error {
	p.Name = strings.TrimSpace(p.Name)
	p.Email = strings.TrimSpace(p.Email)
	return validate.Struct(p)
}
