package entity

import "errors"

// ErrDuplicate is returned by store adapters when an insert is rejected by
// a unique index (referrer email, referral code, friend email). The service
// layer maps it to the matching user-facing message.
var ErrDuplicate = errors.New("duplicate key")
