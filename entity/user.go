package entity

import "time"

// User is an API user for the admin surface, authenticated by a bearer
// token. Records are provisioned directly in the store; there is no
// self-service signup.
type User struct {
	Username     string    `json:"username" bson:"username"`
	Name         string    `json:"name" bson:"name"`
	Token        string    `json:"token" bson:"token"`
	RegisteredAt time.Time `json:"registered_at" bson:"registered_at"`
}
