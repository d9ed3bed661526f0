package model

import "time"

type User struct {
	ID        int       `json:"id"`
	Name      string    `json:"name"`
	Password  string    `json:"-"`
	IsAdmin   bool      `json:"is_admin"`
	CreatedAt time.Time `json:"-"`
}

// UserSummary is the shape returned by the admin user list.
type UserSummary struct {
	ID   int    `json:"id"`
	Name string `json:"name"`
}
