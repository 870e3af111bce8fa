package domain

import (
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

// Role names granted to accounts.
const (
	RoleUser  = "user"
	RoleAdmin = "admin"
)

// Account is a storefront customer identity, unique by lower-cased email.
type Account struct {
	ID           uuid.UUID `json:"id"`
	FirstName    string    `json:"first_name"`
	LastName     string    `json:"last_name"`
	Email        string    `json:"email"`
	PasswordHash string    `json:"-"`
	Roles        []string  `json:"roles"`
	Verified     bool      `json:"verified"`
	Blocked      bool      `json:"blocked"`
	CreatedAt    time.Time `json:"created_at"`
}

// City is one row of the reference city table used for zone resolution.
type City struct {
	ID     uint   `json:"id"`
	Name   string `json:"name"`
	Code   string `json:"code"`
	Area   string `json:"area"`
	Region string `json:"region"`
}

// Product is the read-only view of a catalog entry.
type Product struct {
	ID    string          `json:"id"`
	Name  string          `json:"name"`
	Price decimal.Decimal `json:"price"`
}
