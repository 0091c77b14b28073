package entity

import "time"

const VaultTokenTypeCard = "cc"

type VaultToken struct {
	ID uint64

	GatewayID  string
	CustomerID uint64
	Token      string
	Type       string
	IsDefault  bool

	CreatedAt time.Time
	UpdatedAt time.Time
}
