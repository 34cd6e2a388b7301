package models

import "time"

// FantasyHolding 体育 token 平台持仓
type FantasyHolding struct {
	ID      uint    `gorm:"primaryKey;autoIncrement" json:"id"`
	Wallet  string  `gorm:"type:varchar(66);not null;uniqueIndex:uidx_fantasy_wallet_token" json:"wallet"`
	TokenID string  `gorm:"type:varchar(96);not null;uniqueIndex:uidx_fantasy_wallet_token" json:"token_id"`
	Name    string  `gorm:"type:varchar(128)" json:"name"`
	Shares  float64 `gorm:"type:decimal(28,8);not null;default:0" json:"shares"`
	Price   float64 `gorm:"type:decimal(18,8);not null;default:0" json:"price"`
	Value   float64 `gorm:"type:decimal(28,8);not null;default:0" json:"value"`

	UpdatedAt time.Time `gorm:"not null" json:"updated_at"`
}

func (FantasyHolding) TableName() string {
	return "fantasy_holdings"
}

func (h *FantasyHolding) DedupKey() string {
	return "fh:" + h.Wallet + ":" + h.TokenID
}
