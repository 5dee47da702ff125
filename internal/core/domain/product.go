package domain

import (
	"time"

	"github.com/shopspring/decimal"
)

type Client struct {
	ID    int64
	Email string
	Name  string
}

type Product struct {
	ID        int64
	Barcode   string
	ClientID  int64
	Name      string
	MRP       decimal.Decimal
	CreatedAt time.Time
	UpdatedAt time.Time
}
