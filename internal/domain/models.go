// Package domain provides core domain models and types.
package domain

import "time"

// Currency represents a currency code
type Currency string

const (
	CurrencyEUR Currency = "EUR"
	CurrencyUSD Currency = "USD"
	CurrencyGBP Currency = "GBP"
	CurrencyHKD Currency = "HKD"
)

// AllCurrencies lists every supported currency
var AllCurrencies = []Currency{CurrencyEUR, CurrencyUSD, CurrencyGBP, CurrencyHKD}

// IsValid reports whether the currency is one of the supported codes
func (c Currency) IsValid() bool {
	switch c {
	case CurrencyEUR, CurrencyUSD, CurrencyGBP, CurrencyHKD:
		return true
	}
	return false
}

// AssetType represents the type of asset held in a portfolio
type AssetType string

const (
	// AssetTypeStock represents individual stocks/shares
	AssetTypeStock AssetType = "STOCK"
	// AssetTypeETF represents Exchange Traded Funds
	AssetTypeETF AssetType = "ETF"
	// AssetTypeBond represents bonds
	AssetTypeBond AssetType = "BOND"
	// AssetTypeFixedDeposit represents bank fixed/term deposits
	AssetTypeFixedDeposit AssetType = "FIXED_DEPOSIT"
	// AssetTypeCash represents cash-like instruments
	AssetTypeCash AssetType = "CASH"
	// AssetTypeUnknown represents unknown type
	AssetTypeUnknown AssetType = "UNKNOWN"
)

// TransactionType represents the type of a ledger transaction
type TransactionType string

const (
	TransactionBuy          TransactionType = "BUY"
	TransactionSell         TransactionType = "SELL"
	TransactionDividend     TransactionType = "DIVIDEND"
	TransactionInterest     TransactionType = "INTEREST"
	TransactionDeposit      TransactionType = "DEPOSIT"
	TransactionWithdrawal   TransactionType = "WITHDRAWAL"
	TransactionFixedDeposit TransactionType = "FIXED_DEPOSIT"
	TransactionFDWithdrawal TransactionType = "FD_WITHDRAWAL"
)

// IsValid reports whether the transaction type is one of the known types
func (t TransactionType) IsValid() bool {
	switch t {
	case TransactionBuy, TransactionSell, TransactionDividend, TransactionInterest,
		TransactionDeposit, TransactionWithdrawal, TransactionFixedDeposit, TransactionFDWithdrawal:
		return true
	}
	return false
}

// RequiresAsset reports whether the transaction type must reference an asset
func (t TransactionType) RequiresAsset() bool {
	switch t {
	case TransactionBuy, TransactionSell, TransactionDividend, TransactionFixedDeposit, TransactionFDWithdrawal:
		return true
	}
	return false
}

// DepositStatus represents the lifecycle state of a fixed deposit
type DepositStatus string

const (
	DepositActive    DepositStatus = "ACTIVE"
	DepositMatured   DepositStatus = "MATURED"
	DepositWithdrawn DepositStatus = "WITHDRAWN"
)

// Portfolio represents a family member's investment portfolio.
// Cash balance is held in the portfolio's main currency; institution-level
// cash is tracked per currency and kept in sync when cash discipline is on.
type Portfolio struct {
	ID             int64     `json:"id"`
	Name           string    `json:"name"`
	MainCurrency   Currency  `json:"main_currency"`
	CashBalance    float64   `json:"cash_balance"`
	CashDiscipline bool      `json:"cash_discipline"`
	CreatedAt      time.Time `json:"created_at"`
	UpdatedAt      time.Time `json:"updated_at"`
}

// Institution represents a bank or broker holding part of a portfolio
type Institution struct {
	ID          int64     `json:"id"`
	PortfolioID int64     `json:"portfolio_id"`
	Name        string    `json:"name"`
	CreatedAt   time.Time `json:"created_at"`
}

// Asset represents a tradeable or deposit instrument
type Asset struct {
	ID           int64     `json:"id"`
	Symbol       string    `json:"symbol"`
	Name         string    `json:"name"`
	Type         AssetType `json:"type"`
	Currency     Currency  `json:"currency"`
	CurrentPrice float64   `json:"current_price"`

	// Fixed-deposit fields, nil for other asset types
	DepositPrincipal    *float64       `json:"deposit_principal,omitempty"`
	DepositAnnualRate   *float64       `json:"deposit_annual_rate,omitempty"`
	DepositStartDate    *string        `json:"deposit_start_date,omitempty"`
	DepositMaturityDate *string        `json:"deposit_maturity_date,omitempty"`
	DepositStatus       *DepositStatus `json:"deposit_status,omitempty"`

	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
}

// IsFixedDeposit reports whether the asset is a fixed/term deposit
func (a *Asset) IsFixedDeposit() bool {
	return a.Type == AssetTypeFixedDeposit
}

// Holding represents an aggregated position for one asset within one portfolio
type Holding struct {
	PortfolioID      int64     `json:"portfolio_id"`
	AssetID          int64     `json:"asset_id"`
	Quantity         float64   `json:"quantity"`
	AvgCostBasis     float64   `json:"avg_cost_basis"`
	RealizedGainLoss float64   `json:"realized_gain_loss"`
	TotalDividends   float64   `json:"total_dividends"`
	UpdatedAt        time.Time `json:"updated_at"`
}

// Transaction represents a ledger transaction.
// RealizedGain is stamped by the impact service at apply time for sells,
// so realized P&L reports are a pure sum over stored rows. PriorAvgCost
// is stamped on buys: re-opening a closed position overwrites the
// preserved cost basis, and reversal needs the old value to restore it.
type Transaction struct {
	ID            string          `json:"id"`
	PortfolioID   int64           `json:"portfolio_id"`
	AssetID       *int64          `json:"asset_id,omitempty"`
	InstitutionID *int64          `json:"institution_id,omitempty"`
	Type          TransactionType `json:"type"`
	Quantity      float64         `json:"quantity"`
	Price         float64         `json:"price"`
	Amount        float64         `json:"amount"`
	Fees          float64         `json:"fees"`
	Tax           float64         `json:"tax"`
	Currency      Currency        `json:"currency"`
	CurrencyRate  float64         `json:"currency_rate"`
	RealizedGain  float64         `json:"realized_gain"`
	PriorAvgCost  float64         `json:"prior_avg_cost,omitempty"`
	TradeDate     string          `json:"trade_date"` // YYYY-MM-DD
	Note          string          `json:"note,omitempty"`
	CreatedAt     time.Time       `json:"created_at"`
}

// Money represents a monetary value with currency
type Money struct {
	Currency Currency `json:"currency"`
	Amount   float64  `json:"amount"`
}

// NewMoney creates a new Money value
func NewMoney(amount float64, currency Currency) Money {
	return Money{
		Amount:   amount,
		Currency: currency,
	}
}
