package portal

import (
	"fmt"
	"math"
	"strconv"
	"strings"

	valierr "github.com/mrz1836/vali/pkg/errors"
)

// ErrMissingFields reports a step payload without the fields a balance
// needs. The portal answers this shape when an account exists but the
// provider returned no bill data for it.
var ErrMissingFields = &valierr.ValiError{
	Code:     "MISSING_FIELDS",
	Message:  "step parameters missing required fields",
	ExitCode: valierr.ExitNetwork,
}

// Balance is the parsed bill state of one account.
type Balance struct {
	// Name is the customer name as registered with the provider.
	Name string

	// AccountID is the subscriber code the portal echoed back, or the
	// queried code when the portal omitted it.
	AccountID string

	// Debt is the signed balance. Positive means the customer owes,
	// negative means credit.
	Debt float64

	// DebtAmount is the provider's payable figure, usually equal to Debt.
	DebtAmount float64

	// AmountToPay is the non-negative amount needed to settle the bill.
	// Zero when the account is in credit or settled.
	AmountToPay float64

	// Currency is the ISO code of the amounts, GEL unless stated.
	Currency string

	// CanPay reports whether the portal would accept a payment.
	CanPay bool

	// Raw preserves every step parameter for callers that want fields
	// not modeled here.
	Raw map[string]string
}

// ParseBalance interprets a step's parameters as a balance. fallbackAccount
// fills AccountID when the portal does not echo the subscriber code.
//
// The portal's key set varies per provider. A customer name is taken from
// the first non-empty of CLIENTINFO, NAME and customerName; the balance
// from DEBT and DebtAmount. A payload carrying neither a name nor any
// balance key is not a balance and returns ErrMissingFields.
func ParseBalance(raw map[string]string, fallbackAccount string) (*Balance, error) {
	name := firstNonEmpty(raw["CLIENTINFO"], raw["NAME"], raw["customerName"])
	if name == "" {
		return nil, fmt.Errorf("%w: no customer name", ErrMissingFields)
	}

	_, hasDebt := raw["DEBT"]
	_, hasDebtAmount := raw["DebtAmount"]
	if !hasDebt && !hasDebtAmount {
		return nil, fmt.Errorf("%w: no balance keys", ErrMissingFields)
	}

	debt, debtAmount := parseAmounts(raw)

	var amountToPay float64
	if debt > 0 {
		amountToPay = math.Abs(debtAmount)
	}

	// An explicitly present key wins even when its value is empty; the
	// defaults cover only absent keys.
	account := fallbackAccount
	if v, ok := raw["abonentCode"]; ok {
		account = v
	}
	currency := "GEL"
	if v, ok := raw["DebtCurrency"]; ok {
		currency = v
	}

	canPay := amountToPay > 0
	if v, ok := raw["CANPAY"]; ok {
		canPay = v == "1"
	}

	return &Balance{
		Name:        name,
		AccountID:   account,
		Debt:        debt,
		DebtAmount:  debtAmount,
		AmountToPay: amountToPay,
		Currency:    currency,
		CanPay:      canPay,
		Raw:         raw,
	}, nil
}

// parseAmounts reads DEBT and DebtAmount. An absent DEBT means zero and an
// absent DebtAmount mirrors DEBT. A value that fails to parse zeroes both,
// never just one, so the pair stays consistent.
func parseAmounts(raw map[string]string) (debt, debtAmount float64) {
	if text, ok := raw["DEBT"]; ok {
		v, err := strconv.ParseFloat(strings.TrimSpace(text), 64)
		if err != nil {
			return 0, 0
		}
		debt = v
	}

	debtAmount = debt
	if text, ok := raw["DebtAmount"]; ok {
		v, err := strconv.ParseFloat(strings.TrimSpace(text), 64)
		if err != nil {
			return 0, 0
		}
		debtAmount = v
	}

	return debt, debtAmount
}

// firstNonEmpty returns the first value that is not the empty string.
func firstNonEmpty(values ...string) string {
	for _, v := range values {
		if v != "" {
			return v
		}
	}
	return ""
}
