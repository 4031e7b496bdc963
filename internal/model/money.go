package model

import (
	"errors"
	"fmt"
	"math/big"
	"strings"

	"github.com/shopspring/decimal"
)

var (
	// ErrCommodityMismatch is returned when arithmetic mixes two commodities.
	ErrCommodityMismatch = errors.New("commodity mismatch")
	// ErrInexactAmount is returned for fractions with no finite decimal form, such as 1/3.
	ErrInexactAmount = errors.New("amount has no exact decimal representation")
)

// Commodity is a currency or other unit an amount is denominated in.
type Commodity struct {
	Mnemonic         string
	Fullname         string
	SmallestFraction int
}

// Built-in commodities.
var (
	USD = Commodity{Mnemonic: "USD", Fullname: "US Dollar", SmallestFraction: 100}
	EUR = Commodity{Mnemonic: "EUR", Fullname: "Euro", SmallestFraction: 100}
	GBP = Commodity{Mnemonic: "GBP", Fullname: "Pound Sterling", SmallestFraction: 100}
	CHF = Commodity{Mnemonic: "CHF", Fullname: "Swiss Franc", SmallestFraction: 100}
	CAD = Commodity{Mnemonic: "CAD", Fullname: "Canadian Dollar", SmallestFraction: 100}
	AUD = Commodity{Mnemonic: "AUD", Fullname: "Australian Dollar", SmallestFraction: 100}
	JPY = Commodity{Mnemonic: "JPY", Fullname: "Yen", SmallestFraction: 1}

	DefaultCommodity = USD
)

var knownCommodities = map[string]Commodity{
	USD.Mnemonic: USD,
	EUR.Mnemonic: EUR,
	GBP.Mnemonic: GBP,
	CHF.Mnemonic: CHF,
	CAD.Mnemonic: CAD,
	AUD.Mnemonic: AUD,
	JPY.Mnemonic: JPY,
}

// CommodityByCode returns the commodity for an ISO 4217 code. Unknown codes
// get a commodity with a smallest fraction of 100.
func CommodityByCode(code string) Commodity {
	code = strings.ToUpper(strings.TrimSpace(code))
	if code == "" {
		return DefaultCommodity
	}
	if c, ok := knownCommodities[code]; ok {
		return c
	}
	return Commodity{Mnemonic: code, Fullname: code, SmallestFraction: 100}
}

// Digits is the number of decimal places implied by the smallest fraction.
func (c Commodity) Digits() int32 {
	var digits int32
	for f := c.SmallestFraction; f > 1; f /= 10 {
		digits++
	}
	return digits
}

func (c Commodity) String() string {
	return c.Mnemonic
}

// Money is an exact, immutable amount in a single commodity.
type Money struct {
	amount    decimal.Decimal
	commodity Commodity
}

// NewMoney creates money from a decimal amount.
func NewMoney(amount decimal.Decimal, commodity Commodity) Money {
	return Money{amount: amount, commodity: commodity}
}

// ParseMoney parses a decimal string such as "-12.50" in the given currency code.
func ParseMoney(amount, code string) (Money, error) {
	d, err := decimal.NewFromString(strings.TrimSpace(amount))
	if err != nil {
		return Money{}, fmt.Errorf("invalid amount %q: %w", amount, err)
	}
	return NewMoney(d, CommodityByCode(code)), nil
}

// NewMoneyFromFraction creates money from a numerator and denominator pair.
// The fraction must have a terminating decimal expansion.
func NewMoneyFromFraction(numerator, denominator int64, code string) (Money, error) {
	if denominator == 0 {
		return Money{}, fmt.Errorf("invalid amount %d/%d: zero denominator", numerator, denominator)
	}
	return NewMoneyFromRat(big.NewRat(numerator, denominator), code)
}

// NewMoneyFromRat creates money from an exact rational amount.
func NewMoneyFromRat(r *big.Rat, code string) (Money, error) {
	amount, err := exactDecimal(r)
	if err != nil {
		return Money{}, err
	}
	return NewMoney(amount, CommodityByCode(code)), nil
}

// exactDecimal converts r to a decimal without rounding. A reduced
// denominator of 2^a*5^b terminates after max(a, b) places.
func exactDecimal(r *big.Rat) (decimal.Decimal, error) {
	denom := new(big.Int).Set(r.Denom())
	two, five := big.NewInt(2), big.NewInt(5)
	var twos, fives int
	rem := new(big.Int)
	for {
		if _, m := new(big.Int).QuoRem(denom, two, rem); m.Sign() != 0 {
			break
		}
		denom.Quo(denom, two)
		twos++
	}
	for {
		if _, m := new(big.Int).QuoRem(denom, five, rem); m.Sign() != 0 {
			break
		}
		denom.Quo(denom, five)
		fives++
	}
	if denom.Cmp(big.NewInt(1)) != 0 {
		return decimal.Decimal{}, fmt.Errorf("%w: %s", ErrInexactAmount, r.RatString())
	}

	places := max(twos, fives)
	scale := new(big.Int).Exp(big.NewInt(10), big.NewInt(int64(places)), nil)
	value := new(big.Int).Mul(r.Num(), scale)
	value.Quo(value, r.Denom())
	return decimal.NewFromBigInt(value, -int32(places)), nil
}

// ZeroMoney returns a zero amount in the commodity.
func ZeroMoney(commodity Commodity) Money {
	return Money{amount: decimal.Zero, commodity: commodity}
}

// Amount returns the decimal amount.
func (m Money) Amount() decimal.Decimal {
	return m.amount
}

// Commodity returns the commodity the amount is denominated in.
func (m Money) Commodity() Commodity {
	return m.commodity
}

// Rat returns the amount as an exact rational in lowest terms.
func (m Money) Rat() *big.Rat {
	return m.amount.Rat()
}

// Numerator returns the numerator of the amount in lowest terms.
func (m Money) Numerator() *big.Int {
	return m.amount.Rat().Num()
}

// Denominator returns the denominator of the amount in lowest terms.
func (m Money) Denominator() *big.Int {
	return m.amount.Rat().Denom()
}

// Add returns m + other.
func (m Money) Add(other Money) (Money, error) {
	if err := m.checkCommodity(other); err != nil {
		return Money{}, err
	}
	return Money{amount: m.amount.Add(other.amount), commodity: m.commodity}, nil
}

// Subtract returns m - other.
func (m Money) Subtract(other Money) (Money, error) {
	if err := m.checkCommodity(other); err != nil {
		return Money{}, err
	}
	return Money{amount: m.amount.Sub(other.amount), commodity: m.commodity}, nil
}

// Negate returns -m.
func (m Money) Negate() Money {
	return Money{amount: m.amount.Neg(), commodity: m.commodity}
}

// Abs returns |m|.
func (m Money) Abs() Money {
	return Money{amount: m.amount.Abs(), commodity: m.commodity}
}

// IsZero reports whether the amount is zero.
func (m Money) IsZero() bool {
	return m.amount.IsZero()
}

// IsNegative reports whether the amount is below zero.
func (m Money) IsNegative() bool {
	return m.amount.IsNegative()
}

// Equal reports whether both amount and commodity match.
func (m Money) Equal(other Money) bool {
	return m.commodity.Mnemonic == other.commodity.Mnemonic && m.amount.Equal(other.amount)
}

// String formats the amount with the commodity's decimal places.
func (m Money) String() string {
	return fmt.Sprintf("%s %s", m.amount.StringFixed(m.commodity.Digits()), m.commodity.Mnemonic)
}

func (m Money) checkCommodity(other Money) error {
	if m.commodity.Mnemonic != other.commodity.Mnemonic {
		return fmt.Errorf("%w: %s and %s", ErrCommodityMismatch, m.commodity.Mnemonic, other.commodity.Mnemonic)
	}
	return nil
}
