package utils

import (
	"errors"
	"math/big"

	"github.com/shopspring/decimal"
)

// Fixed-point output policy shared by every engine: ratios keep four decimal
// places, money keeps two, and both round half-to-even.
const (
	RatioPlaces int32 = 4
	MoneyPlaces int32 = 2
)

var (
	errNonPositiveTerm      = errors.New("loan term must be positive")
	errNonPositivePrincipal = errors.New("loan amount must be positive")
	errNegativeRate         = errors.New("annual rate must not be negative")
)

// RoundRat converts an exact rational to a decimal with banker's rounding.
func RoundRat(r *big.Rat, places int32) decimal.Decimal {
	q, rem, den := scaledQuoRem(r, places)

	// Ties go to the even neighbour.
	twice := new(big.Int).Abs(rem)
	twice.Lsh(twice, 1)
	switch cmp := twice.Cmp(den); {
	case cmp > 0, cmp == 0 && q.Bit(0) == 1:
		if rem.Sign() < 0 {
			q.Sub(q, big.NewInt(1))
		} else {
			q.Add(q, big.NewInt(1))
		}
	}

	return decimal.NewFromBigInt(q, -places)
}

// FloorRat converts an exact rational to a decimal, rounding toward negative infinity.
func FloorRat(r *big.Rat, places int32) decimal.Decimal {
	q, rem, _ := scaledQuoRem(r, places)
	if rem.Sign() < 0 {
		q.Sub(q, big.NewInt(1))
	}
	return decimal.NewFromBigInt(q, -places)
}

func scaledQuoRem(r *big.Rat, places int32) (*big.Int, *big.Int, *big.Int) {
	scale := new(big.Int).Exp(big.NewInt(10), big.NewInt(int64(places)), nil)
	num := new(big.Int).Mul(r.Num(), scale)
	den := r.Denom()
	q, rem := new(big.Int).QuoRem(num, den, new(big.Int))
	return q, rem, den
}

// MonthlyPaymentRat calculates the exact annuity payment
// Formula: P * r * (1+r)^n / ((1+r)^n - 1), r = annualRate / 12
func MonthlyPaymentRat(principal, annualRate decimal.Decimal, months int) (*big.Rat, error) {
	if months <= 0 {
		return nil, errNonPositiveTerm
	}
	if !principal.IsPositive() {
		return nil, errNonPositivePrincipal
	}
	if annualRate.IsNegative() {
		return nil, errNegativeRate
	}

	p := principal.Rat()
	n := big.NewRat(int64(months), 1)
	if annualRate.IsZero() {
		return new(big.Rat).Quo(p, n), nil
	}

	r := new(big.Rat).Quo(annualRate.Rat(), big.NewRat(12, 1))
	growth := ratPow(new(big.Rat).Add(big.NewRat(1, 1), r), months)

	numerator := new(big.Rat).Mul(p, r)
	numerator.Mul(numerator, growth)
	denominator := new(big.Rat).Sub(growth, big.NewRat(1, 1))

	return numerator.Quo(numerator, denominator), nil
}

// CalculateMonthlyPayment returns the annuity payment rounded to money precision.
func CalculateMonthlyPayment(principal, annualRate decimal.Decimal, months int) (decimal.Decimal, error) {
	payment, err := MonthlyPaymentRat(principal, annualRate, months)
	if err != nil {
		return decimal.Zero, err
	}
	return RoundRat(payment, MoneyPlaces), nil
}

// CalculateTotalRepayment returns payment * months at money precision.
func CalculateTotalRepayment(monthlyPayment decimal.Decimal, months int) decimal.Decimal {
	return monthlyPayment.Mul(decimal.NewFromInt(int64(months))).RoundBank(MoneyPlaces)
}

// CalculateOverpayment returns the interest part of the total repayment.
func CalculateOverpayment(principal, totalRepayment decimal.Decimal) decimal.Decimal {
	return totalRepayment.Sub(principal).RoundBank(MoneyPlaces)
}

// PrincipalForPaymentRat inverts the annuity formula: the exact principal whose
// payment over months at annualRate equals payment.
func PrincipalForPaymentRat(payment *big.Rat, annualRate decimal.Decimal, months int) (*big.Rat, error) {
	if months <= 0 {
		return nil, errNonPositiveTerm
	}
	if annualRate.IsNegative() {
		return nil, errNegativeRate
	}

	n := big.NewRat(int64(months), 1)
	if annualRate.IsZero() {
		return new(big.Rat).Mul(payment, n), nil
	}

	r := new(big.Rat).Quo(annualRate.Rat(), big.NewRat(12, 1))
	growth := ratPow(new(big.Rat).Add(big.NewRat(1, 1), r), months)

	numerator := new(big.Rat).Sub(growth, big.NewRat(1, 1))
	numerator.Mul(numerator, payment)
	denominator := new(big.Rat).Mul(r, growth)

	return numerator.Quo(numerator, denominator), nil
}

func ratPow(base *big.Rat, exp int) *big.Rat {
	result := big.NewRat(1, 1)
	b := new(big.Rat).Set(base)
	for exp > 0 {
		if exp&1 == 1 {
			result.Mul(result, b)
		}
		b.Mul(b, b)
		exp >>= 1
	}
	return result
}
