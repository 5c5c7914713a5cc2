// Package money holds minor-unit (cents) arithmetic. Division happens in
// exactly one place in the system — pro-rata session refunds — and rounds
// half to even.
package money

// DivRound divides num by den, rounding half to even. Inputs must be
// non-negative and den must be positive; amounts and durations in this
// system always are.
func DivRound(num, den int64) int64 {
	q := num / den
	r := num % den
	if r == 0 {
		return q
	}
	switch {
	case 2*r < den:
		return q
	case 2*r > den:
		return q + 1
	default: // exactly half
		if q%2 == 0 {
			return q
		}
		return q + 1
	}
}

// Prorata returns the share of priceCents corresponding to remaining out of
// total. Used for unused-time refunds: price / total * remaining.
func Prorata(priceCents, remaining, total int64) int64 {
	if total <= 0 || remaining <= 0 {
		return 0
	}
	if remaining >= total {
		return priceCents
	}
	return DivRound(priceCents*remaining, total)
}
