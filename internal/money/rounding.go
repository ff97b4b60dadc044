package money

// RoundCash rounds an integer forint amount to the nearest multiple of 5,
// as required for cash settlement. Negative amounts round by magnitude and
// keep their sign, so RoundCash(-x) == -RoundCash(x).
func RoundCash(n int) int {
	sign := 1
	a := n
	if n < 0 {
		sign = -1
		a = -n
	}

	switch a % 10 {
	case 1, 2:
		a -= a % 10
	case 3, 4:
		a += 5 - a%10
	case 6, 7:
		a -= a%10 - 5
	case 8, 9:
		a += 10 - a%10
	}

	return sign * a
}
