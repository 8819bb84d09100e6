package approval

// ScaleFactor lifts human-scale amounts to the circuit's integer domain. The
// off-chain canonicalizer preserves three sub-unit decimal digits from the
// instruction's amount strings, so the proof attests amounts multiplied by
// 1000.
const ScaleFactor uint64 = 1000

// ScaleAmount multiplies the amount by ScaleFactor, detecting multiplicative
// overflow. The function is pure and total except for the overflow error.
func ScaleAmount(amount uint64) (uint64, error) {
	scaled := amount * ScaleFactor
	if amount != 0 && scaled/ScaleFactor != amount {
		return 0, ErrScalingOverflow
	}
	return scaled, nil
}
