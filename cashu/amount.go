package cashu

// AmountSplit decomposes amount into the canonical set of powers of two
// that sum to it (its binary expansion), ascending. Both the wallet (to
// prepare outputs) and the mint (to validate signing targets) use this.
func AmountSplit(amount uint64) []uint64 {
	var chunks []uint64
	for i := 0; amount > 0; i++ {
		if amount&1 == 1 {
			chunks = append(chunks, uint64(1)<<uint(i))
		}
		amount >>= 1
	}
	return chunks
}
