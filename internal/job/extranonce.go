package job

import "fmt"

// Extranonce2Counter is the per-attempt counter a V1 job builder rolls
// between ASIC attempts on an unchanged pool notification. Formatted
// as a fixed-width hex string per the pool-advertised digit count.
//
// Per spec §9 Open Questions, the original source truncates the
// counter with simple modular wraparound rather than detecting
// exhaustion of the extranonce_2 space and forcing a new pool
// notification; that behavior is ported as-is here rather than fixed,
// since no observable difference in share acceptance has ever been
// reported from it.
type Extranonce2Counter struct {
	value uint64
	hex   int // digit count, i.e. byte width * 2
}

// NewExtranonce2Counter builds a counter formatting to digitCount hex
// characters (typically 8 or 16, i.e. a 4- or 8-byte extranonce_2).
func NewExtranonce2Counter(digitCount int) *Extranonce2Counter {
	return &Extranonce2Counter{hex: digitCount}
}

// Next returns the current value as a zero-padded hex string, then
// increments, wrapping modulo 16^digitCount.
func (c *Extranonce2Counter) Next() string {
	mask := uint64(1)<<(4*uint(c.hex)) - 1
	v := c.value & mask
	s := fmt.Sprintf("%0*x", c.hex, v)
	c.value++
	return s
}

// Reset zeroes the counter, so the next call to Next returns the
// all-zero string.
func (c *Extranonce2Counter) Reset() {
	c.value = 0
}
