package logger

import (
	"strconv"
	"strings"
	"sync/atomic"
)

// ratioSampler lets num out of every den calls through. A zero den passes
// everything, a zero num with a positive den passes nothing.
type ratioSampler struct {
	ratio atomic.Uint64 // num<<32 | den
	calls atomic.Uint64
}

func newRatioSampler(num, den int) *ratioSampler {
	s := &ratioSampler{}
	s.Set(num, den)
	return s
}

// Set replaces the ratio and restarts the cycle.
func (s *ratioSampler) Set(num, den int) {
	switch {
	case den <= 0:
		num, den = 0, 0
	case num < 0:
		num = 0
	case num > den:
		num = den
	}
	s.ratio.Store(uint64(uint32(num))<<32 | uint64(uint32(den)))
	s.calls.Store(0)
}

// Allow reports whether the current call falls inside the sampled share.
func (s *ratioSampler) Allow() bool {
	r := s.ratio.Load()
	num, den := r>>32, r&0xffffffff
	if den == 0 {
		return true
	}
	if num == 0 {
		return false
	}
	n := s.calls.Add(1) - 1
	return n%den < num
}

// parseRatioSpec reads "n/d", a bare "d" (meaning 1/d), "all" or "off".
// ok is false when spec is empty or malformed.
func parseRatioSpec(spec string) (num, den int, ok bool) {
	spec = strings.ToLower(strings.TrimSpace(spec))
	switch spec {
	case "":
		return 0, 0, false
	case "all", "on":
		return 1, 1, true
	case "off", "none":
		return 0, 1, true
	}
	if head, tail, found := strings.Cut(spec, "/"); found {
		n, err1 := strconv.Atoi(strings.TrimSpace(head))
		d, err2 := strconv.Atoi(strings.TrimSpace(tail))
		if err1 != nil || err2 != nil || n < 0 || d <= 0 {
			return 0, 0, false
		}
		return n, d, true
	}
	d, err := strconv.Atoi(spec)
	if err != nil || d <= 0 {
		return 0, 0, false
	}
	return 1, d, true
}
