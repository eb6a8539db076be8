package app

// stream is a splitmix64 generator. Its output depends only on the seed, so a sealed
// order can be re-derived from the stored seed on any platform and Go release.
type stream struct {
	state uint64
}

func newStream(seed int64) *stream {
	return &stream{state: uint64(seed)}
}

func (s *stream) next() uint64 {
	s.state += 0x9e3779b97f4a7c15
	z := s.state
	z = (z ^ (z >> 30)) * 0xbf58476d1ce4e5b9
	z = (z ^ (z >> 27)) * 0x94d049bb133111eb
	return z ^ (z >> 31)
}

// intn returns a value in [0, n). n must be positive.
func (s *stream) intn(n int) int {
	return int(s.next() % uint64(n))
}

// shuffle is an in-place Fisher–Yates shuffle driven by s.
func shuffle[T any](s *stream, items []T) {
	for i := len(items) - 1; i > 0; i-- {
		j := s.intn(i + 1)
		items[i], items[j] = items[j], items[i]
	}
}
