package cache

import "testing"

func BenchmarkReserveHit(b *testing.B) {
	bc := New[testDesc](4)
	bc.Reserve(1, 4096, testDesc{64, 64})

	b.ResetTimer()
	for i := 0; i < b.N; i++ {
		bc.Reserve(1, 4096, testDesc{64, 64})
	}
}

func BenchmarkReserveMissWithEviction(b *testing.B) {
	bc := New[testDesc](4)
	for i := uint64(0); i < 4; i++ {
		bc.Reserve(i, 4096, testDesc{64, 64})
	}

	b.ResetTimer()
	for i := 0; i < b.N; i++ {
		bc.Reserve(uint64(i)+100, 4096, testDesc{64, 64})
	}
}
