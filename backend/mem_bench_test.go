package backend

import (
	"math/rand"
	"testing"

	"github.com/dustin/go-humanize"
)

// BenchmarkMemoryMedium measures sector and multi-sector access on the RAM medium
func BenchmarkMemoryMedium(b *testing.B) {
	const mediumSize = 16 << 20

	for _, sectors := range []int{1, 8, 64} {
		size := sectors * 512
		b.Run(humanize.IBytes(uint64(size)), func(b *testing.B) {
			medium := NewMemory(mediumSize)
			data := make([]byte, size)
			rand.Read(data)

			b.Run("ReadAt", func(b *testing.B) {
				buf := make([]byte, size)
				b.SetBytes(int64(size))
				b.ResetTimer()

				for i := 0; i < b.N; i++ {
					lba := rand.Intn(mediumSize/512 - sectors)
					medium.ReadAt(buf, int64(lba)*512)
				}
			})

			b.Run("WriteAt", func(b *testing.B) {
				b.SetBytes(int64(size))
				b.ResetTimer()

				for i := 0; i < b.N; i++ {
					lba := rand.Intn(mediumSize/512 - sectors)
					medium.WriteAt(data, int64(lba)*512)
				}
			})

			b.Run("WriteAt_Sequential", func(b *testing.B) {
				b.SetBytes(int64(size))
				b.ResetTimer()

				offset := int64(0)
				for i := 0; i < b.N; i++ {
					medium.WriteAt(data, offset)
					offset += int64(size)
					if offset+int64(size) > medium.Size() {
						offset = 0
					}
				}
			})
		})
	}
}

// BenchmarkMemoryParallelReads mirrors a host issuing reads while the logger is idle
func BenchmarkMemoryParallelReads(b *testing.B) {
	medium := NewMemory(4 << 20)
	b.SetBytes(512)
	b.RunParallel(func(pb *testing.PB) {
		buf := make([]byte, 512)
		lba := int64(0)
		for pb.Next() {
			medium.ReadAt(buf, lba*512)
			lba = (lba + 1) % (4 << 20 / 512)
		}
	})
}
