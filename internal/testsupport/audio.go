package testsupport

import (
	"math"
	"os"
	"path/filepath"
	"testing"

	"neuravox/internal/media/wavio"
)

// ToneSpan marks a region of a synthetic clip that carries a tone; samples
// outside every span are digital silence.
type ToneSpan struct {
	Start float64
	End   float64
}

// WriteToneWAV writes a mono 16-bit WAV of the given total duration with a
// 440 Hz tone at amplitude 0.5 inside each span.
func WriteToneWAV(t testing.TB, path string, sampleRate int, totalSeconds float64, spans ...ToneSpan) {
	t.Helper()

	frames := int(totalSeconds * float64(sampleRate))
	samples := make([]float64, frames)
	for _, span := range spans {
		start := int(span.Start * float64(sampleRate))
		end := int(span.End * float64(sampleRate))
		if start < 0 {
			start = 0
		}
		if end > frames {
			end = frames
		}
		for i := start; i < end; i++ {
			samples[i] = 0.5 * math.Sin(2*math.Pi*440*float64(i)/float64(sampleRate))
		}
	}

	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		t.Fatalf("mkdir for %s: %v", path, err)
	}
	if err := wavio.WriteMono(path, samples, sampleRate); err != nil {
		t.Fatalf("write tone wav %s: %v", path, err)
	}
}

// WriteFile fills the target path with the requested number of bytes using a
// simple repeating pattern. A size <= 0 writes a single byte.
func WriteFile(t testing.TB, path string, size int64) {
	t.Helper()

	if size <= 0 {
		size = 1
	}
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		t.Fatalf("mkdir for %s: %v", path, err)
	}
	f, err := os.Create(path)
	if err != nil {
		t.Fatalf("create %s: %v", path, err)
	}
	defer f.Close()

	const chunkSize = 32 * 1024
	buf := make([]byte, chunkSize)
	for i := range buf {
		buf[i] = 0x42
	}

	remaining := size
	for remaining > 0 {
		toWrite := int64(chunkSize)
		if remaining < toWrite {
			toWrite = remaining
		}
		if _, err := f.Write(buf[:toWrite]); err != nil {
			t.Fatalf("write %s: %v", path, err)
		}
		remaining -= toWrite
	}
}
