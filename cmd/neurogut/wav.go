package main

import (
	"fmt"
	"os"

	"github.com/gopxl/beep/v2/wav"
)

// readWAV decodes path into mono samples in [-1, 1] and the sample rate.
// Channels are averaged.
func readWAV(path string) ([]float64, float64, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, 0, err
	}
	stream, format, err := wav.Decode(f)
	if err != nil {
		f.Close()
		return nil, 0, fmt.Errorf("decoding %s: %w", path, err)
	}
	defer stream.Close()

	mono := make([]float64, 0, max(stream.Len(), 0))
	buf := make([][2]float64, 4096)
	for {
		n, ok := stream.Stream(buf)
		for _, frame := range buf[:n] {
			if format.NumChannels == 1 {
				mono = append(mono, frame[0])
			} else {
				mono = append(mono, (frame[0]+frame[1])/2)
			}
		}
		if !ok {
			break
		}
	}
	if err := stream.Err(); err != nil {
		return nil, 0, fmt.Errorf("reading %s: %w", path, err)
	}
	return mono, float64(format.SampleRate), nil
}
