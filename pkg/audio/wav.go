package audio

import (
	"bufio"
	"encoding/binary"
	"fmt"
	"os"
)

// writeWAV persists interleaved 16-bit PCM samples as a canonical RIFF/WAVE
// file and returns the file size in bytes.
func writeWAV(path string, samples []int16, sampleRate, channels int) (int64, error) {
	file, err := os.Create(path)
	if err != nil {
		return 0, fmt.Errorf("create audio file: %w", err)
	}
	defer file.Close()

	const (
		bitsPerSample = 16
		headerSize    = 44
	)
	dataSize := len(samples) * 2
	byteRate := sampleRate * channels * bitsPerSample / 8
	blockAlign := channels * bitsPerSample / 8

	w := bufio.NewWriter(file)
	w.WriteString("RIFF")
	binary.Write(w, binary.LittleEndian, uint32(headerSize-8+dataSize))
	w.WriteString("WAVE")
	w.WriteString("fmt ")
	binary.Write(w, binary.LittleEndian, uint32(16))
	binary.Write(w, binary.LittleEndian, uint16(1)) // PCM
	binary.Write(w, binary.LittleEndian, uint16(channels))
	binary.Write(w, binary.LittleEndian, uint32(sampleRate))
	binary.Write(w, binary.LittleEndian, uint32(byteRate))
	binary.Write(w, binary.LittleEndian, uint16(blockAlign))
	binary.Write(w, binary.LittleEndian, uint16(bitsPerSample))
	w.WriteString("data")
	binary.Write(w, binary.LittleEndian, uint32(dataSize))
	if err := binary.Write(w, binary.LittleEndian, samples); err != nil {
		return 0, fmt.Errorf("write audio samples: %w", err)
	}
	if err := w.Flush(); err != nil {
		return 0, fmt.Errorf("flush audio file: %w", err)
	}

	info, err := file.Stat()
	if err != nil {
		return 0, fmt.Errorf("stat audio file: %w", err)
	}
	return info.Size(), nil
}
