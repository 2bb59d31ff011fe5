//go:build !darwin && !linux

package audio

func deviceArgs() ([]string, error) {
	return nil, ErrNoAudioBackend
}
