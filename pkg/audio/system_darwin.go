//go:build darwin

package audio

// deviceArgs selects the default AVFoundation audio device.
func deviceArgs() ([]string, error) {
	return []string{"-f", "avfoundation", "-i", ":0"}, nil
}
