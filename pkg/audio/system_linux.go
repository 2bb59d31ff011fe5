//go:build linux

package audio

// deviceArgs selects the default ALSA capture device.
func deviceArgs() ([]string, error) {
	return []string{"-f", "alsa", "-i", "default"}, nil
}
