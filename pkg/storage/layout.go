package storage

import "path/filepath"

// DirPrefix is prepended to the session id to form the session directory
// name under the storage root.
const DirPrefix = "session_"

// Artifact file names inside a session directory.
const (
	MetadataFileName    = "metadata.json"
	EventLogFileName    = "events.jsonl"
	ScreenRecordingName = "screen_recording.mp4"
	AudioRecordingName  = "audio_recording.wav"
	FramesDirName       = "frames"
)

// Layout represents the absolute filesystem locations for one session.
type Layout struct {
	Root                string
	MetadataPath        string
	EventLogPath        string
	ScreenRecordingPath string
	AudioRecordingPath  string
	FramesDir           string
}

// BuildLayout creates the session layout rooted under baseDir.
func BuildLayout(baseDir, sessionID string) Layout {
	root := filepath.Join(baseDir, DirPrefix+sessionID)
	return Layout{
		Root:                root,
		MetadataPath:        filepath.Join(root, MetadataFileName),
		EventLogPath:        filepath.Join(root, EventLogFileName),
		ScreenRecordingPath: filepath.Join(root, ScreenRecordingName),
		AudioRecordingPath:  filepath.Join(root, AudioRecordingName),
		FramesDir:           filepath.Join(root, FramesDirName),
	}
}
