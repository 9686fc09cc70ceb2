package storage

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"

	"canto/internal/utils"
)

const (
	TranscriptFile = "translate.txt"
	AudioFile      = "synthesized_audio.wav"
)

// ErrNotFound is returned when no artifact has been produced yet.
var ErrNotFound = errors.New("artifact not found")

// ArtifactStore keeps the most recent transcript and synthesized audio.
// Every write replaces the file by rename, so readers always see a complete
// artifact from some request.
type ArtifactStore struct {
	documentsDir string
	uploadsDir   string
}

func NewArtifactStore(documentsDir, uploadsDir string) *ArtifactStore {
	return &ArtifactStore{
		documentsDir: utils.ExpandHome(documentsDir),
		uploadsDir:   utils.ExpandHome(uploadsDir),
	}
}

// SaveTranscript stores text as the latest transcript and returns its path.
func (s *ArtifactStore) SaveTranscript(text string) (string, error) {
	path := filepath.Join(s.documentsDir, TranscriptFile)
	if err := utils.WriteFileAtomic(path, []byte(text), 0644); err != nil {
		return "", fmt.Errorf("failed to save transcript: %w", err)
	}
	return path, nil
}

// AudioPath is where synthesized audio is written.
func (s *ArtifactStore) AudioPath() string {
	return filepath.Join(s.uploadsDir, AudioFile)
}

func (s *ArtifactStore) LatestTranscript() (string, error) {
	return existing(filepath.Join(s.documentsDir, TranscriptFile))
}

func (s *ArtifactStore) LatestAudio() (string, error) {
	return existing(s.AudioPath())
}

func existing(path string) (string, error) {
	info, err := os.Stat(path)
	if errors.Is(err, os.ErrNotExist) {
		return "", ErrNotFound
	}
	if err != nil {
		return "", err
	}
	if info.IsDir() {
		return "", ErrNotFound
	}
	return path, nil
}
