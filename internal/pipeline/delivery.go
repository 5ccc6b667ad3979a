package pipeline

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
)

// Delivery places synthesized audio where the broadcast system picks it
// up and returns the reference stored on the content record. A
// successful placement is the confirmation that moves a record from
// generated to broadcastReady.
type Delivery interface {
	Place(ctx context.Context, slotID, targetDate string, audio []byte) (string, error)
}

// FileDelivery writes audio files into a local delivery directory.
type FileDelivery struct {
	dir string
}

func NewFileDelivery(dir string) (*FileDelivery, error) {
	if err := os.MkdirAll(dir, 0755); err != nil {
		return nil, fmt.Errorf("create audio directory: %w", err)
	}
	return &FileDelivery{dir: dir}, nil
}

func (d *FileDelivery) Place(_ context.Context, slotID, targetDate string, audio []byte) (string, error) {
	name := fmt.Sprintf("%s_%s.mp3", targetDate, slotID)
	path := filepath.Join(d.dir, name)
	if err := os.WriteFile(path, audio, 0644); err != nil {
		return "", fmt.Errorf("write audio file: %w", err)
	}
	return path, nil
}
