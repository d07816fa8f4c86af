package memory

import (
	"compress/gzip"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/navbridge/extension/pkg/core"
)

// JournalExport is the root JSON structure of an exported journal.
type JournalExport struct {
	StartedAt  time.Time              `json:"startedAt"`
	ExportedAt time.Time              `json:"exportedAt"`
	MarkerTaps []core.MarkerTap       `json:"markerTaps"`
	Navigation []core.NavigationEvent `json:"navigation"`
	Scenes     []core.SceneSnapshot   `json:"scenes"`
}

// exportJSON writes the journal to the output directory and returns the
// file path.
func (b *Backend) exportJSON() (string, error) {
	export := b.buildExport()

	timestamp := export.StartedAt.Format("20060102_150405")
	filename := fmt.Sprintf("navbridge_journal_%s.json", timestamp)
	if b.cfg.CompressOutput {
		filename += ".gz"
	}
	outputPath := filepath.Join(b.cfg.OutputDir, filename)

	if err := os.MkdirAll(b.cfg.OutputDir, 0755); err != nil {
		return "", fmt.Errorf("failed to create output directory: %w", err)
	}

	var err error
	if b.cfg.CompressOutput {
		err = writeGzipJSON(outputPath, export)
	} else {
		err = writeJSON(outputPath, export)
	}
	if err != nil {
		return "", err
	}
	return outputPath, nil
}

func (b *Backend) buildExport() JournalExport {
	b.mu.RLock()
	defer b.mu.RUnlock()
	return JournalExport{
		StartedAt:  b.started,
		ExportedAt: time.Now(),
		MarkerTaps: b.taps.all(),
		Navigation: b.navigation.all(),
		Scenes:     b.scenes.all(),
	}
}

func writeJSON(path string, data JournalExport) error {
	f, err := os.Create(path)
	if err != nil {
		return fmt.Errorf("failed to create file: %w", err)
	}
	defer f.Close()

	return json.NewEncoder(f).Encode(data)
}

func writeGzipJSON(path string, data JournalExport) error {
	f, err := os.Create(path)
	if err != nil {
		return fmt.Errorf("failed to create file: %w", err)
	}
	defer f.Close()

	gz := gzip.NewWriter(f)
	if err := json.NewEncoder(gz).Encode(data); err != nil {
		gz.Close()
		return fmt.Errorf("failed to encode journal: %w", err)
	}
	return gz.Close()
}
