package persistence

import (
	"bytes"
	"encoding/json"
	"fmt"
	"io"
	"os"
	"strings"

	"github.com/ulikunitz/xz"
)

// Marshal encodes an artifact as indented JSON.
func Marshal(a *ModelArtifact) ([]byte, error) {
	return json.MarshalIndent(a, "", "  ")
}

func Unmarshal(b []byte) (*ModelArtifact, error) {
	var a ModelArtifact
	if err := json.Unmarshal(b, &a); err != nil {
		return nil, err
	}
	return &a, nil
}

// SaveArtifact writes the artifact to filename. Paths ending in ".xz" are
// xz-compressed.
func SaveArtifact(filename string, a *ModelArtifact) error {
	encoded, err := Marshal(a)
	if err != nil {
		return fmt.Errorf("failed to encode artifact: %w", err)
	}

	file, err := os.Create(filename)
	if err != nil {
		return fmt.Errorf("failed to create file: %w", err)
	}
	defer file.Close()

	if !strings.HasSuffix(filename, ".xz") {
		if _, err := file.Write(encoded); err != nil {
			return fmt.Errorf("failed to write artifact: %w", err)
		}
		return file.Close()
	}

	w, err := xz.NewWriter(file)
	if err != nil {
		return fmt.Errorf("failed to open xz stream: %w", err)
	}
	if _, err := w.Write(encoded); err != nil {
		return fmt.Errorf("failed to write artifact: %w", err)
	}
	if err := w.Close(); err != nil {
		return fmt.Errorf("failed to finish xz stream: %w", err)
	}
	return file.Close()
}

func LoadArtifact(filename string) (*ModelArtifact, error) {
	file, err := os.Open(filename)
	if err != nil {
		return nil, fmt.Errorf("failed to open file: %w", err)
	}
	defer file.Close()

	var r io.Reader = file
	if strings.HasSuffix(filename, ".xz") {
		if r, err = xz.NewReader(file); err != nil {
			return nil, fmt.Errorf("failed to open xz stream: %w", err)
		}
	}

	var buf bytes.Buffer
	if _, err := buf.ReadFrom(r); err != nil {
		return nil, fmt.Errorf("failed to read artifact: %w", err)
	}

	a, err := Unmarshal(buf.Bytes())
	if err != nil {
		return nil, fmt.Errorf("failed to decode artifact: %w", err)
	}
	return a, nil
}
