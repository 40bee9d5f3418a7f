package schemarefresh

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"os"
	"time"

	"harmony-graphql/internal/modelfile"
	"harmony-graphql/internal/persistence"
)

// BuildFunc turns a parsed model file into an initialized persistence
// instance. Instances built by the same manager share their adapters.
type BuildFunc func(ctx context.Context, file *modelfile.File) (*persistence.Instance, error)

// source is one read of the model file.
type source struct {
	file        *modelfile.File
	fingerprint string
}

// readSource parses the model file and fingerprints its bytes.
func readSource(path string) (source, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return source{}, fmt.Errorf("failed to read model file: %w", err)
	}
	file, err := modelfile.Parse(data)
	if err != nil {
		return source{}, fmt.Errorf("%s: %w", path, err)
	}
	return source{file: file, fingerprint: fingerprint(data)}, nil
}

func fingerprint(data []byte) string {
	sum := sha256.Sum256(data)
	return hex.EncodeToString(sum[:])
}

func (m *Manager) buildSnapshot(ctx context.Context, src source) (*Snapshot, error) {
	instance, err := m.build(ctx, src.file)
	if err != nil {
		return nil, fmt.Errorf("failed to build schema: %w", err)
	}
	schema := instance.Schema()
	if schema == nil {
		return nil, fmt.Errorf("failed to build schema: %w", persistence.ErrNotInitialized)
	}
	return &Snapshot{
		Instance:    instance,
		Handler:     schema.Handler(m.handlerCfg),
		BuiltAt:     time.Now(),
		Fingerprint: src.fingerprint,
		Models:      len(instance.Models()),
	}, nil
}
