package storage

import (
	"encoding/json"
	"errors"
	"fmt"

	"sigevo/internal/model"
)

const (
	CurrentSchemaVersion = 1
	CurrentCodecVersion  = 1
)

var ErrVersionMismatch = errors.New("record version mismatch")

// Payload lists the values a store persists as JSON blobs.
type Payload interface {
	model.Genome | model.Population | model.RunSummary |
		[]model.LineageRecord | []float64 | []model.GenerationDiagnostics | []model.TopGenomeRecord
}

func Encode[T Payload](v T) ([]byte, error) {
	return json.Marshal(v)
}

// Decode unmarshals data and rejects any versioned record it carries whose
// schema or codec version differs from the current one.
func Decode[T Payload](data []byte) (T, error) {
	var v T
	if err := json.Unmarshal(data, &v); err != nil {
		var zero T
		return zero, fmt.Errorf("decode %T: %w", v, err)
	}
	if err := checkVersions(v); err != nil {
		var zero T
		return zero, err
	}
	return v, nil
}

func checkVersions(v any) error {
	switch r := v.(type) {
	case model.Genome:
		return checkVersion(r.VersionedRecord)
	case model.Population:
		return checkVersion(r.VersionedRecord)
	case model.RunSummary:
		return checkVersion(r.VersionedRecord)
	case []model.LineageRecord:
		for i, record := range r {
			if err := checkVersion(record.VersionedRecord); err != nil {
				return fmt.Errorf("lineage record %d: %w", i, err)
			}
		}
	}
	return nil
}

func checkVersion(v model.VersionedRecord) error {
	if v.SchemaVersion != CurrentSchemaVersion || v.CodecVersion != CurrentCodecVersion {
		return fmt.Errorf("%w: schema=%d codec=%d", ErrVersionMismatch, v.SchemaVersion, v.CodecVersion)
	}
	return nil
}
