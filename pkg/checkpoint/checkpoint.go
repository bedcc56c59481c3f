// Package checkpoint snapshots a run at a day boundary and stores the snapshot
// content-addressed, with an index from (run, day) to content hash.
package checkpoint

import (
	"bytes"
	"context"
	"fmt"
	"log/slog"

	"github.com/vmihailenco/msgpack"

	"github.com/Mindburn-Labs/contagion/pkg/disease"
	"github.com/Mindburn-Labs/contagion/pkg/events"
	"github.com/Mindburn-Labs/contagion/pkg/policy"
	"github.com/Mindburn-Labs/contagion/pkg/report"
)

// FormatVersion is bumped whenever Checkpoint changes incompatibly.
const FormatVersion = 1

// Checkpoint is the state after Day has fully completed.
type Checkpoint struct {
	Version        int             `msgpack:"version"`
	RunID          string          `msgpack:"run_id"`
	Day            int             `msgpack:"day"`
	Seed           uint64          `msgpack:"seed"`
	Algorithm      string          `msgpack:"algorithm"`
	ScenarioDigest string          `msgpack:"scenario_digest"`
	Persons        []disease.State `msgpack:"persons"`
	Policy         policy.State    `msgpack:"policy"`
	Report         *report.Report  `msgpack:"report"`
	Events         events.Head     `msgpack:"events"`
}

// Encode serialises cp with sorted map keys so equal states hash equally.
func Encode(cp *Checkpoint) ([]byte, error) {
	var buf bytes.Buffer
	enc := msgpack.NewEncoder(&buf).SortMapKeys(true)
	if err := enc.Encode(cp); err != nil {
		return nil, fmt.Errorf("encode checkpoint: %w", err)
	}
	return buf.Bytes(), nil
}

// Decode is the inverse of Encode.
func Decode(data []byte) (*Checkpoint, error) {
	var cp Checkpoint
	if err := msgpack.Unmarshal(data, &cp); err != nil {
		return nil, fmt.Errorf("decode checkpoint: %w", err)
	}
	if cp.Version != FormatVersion {
		return nil, fmt.Errorf("decode checkpoint: unsupported format version %d", cp.Version)
	}
	return &cp, nil
}

// Manager stores checkpoints and keeps the index current.
type Manager struct {
	blobs  BlobStore
	index  Index
	logger *slog.Logger
}

func NewManager(blobs BlobStore, index Index) *Manager {
	return &Manager{
		blobs:  blobs,
		index:  index,
		logger: slog.Default().With("component", "checkpoint"),
	}
}

// Save encodes, stores and indexes cp.
func (m *Manager) Save(ctx context.Context, cp *Checkpoint) (Entry, error) {
	cp.Version = FormatVersion
	data, err := Encode(cp)
	if err != nil {
		return Entry{}, err
	}
	hash, err := m.blobs.Put(ctx, data)
	if err != nil {
		return Entry{}, fmt.Errorf("store checkpoint day %d: %w", cp.Day, err)
	}
	e := Entry{RunID: cp.RunID, Day: cp.Day, Hash: hash, EventSeq: cp.Events.Seq, EventHash: cp.Events.Hash}
	if err := m.index.Record(ctx, e); err != nil {
		return Entry{}, fmt.Errorf("index checkpoint day %d: %w", cp.Day, err)
	}
	m.logger.InfoContext(ctx, "checkpoint saved", "run_id", cp.RunID, "day", cp.Day, "hash", hash, "bytes", len(data))
	return e, nil
}

// Load fetches the checkpoint of runID at day, or the latest when day is 0.
func (m *Manager) Load(ctx context.Context, runID string, day int) (*Checkpoint, error) {
	e, err := m.index.Lookup(ctx, runID, day)
	if err != nil {
		return nil, err
	}
	data, err := m.blobs.Get(ctx, e.Hash)
	if err != nil {
		return nil, err
	}
	if got := ContentHash(data); got != e.Hash {
		return nil, fmt.Errorf("checkpoint %s: content hash mismatch (got %s)", e.Hash, got)
	}
	cp, err := Decode(data)
	if err != nil {
		return nil, err
	}
	m.logger.InfoContext(ctx, "checkpoint loaded", "run_id", runID, "day", cp.Day, "hash", e.Hash)
	return cp, nil
}

// List returns the index entries of runID in day order.
func (m *Manager) List(ctx context.Context, runID string) ([]Entry, error) {
	return m.index.List(ctx, runID)
}
