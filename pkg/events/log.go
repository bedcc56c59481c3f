package events

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"log/slog"
	"sync"

	"github.com/gowebpki/jcs"
)

// Head identifies the tip of a log. It is stored in checkpoints so a restored
// run continues the same chain.
type Head struct {
	Seq  uint64 `json:"seq" msgpack:"seq"`
	Hash string `json:"hash" msgpack:"hash"`
}

// Log is an append-only, hash-chained event log. Events are buffered until
// Flush hands them to the sink.
//
// The chain covers sequence number, day, type and payload hash but not the run
// ID, so two runs with the same inputs end on the same hash.
type Log struct {
	mu      sync.Mutex
	runID   string
	head    Head
	pending []Event
	sink    Sink
	logger  *slog.Logger
}

// NewLog starts an empty log for runID. A nil sink discards flushed events.
func NewLog(runID string, sink Sink) *Log {
	return Resume(runID, Head{}, sink)
}

// Resume continues a log from head.
func Resume(runID string, head Head, sink Sink) *Log {
	if sink == nil {
		sink = Discard{}
	}
	return &Log{
		runID:  runID,
		head:   head,
		sink:   sink,
		logger: slog.Default().With("component", "events"),
	}
}

// RunID returns the run the log belongs to.
func (l *Log) RunID() string { return l.runID }

// Head returns the current tip, including unflushed events.
func (l *Log) Head() Head {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.head
}

// Hash returns the cumulative hash. It is the run's determinism digest.
func (l *Log) Hash() string {
	return l.Head().Hash
}

// Append canonicalises payload and links it into the chain.
func (l *Log) Append(day int, typ Type, payload any) (Event, error) {
	body, err := Canonical(payload)
	if err != nil {
		return Event{}, fmt.Errorf("events: canonicalize %s payload: %w", typ, err)
	}

	l.mu.Lock()
	defer l.mu.Unlock()

	ev := Event{
		RunID:       l.runID,
		Seq:         l.head.Seq + 1,
		Day:         day,
		Type:        typ,
		Payload:     body,
		PayloadHash: Digest(body),
	}
	if ev.Hash, err = chain(ev, l.head.Hash); err != nil {
		return Event{}, err
	}

	l.head = Head{Seq: ev.Seq, Hash: ev.Hash}
	l.pending = append(l.pending, ev)
	return ev, nil
}

// Flush writes buffered events to the sink in append order.
func (l *Log) Flush(ctx context.Context) error {
	l.mu.Lock()
	batch := l.pending
	l.pending = nil
	l.mu.Unlock()

	if len(batch) == 0 {
		return nil
	}
	if err := l.sink.Write(ctx, batch); err != nil {
		return fmt.Errorf("events: flush %d events: %w", len(batch), err)
	}
	l.logger.DebugContext(ctx, "flushed events", "run_id", l.runID, "count", len(batch), "head", batch[len(batch)-1].Seq)
	return nil
}

// Canonical returns the RFC 8785 encoding of v.
func Canonical(v any) ([]byte, error) {
	raw, err := json.Marshal(v)
	if err != nil {
		return nil, err
	}
	return jcs.Transform(raw)
}

// Digest returns the prefixed SHA-256 of b.
func Digest(b []byte) string {
	sum := sha256.Sum256(b)
	return "sha256:" + hex.EncodeToString(sum[:])
}

// Verify recomputes the chain over events starting from head and returns the
// resulting tip.
func Verify(head Head, evs []Event) (Head, error) {
	for _, ev := range evs {
		if ev.Seq != head.Seq+1 {
			return head, fmt.Errorf("events: sequence gap at %d (expected %d)", ev.Seq, head.Seq+1)
		}
		if got := Digest(ev.Payload); got != ev.PayloadHash {
			return head, fmt.Errorf("events: payload hash mismatch at %d", ev.Seq)
		}
		h, err := chain(ev, head.Hash)
		if err != nil {
			return head, err
		}
		if h != ev.Hash {
			return head, fmt.Errorf("events: chain broken at %d", ev.Seq)
		}
		head = Head{Seq: ev.Seq, Hash: ev.Hash}
	}
	return head, nil
}

func chain(ev Event, previous string) (string, error) {
	link, err := Canonical(map[string]any{
		"seq":           ev.Seq,
		"day":           ev.Day,
		"type":          ev.Type,
		"payload_hash":  ev.PayloadHash,
		"previous_hash": previous,
	})
	if err != nil {
		return "", fmt.Errorf("events: canonicalize link: %w", err)
	}
	return Digest(link), nil
}
