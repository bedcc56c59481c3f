package main

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"path/filepath"

	"github.com/Mindburn-Labs/contagion/pkg/checkpoint"
	"github.com/Mindburn-Labs/contagion/pkg/config"
	"github.com/Mindburn-Labs/contagion/pkg/events"
	"github.com/Mindburn-Labs/contagion/pkg/observability"
	"github.com/Mindburn-Labs/contagion/pkg/scenario"
	"github.com/Mindburn-Labs/contagion/pkg/sim"
)

// backends are the process-level collaborators of a run.
type backends struct {
	sink        events.Sink
	checkpoints *checkpoint.Manager
	metrics     *observability.Provider
	closers     []func() error
}

// openBackends wires the event sink, checkpoint storage and metrics from cfg.
// eventsDSN overrides cfg.EventsDSN when set.
func openBackends(ctx context.Context, cfg *config.Config, eventsDSN string) (*backends, error) {
	b := &backends{}
	if eventsDSN == "" {
		eventsDSN = cfg.EventsDSN
	}
	sink, err := events.Open(eventsDSN)
	if err != nil {
		return nil, failed(fmt.Errorf("open event sink: %w", err))
	}
	b.sink = sink
	b.closers = append(b.closers, sink.Close)

	blobs, err := checkpoint.NewBlobStore(ctx, checkpoint.StorageConfig{
		Type:       checkpoint.StorageType(cfg.ArtifactStorageType),
		DataDir:    cfg.DataDir,
		S3Bucket:   cfg.S3Bucket,
		S3Region:   cfg.S3Region,
		S3Endpoint: cfg.S3Endpoint,
		S3Prefix:   cfg.S3Prefix,
		GCSBucket:  cfg.GCSBucket,
		GCSPrefix:  cfg.GCSPrefix,
	})
	if err != nil {
		b.close(ctx)
		return nil, failed(fmt.Errorf("open checkpoint storage: %w", err))
	}

	index, err := b.openIndex(ctx, cfg)
	if err != nil {
		b.close(ctx)
		return nil, err
	}
	b.checkpoints = checkpoint.NewManager(blobs, index)

	metrics, err := observability.New(ctx, &observability.Config{
		ServiceName:    "contagion",
		ServiceVersion: version,
		OTLPEndpoint:   cfg.OTelEndpoint,
		ExportInterval: observability.DefaultConfig().ExportInterval,
		Enabled:        cfg.OTelEnabled,
		Insecure:       true,
	})
	if err != nil {
		b.close(ctx)
		return nil, failed(err)
	}
	b.metrics = metrics
	b.closers = append(b.closers, func() error { return metrics.Shutdown(context.WithoutCancel(ctx)) })
	return b, nil
}

func (b *backends) openIndex(ctx context.Context, cfg *config.Config) (checkpoint.Index, error) {
	switch cfg.CheckpointIndex {
	case "", "file":
		idx, err := checkpoint.NewFileIndex(filepath.Join(cfg.DataDir, "index"))
		if err != nil {
			return nil, failed(fmt.Errorf("open checkpoint index: %w", err))
		}
		return idx, nil
	case "memory":
		return checkpoint.NewMemoryIndex(), nil
	case "redis":
		idx := checkpoint.NewRedisIndex(cfg.RedisAddr, cfg.RedisPassword, cfg.RedisDB)
		if err := idx.Ping(ctx); err != nil {
			_ = idx.Close()
			return nil, failed(fmt.Errorf("connect redis checkpoint index: %w", err))
		}
		b.closers = append(b.closers, idx.Close)
		return idx, nil
	default:
		return nil, fmt.Errorf("unknown CHECKPOINT_INDEX %q", cfg.CheckpointIndex)
	}
}

func (b *backends) close(ctx context.Context) {
	for i := len(b.closers) - 1; i >= 0; i-- {
		if err := b.closers[i](); err != nil {
			slog.Default().WarnContext(ctx, "close failed", "error", err)
		}
	}
	b.closers = nil
}

func (b *backends) options(runID string, workers int) sim.Options {
	return sim.Options{
		RunID:       runID,
		Workers:     workers,
		Sink:        b.sink,
		Checkpoints: b.checkpoints,
		Metrics:     b.metrics,
	}
}

// loadScenario maps every load error to a configuration error.
func loadScenario(path string) (*scenario.Scenario, error) {
	if path == "" {
		return nil, errors.New("--scenario is required")
	}
	return scenario.Load(path)
}

// workersFor picks the flag, then the scenario, then WORKERS.
func workersFor(flag int, s *scenario.Scenario, cfg *config.Config) int {
	switch {
	case flag > 0:
		return flag
	case s.Workers > 0:
		return s.Workers
	default:
		return cfg.Workers
	}
}

func writeResult(w io.Writer, out string, res sim.Result) error {
	data, err := json.MarshalIndent(res, "", "  ")
	if err != nil {
		return failed(err)
	}
	data = append(data, '\n')
	if out != "" {
		if err := os.WriteFile(out, data, 0o644); err != nil {
			return failed(fmt.Errorf("write %s: %w", out, err))
		}
	}
	_, err = w.Write(data)
	return err
}
