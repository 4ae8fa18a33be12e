package archive

import (
	"archive/tar"
	"bytes"
	"compress/gzip"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"sort"
	"strings"
	"time"

	"github.com/rs/zerolog"

	"github.com/aristath/sentinel/internal/backtest"
	"github.com/aristath/sentinel/internal/optimize"
)

// minArchivesToKeep bounds RotateOld: it never deletes below this count,
// regardless of age, matching RotateOldBackups's minBackupsToKeep.
const minArchivesToKeep = 3

// objectStore is the subset of Client's behavior Archiver depends on, kept
// as an interface so tests can substitute an in-memory fake instead of
// talking to real object storage.
type objectStore interface {
	Upload(ctx context.Context, key string, body io.Reader, size int64) error
	List(ctx context.Context, prefix string) ([]ObjectSummary, error)
	Delete(ctx context.Context, key string) error
}

// Archiver packages backtest and optimization results into a tar.gz
// artifact and uploads it via an objectStore (normally a *Client),
// mirroring R2BackupService's archive-then-upload shape but for individual
// run results instead of whole-database snapshots.
type Archiver struct {
	client objectStore
	log    zerolog.Logger
}

// NewArchiver builds an Archiver uploading through client.
func NewArchiver(client objectStore, log zerolog.Logger) *Archiver {
	return &Archiver{client: client, log: log.With().Str("component", "archive").Logger()}
}

// ArchiveBacktest packages a completed backtest's metrics, trades, and
// equity curve as JSON files inside a tar.gz and uploads it under
// "backtests/<runID>/".
func (a *Archiver) ArchiveBacktest(ctx context.Context, runID string, result backtest.Result) error {
	files := map[string]interface{}{
		"metrics.json":      result.Metrics,
		"trades.json":       result.Trades,
		"equity_curve.json": result.EquityCurve,
	}
	return a.archiveAndUpload(ctx, "backtests", runID, files)
}

// ArchiveOptimization packages an optimization run's ranked sample results
// as JSON inside a tar.gz and uploads it under "optimizations/<runID>/".
func (a *Archiver) ArchiveOptimization(ctx context.Context, runID string, results []optimize.SampleResult) error {
	files := map[string]interface{}{
		"samples.json": results,
	}
	return a.archiveAndUpload(ctx, "optimizations", runID, files)
}

func (a *Archiver) archiveAndUpload(ctx context.Context, kind, runID string, files map[string]interface{}) error {
	archiveBytes, err := buildArchive(files)
	if err != nil {
		return fmt.Errorf("archive: build %s/%s: %w", kind, runID, err)
	}

	key := fmt.Sprintf("%s/%s/%s.tar.gz", kind, runID, time.Now().UTC().Format("20060102-150405"))
	if err := a.client.Upload(ctx, key, bytes.NewReader(archiveBytes), int64(len(archiveBytes))); err != nil {
		return err
	}

	a.log.Info().Str("key", key).Int("size_bytes", len(archiveBytes)).Msg("archived run artifact")
	return nil
}

// buildArchive JSON-marshals each entry in files and tars+gzips them into
// a single in-memory archive, following createArchive/addFileToArchive's
// tar.Writer/gzip.Writer pattern but over in-memory JSON blobs instead of
// on-disk database files (there's no staging directory to clean up).
func buildArchive(files map[string]interface{}) ([]byte, error) {
	var buf bytes.Buffer
	gzWriter := gzip.NewWriter(&buf)
	tarWriter := tar.NewWriter(gzWriter)

	names := make([]string, 0, len(files))
	for name := range files {
		names = append(names, name)
	}
	sort.Strings(names)

	for _, name := range names {
		data, err := json.MarshalIndent(files[name], "", "  ")
		if err != nil {
			return nil, fmt.Errorf("marshal %s: %w", name, err)
		}
		header := &tar.Header{Name: name, Size: int64(len(data)), Mode: 0644, ModTime: time.Now()}
		if err := tarWriter.WriteHeader(header); err != nil {
			return nil, fmt.Errorf("write header %s: %w", name, err)
		}
		if _, err := tarWriter.Write(data); err != nil {
			return nil, fmt.Errorf("write %s: %w", name, err)
		}
	}

	if err := tarWriter.Close(); err != nil {
		return nil, fmt.Errorf("close tar: %w", err)
	}
	if err := gzWriter.Close(); err != nil {
		return nil, fmt.Errorf("close gzip: %w", err)
	}
	return buf.Bytes(), nil
}

// archivedRun describes one uploaded archive, parsed back from its key.
type archivedRun struct {
	Key       string
	RunID     string
	Timestamp time.Time
	SizeBytes int64
}

// RotateOld deletes archives under kind/ older than retentionDays, always
// keeping at least minArchivesToKeep regardless of age. retentionDays == 0
// means keep everything. Mirrors RotateOldBackups.
func (a *Archiver) RotateOld(ctx context.Context, kind string, retentionDays int) error {
	objects, err := a.client.List(ctx, kind+"/")
	if err != nil {
		return fmt.Errorf("archive: list %s for rotation: %w", kind, err)
	}

	var runs []archivedRun
	for _, obj := range objects {
		run, ok := parseArchiveKey(obj.Key)
		if !ok {
			continue
		}
		run.SizeBytes = obj.Size
		runs = append(runs, run)
	}

	sort.Slice(runs, func(i, j int) bool { return runs[i].Timestamp.After(runs[j].Timestamp) })

	if len(runs) <= minArchivesToKeep {
		a.log.Info().Int("count", len(runs)).Str("kind", kind).Msg("too few archives to rotate")
		return nil
	}

	var cutoff time.Time
	if retentionDays > 0 {
		cutoff = time.Now().AddDate(0, 0, -retentionDays)
	}

	deleted := 0
	for i, run := range runs {
		if i < minArchivesToKeep {
			continue
		}
		if retentionDays == 0 {
			continue
		}
		if run.Timestamp.Before(cutoff) {
			if err := a.client.Delete(ctx, run.Key); err != nil {
				a.log.Error().Err(err).Str("key", run.Key).Msg("failed to delete old archive")
				continue
			}
			deleted++
		}
	}

	a.log.Info().Int("deleted", deleted).Int("remaining", len(runs)-deleted).Str("kind", kind).Msg("archive rotation completed")
	return nil
}

// parseArchiveKey extracts the run ID and upload timestamp from a key of
// the form "<kind>/<runID>/<timestamp>.tar.gz".
func parseArchiveKey(key string) (archivedRun, bool) {
	parts := strings.Split(key, "/")
	if len(parts) != 3 {
		return archivedRun{}, false
	}
	name := strings.TrimSuffix(parts[2], ".tar.gz")
	ts, err := time.Parse("20060102-150405", name)
	if err != nil {
		return archivedRun{}, false
	}
	return archivedRun{Key: key, RunID: parts[1], Timestamp: ts}, true
}
