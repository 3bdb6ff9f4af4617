package service

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"path"
	"strings"
	"time"

	"github.com/mirrorx/vault/internal/models"
	"github.com/mirrorx/vault/internal/storage"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"
)

const snapshotContentType = "application/json"

// RecordReader reads records of one kind.
type RecordReader[T any] interface {
	List(ctx context.Context, vaultID string) ([]T, error)
	Get(ctx context.Context, vaultID, id string) (T, error)
}

// VaultReader loads a vault by id.
type VaultReader interface {
	Get(ctx context.Context, id string) (*models.Vault, error)
}

// ExportSources are the readers the export service pulls records from.
type ExportSources struct {
	Vaults     VaultReader
	Operations RecordReader[*models.Operation]
	Personas   RecordReader[*models.Persona]
	Pipelines  RecordReader[*models.Pipeline]
	Resources  RecordReader[*models.Resource]
}

// Export is a serialized record ready for download.
type Export struct {
	Filename string
	Data     []byte
}

// SnapshotInfo describes a stored vault snapshot.
type SnapshotInfo struct {
	Name      string    `json:"name"`
	Key       string    `json:"key"`
	Size      int64     `json:"size"`
	CreatedAt time.Time `json:"createdAt"`
}

// ExportService serializes records and keeps vault snapshots in object storage.
type ExportService struct {
	src   ExportSources
	files storage.FileStorage
	log   *zap.Logger
	now   func() time.Time
}

// NewExportService creates an ExportService. files may be nil, in which case
// snapshot calls fail with ErrStorageUnavailable.
func NewExportService(src ExportSources, files storage.FileStorage, log *zap.Logger) *ExportService {
	return &ExportService{src: src, files: files, log: log, now: time.Now}
}

// ExportRecord serializes one record as indented JSON named <kind>-<id>.json.
func (s *ExportService) ExportRecord(ctx context.Context, vaultID string, kind models.EntityKind, id string) (*Export, error) {
	var (
		rec any
		err error
	)
	switch kind {
	case models.KindOperation:
		rec, err = s.src.Operations.Get(ctx, vaultID, id)
	case models.KindPersona:
		rec, err = s.src.Personas.Get(ctx, vaultID, id)
	case models.KindPipeline:
		rec, err = s.src.Pipelines.Get(ctx, vaultID, id)
	case models.KindResource:
		rec, err = s.src.Resources.Get(ctx, vaultID, id)
	default:
		return nil, fmt.Errorf("%w: unknown entity kind %q", models.ErrInvalidInput, kind)
	}
	if err != nil {
		return nil, err
	}

	data, err := json.MarshalIndent(rec, "", "  ")
	if err != nil {
		return nil, fmt.Errorf("encode %s %s: %w", kind, id, err)
	}
	return &Export{Filename: fmt.Sprintf("%s-%s.json", kind, id), Data: data}, nil
}

// Contents loads the vault and all of its records concurrently.
func (s *ExportService) Contents(ctx context.Context, vaultID string) (*models.VaultContents, error) {
	out := &models.VaultContents{ExportedAt: s.now().UTC()}
	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() (err error) {
		out.Vault, err = s.src.Vaults.Get(gctx, vaultID)
		return err
	})
	g.Go(func() (err error) {
		out.Operations, err = s.src.Operations.List(gctx, vaultID)
		return err
	})
	g.Go(func() (err error) {
		out.Personas, err = s.src.Personas.List(gctx, vaultID)
		return err
	})
	g.Go(func() (err error) {
		out.Pipelines, err = s.src.Pipelines.List(gctx, vaultID)
		return err
	})
	g.Go(func() (err error) {
		out.Resources, err = s.src.Resources.List(gctx, vaultID)
		return err
	})
	if err := g.Wait(); err != nil {
		return nil, fmt.Errorf("load vault %s: %w", vaultID, err)
	}
	return out, nil
}

// Snapshot uploads the vault's full contents to
// vaults/<vaultID>/snapshots/<timestamp>.json.
func (s *ExportService) Snapshot(ctx context.Context, vaultID string) (*SnapshotInfo, error) {
	if s.files == nil {
		return nil, models.ErrStorageUnavailable
	}
	contents, err := s.Contents(ctx, vaultID)
	if err != nil {
		return nil, err
	}
	data, err := json.Marshal(contents)
	if err != nil {
		return nil, fmt.Errorf("encode snapshot: %w", err)
	}

	name := contents.ExportedAt.Format("20060102T150405.000000000Z") + ".json"
	key := snapshotKey(vaultID, name)
	if err := s.files.UploadFile(ctx, key, bytes.NewReader(data), int64(len(data)), snapshotContentType); err != nil {
		return nil, err
	}
	s.log.Info("vault snapshot stored", zap.String("vault_id", vaultID), zap.String("key", key), zap.Int("bytes", len(data)))
	return &SnapshotInfo{Name: name, Key: key, Size: int64(len(data)), CreatedAt: contents.ExportedAt}, nil
}

// ListSnapshots returns the vault's stored snapshots, newest first.
func (s *ExportService) ListSnapshots(ctx context.Context, vaultID string) ([]SnapshotInfo, error) {
	if s.files == nil {
		return nil, models.ErrStorageUnavailable
	}
	objs, err := s.files.List(ctx, snapshotKey(vaultID, ""))
	if err != nil {
		return nil, err
	}
	out := make([]SnapshotInfo, 0, len(objs))
	for _, o := range objs {
		out = append(out, SnapshotInfo{Name: path.Base(o.Key), Key: o.Key, Size: o.Size, CreatedAt: o.LastModified})
	}
	return out, nil
}

// DownloadSnapshot opens a stored snapshot. The caller closes the reader.
func (s *ExportService) DownloadSnapshot(ctx context.Context, vaultID, name string) (io.ReadCloser, error) {
	if s.files == nil {
		return nil, models.ErrStorageUnavailable
	}
	if name == "" || strings.ContainsAny(name, `/\`) || strings.Contains(name, "..") {
		return nil, fmt.Errorf("%w: invalid snapshot name", models.ErrInvalidInput)
	}
	rc, err := s.files.DownloadFile(ctx, snapshotKey(vaultID, name))
	if errors.Is(err, storage.ErrObjectNotFound) {
		return nil, fmt.Errorf("snapshot %s: %w", name, models.ErrNotFound)
	}
	return rc, err
}

func snapshotKey(vaultID, name string) string {
	return "vaults/" + vaultID + "/snapshots/" + name
}
