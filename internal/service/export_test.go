package service

import (
	"bytes"
	"context"
	"encoding/json"
	"io"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/mirrorx/vault/internal/models"
	"github.com/mirrorx/vault/internal/storage"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

type memFiles struct {
	mu    sync.Mutex
	files map[string][]byte
}

func (m *memFiles) UploadFile(_ context.Context, key string, r io.Reader, size int64, contentType string) error {
	data, err := io.ReadAll(r)
	if err != nil {
		return err
	}
	if int64(len(data)) != size || contentType != snapshotContentType {
		return errBoom
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	m.files[key] = data
	return nil
}

func (m *memFiles) DownloadFile(_ context.Context, key string) (io.ReadCloser, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	data, ok := m.files[key]
	if !ok {
		return nil, storage.ErrObjectNotFound
	}
	return io.NopCloser(bytes.NewReader(data)), nil
}

func (m *memFiles) List(_ context.Context, prefix string) ([]storage.ObjectInfo, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var out []storage.ObjectInfo
	for k, v := range m.files {
		if strings.HasPrefix(k, prefix) {
			out = append(out, storage.ObjectInfo{Key: k, Size: int64(len(v))})
		}
	}
	return out, nil
}

type stubReader[T any] struct {
	items []T
	err   error
}

func (s stubReader[T]) List(context.Context, string) ([]T, error) { return s.items, s.err }
func (s stubReader[T]) Get(_ context.Context, _, _ string) (T, error) {
	var zero T
	if s.err != nil || len(s.items) == 0 {
		return zero, models.ErrNotFound
	}
	return s.items[0], nil
}

func exportFixture(files storage.FileStorage) *ExportService {
	src := ExportSources{
		Vaults: memVaultRepo(&models.Vault{ID: vaultID, UserID: "u1", Name: "Main"}),
		Operations: stubReader[*models.Operation]{items: []*models.Operation{
			{ID: "op1", Name: "Night watch", LinkedPersonas: []string{"p1"}},
		}},
		Personas:  stubReader[*models.Persona]{items: []*models.Persona{{ID: "p1", Name: "Ghost"}}},
		Pipelines: stubReader[*models.Pipeline]{},
		Resources: stubReader[*models.Resource]{},
	}
	s := NewExportService(src, files, zap.NewNop())
	s.now = func() time.Time { return time.Date(2026, 3, 4, 5, 6, 7, 0, time.UTC) }
	return s
}

func TestExportRecord(t *testing.T) {
	s := exportFixture(nil)

	exp, err := s.ExportRecord(context.Background(), vaultID, models.KindOperation, "op1")
	require.NoError(t, err)
	assert.Equal(t, "operation-op1.json", exp.Filename)

	var got models.Operation
	require.NoError(t, json.Unmarshal(exp.Data, &got))
	assert.Equal(t, "Night watch", got.Name)
	assert.Contains(t, string(exp.Data), "\n  \"linkedPersonas\"")

	_, err = s.ExportRecord(context.Background(), vaultID, models.KindPipeline, "nope")
	assert.ErrorIs(t, err, models.ErrNotFound)

	_, err = s.ExportRecord(context.Background(), vaultID, "widget", "w1")
	assert.ErrorIs(t, err, models.ErrInvalidInput)
}

func TestSnapshotRoundTrip(t *testing.T) {
	files := &memFiles{files: map[string][]byte{}}
	s := exportFixture(files)
	ctx := context.Background()

	info, err := s.Snapshot(ctx, vaultID)
	require.NoError(t, err)
	assert.Equal(t, "vaults/v1/snapshots/20260304T050607.000000000Z.json", info.Key)
	assert.Equal(t, "20260304T050607.000000000Z.json", info.Name)

	list, err := s.ListSnapshots(ctx, vaultID)
	require.NoError(t, err)
	require.Len(t, list, 1)
	assert.Equal(t, info.Name, list[0].Name)

	rc, err := s.DownloadSnapshot(ctx, vaultID, info.Name)
	require.NoError(t, err)
	defer rc.Close()

	var contents models.VaultContents
	require.NoError(t, json.NewDecoder(rc).Decode(&contents))
	assert.Equal(t, "Main", contents.Vault.Name)
	require.Len(t, contents.Operations, 1)
	assert.Equal(t, []string{"p1"}, contents.Operations[0].LinkedPersonas)
	assert.Len(t, contents.Personas, 1)

	_, err = s.DownloadSnapshot(ctx, vaultID, "missing.json")
	assert.ErrorIs(t, err, models.ErrNotFound)

	_, err = s.DownloadSnapshot(ctx, vaultID, "../v2/snapshots/x.json")
	assert.ErrorIs(t, err, models.ErrInvalidInput)
}

func TestSnapshot_FailsWhenLoadFails(t *testing.T) {
	files := &memFiles{files: map[string][]byte{}}
	s := exportFixture(files)
	s.src.Resources = stubReader[*models.Resource]{err: errBoom}

	_, err := s.Snapshot(context.Background(), vaultID)
	assert.ErrorIs(t, err, errBoom)
	assert.Empty(t, files.files)
}

func TestSnapshot_NoStorage(t *testing.T) {
	s := exportFixture(nil)
	_, err := s.Snapshot(context.Background(), vaultID)
	assert.ErrorIs(t, err, models.ErrStorageUnavailable)
	_, err = s.ListSnapshots(context.Background(), vaultID)
	assert.ErrorIs(t, err, models.ErrStorageUnavailable)
	_, err = s.DownloadSnapshot(context.Background(), vaultID, "x.json")
	assert.ErrorIs(t, err, models.ErrStorageUnavailable)
}
