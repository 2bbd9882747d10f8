package course

import (
	"context"
	"fmt"
	"io"
	"log"
	"os"
	"path/filepath"
	"sort"
	"time"

	"github.com/fairwaylabs/caddie/internal/model"
	"github.com/fairwaylabs/caddie/internal/store"
)

// Importer writes course definitions into the catalog and queues them
// for the remote.
type Importer struct {
	db     *store.DB
	logger *log.Logger
}

// NewImporter creates an importer. A nil logger discards output.
func NewImporter(db *store.DB, logger *log.Logger) *Importer {
	if logger == nil {
		logger = log.New(io.Discard, "", 0)
	}
	return &Importer{db: db, logger: logger}
}

// ImportFile loads one course file and upserts its rows. Each upserted
// row is queued for the remote with an empty trip id; catalog rows are
// trip-independent and survive trip purges.
func (imp *Importer) ImportFile(ctx context.Context, path string) (*model.Course, error) {
	def, err := Load(path)
	if err != nil {
		return nil, err
	}

	now := time.Now().UTC()
	c := def.Course(now)
	if err := imp.db.UpsertCourse(ctx, c); err != nil {
		return nil, fmt.Errorf("failed to import course %s: %w", def.Name, err)
	}
	if err := imp.db.EnqueueSync(ctx, model.NewSyncQueueItem(model.EntityCourse, c.ID, model.OpUpdate, "")); err != nil {
		return nil, fmt.Errorf("failed to queue course %s: %w", def.Name, err)
	}

	for _, tee := range def.TeeSets(now) {
		if err := imp.db.UpsertTeeSet(ctx, tee); err != nil {
			return nil, fmt.Errorf("failed to import tee %s: %w", tee.Name, err)
		}
		if err := imp.db.EnqueueSync(ctx, model.NewSyncQueueItem(model.EntityTeeSet, tee.ID, model.OpUpdate, "")); err != nil {
			return nil, fmt.Errorf("failed to queue tee %s: %w", tee.Name, err)
		}
	}

	imp.logger.Printf("Imported course %s (%d tees) from %s", def.Name, len(def.Tees), filepath.Base(path))
	return c, nil
}

// ImportDir imports every .toml file in a directory. Invalid files are
// logged and skipped; the count of imported courses is returned. The
// returned error covers only directory access.
func (imp *Importer) ImportDir(ctx context.Context, dir string) (int, error) {
	entries, err := os.ReadDir(dir)
	if err != nil {
		return 0, fmt.Errorf("failed to read catalog directory: %w", err)
	}

	var names []string
	for _, entry := range entries {
		if entry.IsDir() || filepath.Ext(entry.Name()) != ".toml" {
			continue
		}
		names = append(names, entry.Name())
	}
	sort.Strings(names)

	imported := 0
	for _, name := range names {
		if _, err := imp.ImportFile(ctx, filepath.Join(dir, name)); err != nil {
			imp.logger.Printf("Warning: skipping %s: %v", name, err)
			continue
		}
		imported++
	}
	return imported, nil
}
