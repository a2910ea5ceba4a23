// Command colonia-ingest imports a vendor's delivery service area from
// gzip-compressed JSON exports of the national colonia catalog. Files are
// streamed concurrently, duplicate colonia ids across files are dropped, and
// the result replaces the vendor's service_colonias rows in one bulk load.
package main

import (
	"context"
	"flag"
	"log/slog"
	"os"
	"os/signal"
	"path/filepath"
	"sync"

	"github.com/bits-and-blooms/bloom/v3"
	"github.com/go-faster/errors"
	"github.com/go-faster/jx"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	pgzip "github.com/klauspost/pgzip"
	"golang.org/x/sync/errgroup"

	"github.com/tianguis/checkout/internal/repository"
)

const (
	bloomCapacity = 200_000
	bloomFPR      = 0.001
	progressEvery = 50_000
)

// colonia is one catalog entry. The id scheme is "<slug>-<zip>"; the zip
// segment after the last hyphen is what the service-area gate matches on.
type colonia struct {
	ID         string
	Name       string
	Delegacion string
}

// dedup tracks colonia ids already accepted across all files. The bloom
// filter short-circuits the common miss; the exact set resolves its false
// positives.
type dedup struct {
	mu     sync.Mutex
	filter *bloom.BloomFilter
	exact  map[string]struct{}
}

func newDedup() *dedup {
	return &dedup{
		filter: bloom.NewWithEstimates(bloomCapacity, bloomFPR),
		exact:  make(map[string]struct{}),
	}
}

// seen reports whether id was already accepted, recording it otherwise.
func (d *dedup) seen(id string) bool {
	d.mu.Lock()
	defer d.mu.Unlock()
	if d.filter.TestString(id) {
		if _, ok := d.exact[id]; ok {
			return true
		}
	}
	d.filter.AddString(id)
	d.exact[id] = struct{}{}
	return false
}

func main() {
	var (
		dataDir     string
		vendorID    string
		databaseURL string
	)

	flag.StringVar(&dataDir, "data-dir", "data", "directory containing *.json.gz colonia exports")
	flag.StringVar(&vendorID, "vendor-id", "", "vendor whose service area is being imported")
	flag.StringVar(&databaseURL, "database-url", "", "PostgreSQL connection URL (or DATABASE_URL env)")
	flag.Parse()

	if databaseURL == "" {
		databaseURL = os.Getenv("DATABASE_URL")
	}
	if databaseURL == "" {
		slog.Error("database URL is required: set --database-url or DATABASE_URL")
		os.Exit(1)
	}
	if vendorID == "" {
		slog.Error("vendor id is required: set --vendor-id")
		os.Exit(1)
	}

	ctx, cancel := signal.NotifyContext(context.Background(), os.Interrupt)
	defer cancel()

	if err := run(ctx, dataDir, vendorID, databaseURL); err != nil {
		slog.Error("colonia ingest failed", slog.String("error", err.Error()))
		os.Exit(1)
	}

	slog.Info("colonia ingest completed successfully")
}

func run(ctx context.Context, dataDir, vendorID, databaseURL string) error {
	files, err := filepath.Glob(filepath.Join(dataDir, "*.json.gz"))
	if err != nil {
		return errors.Wrap(err, "glob data dir")
	}
	if len(files) == 0 {
		return errors.Errorf("no *.json.gz files in %s", dataDir)
	}

	slog.Info("streaming colonia exports", slog.Int("files", len(files)))

	colonias, err := streamFiles(ctx, files)
	if err != nil {
		return errors.Wrap(err, "stream files")
	}

	slog.Info("colonias parsed", slog.Int("count", len(colonias)))

	if len(colonias) == 0 {
		slog.Info("nothing to load")
		return nil
	}

	slog.Info("connecting to database")

	pool, err := repository.NewPool(ctx, databaseURL)
	if err != nil {
		return errors.Wrap(err, "connect to database")
	}
	defer pool.Close()

	if err := replaceServiceArea(ctx, pool, vendorID, colonias); err != nil {
		return errors.Wrap(err, "replace service area")
	}

	return nil
}

// streamFiles decodes all files concurrently, deduplicating colonia ids
// across them.
func streamFiles(ctx context.Context, files []string) ([]colonia, error) {
	var (
		mu  sync.Mutex
		all []colonia
	)
	seen := newDedup()

	g, ctx := errgroup.WithContext(ctx)
	for _, f := range files {
		g.Go(func() error {
			found, err := streamFile(ctx, f, seen)
			if err != nil {
				return errors.Wrapf(err, "stream %s", f)
			}
			mu.Lock()
			all = append(all, found...)
			mu.Unlock()
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}
	return all, nil
}

// streamFile decodes one gzip-compressed JSON array of colonia objects.
func streamFile(ctx context.Context, path string, seen *dedup) ([]colonia, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, errors.Wrapf(err, "open %s", path)
	}
	defer func() { _ = f.Close() }()

	gz, err := pgzip.NewReader(f)
	if err != nil {
		return nil, errors.Wrapf(err, "create gzip reader for %s", path)
	}
	defer func() { _ = gz.Close() }()

	var (
		found []colonia
		count uint64
	)
	d := jx.Decode(gz, 1<<16)
	err = d.Arr(func(d *jx.Decoder) error {
		if err := ctx.Err(); err != nil {
			return err
		}

		var c colonia
		if err := d.ObjBytes(func(d *jx.Decoder, key []byte) error {
			var err error
			switch string(key) {
			case "id":
				c.ID, err = d.Str()
			case "name":
				c.Name, err = d.Str()
			case "delegacion":
				c.Delegacion, err = d.Str()
			default:
				err = d.Skip()
			}
			return err
		}); err != nil {
			return err
		}

		count++
		if count%progressEvery == 0 {
			slog.Info("progress", slog.String("file", path), slog.Uint64("entries", count))
		}

		if c.ID == "" || seen.seen(c.ID) {
			return nil
		}
		found = append(found, c)
		return nil
	})
	if err != nil {
		return nil, errors.Wrap(err, "decode JSON array")
	}

	slog.Info("file complete",
		slog.String("file", path),
		slog.Uint64("entries", count),
		slog.Int("accepted", len(found)),
	)
	return found, nil
}

// replaceServiceArea swaps the vendor's configured service area for the
// loaded catalog in a single transaction, bulk-copying the new rows.
func replaceServiceArea(ctx context.Context, pool *pgxpool.Pool, vendorID string, colonias []colonia) error {
	tx, err := pool.Begin(ctx)
	if err != nil {
		return errors.Wrap(err, "begin tx")
	}
	defer func() { _ = tx.Rollback(ctx) }()

	if _, err := tx.Exec(ctx, `DELETE FROM service_colonias WHERE vendor_id = $1`, vendorID); err != nil {
		return errors.Wrap(err, "clear previous service area")
	}

	rows := make([][]any, len(colonias))
	for i, c := range colonias {
		rows[i] = []any{c.ID, vendorID, c.Name, c.Delegacion}
	}

	n, err := tx.CopyFrom(ctx,
		pgx.Identifier{"service_colonias"},
		[]string{"id", "vendor_id", "name", "delegacion"},
		pgx.CopyFromRows(rows),
	)
	if err != nil {
		return errors.Wrap(err, "copy colonias")
	}

	if err := tx.Commit(ctx); err != nil {
		return errors.Wrap(err, "commit")
	}

	slog.Info("service area replaced", slog.String("vendor_id", vendorID), slog.Int64("rows", n))
	return nil
}
