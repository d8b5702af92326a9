package main

import (
	"bufio"
	"context"
	"os"
	"sync/atomic"

	"github.com/bits-and-blooms/bloom/v3"
	"github.com/go-faster/errors"
	"github.com/google/uuid"
	"github.com/klauspost/pgzip"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/xenking/storefront-pricing/internal/domain/promo"
)

const (
	minCodeLen    = 4
	maxCodeLen    = 32
	progressEvery = 1_000_000
)

// issuer stores promotions, skipping codes that already exist.
type issuer interface {
	InsertBatch(ctx context.Context, codes []promo.Code) (int64, error)
}

type options struct {
	batchSize int
	expected  uint
	fpRate    float64
}

type stats struct {
	read       int64
	invalid    int64
	duplicates int64
	inserted   int64
}

// ingest streams every file concurrently and issues each distinct valid code
// once. Repeats are dropped by a bloom filter, so at the configured false
// positive rate a few distinct codes may be reported as duplicates; codes
// already in the database are skipped on insert.
func ingest(ctx context.Context, lg *zap.Logger, files []string, tmpl promo.Code, sink issuer, opts options) (stats, error) {
	if opts.batchSize <= 0 {
		opts.batchSize = 5000
	}
	var (
		st    stats
		read  atomic.Int64
		bad   atomic.Int64
		codes = make(chan string, opts.batchSize)
	)

	g, gctx := errgroup.WithContext(ctx)
	readers, rctx := errgroup.WithContext(gctx)
	for _, path := range files {
		readers.Go(func() error {
			return streamGzFile(rctx, path, func(line string) error {
				if n := read.Add(1); n%progressEvery == 0 {
					lg.Info("Ingest progress", zap.Int64("read", n))
				}
				code := promo.Normalize(line)
				if !validCode(code) {
					bad.Add(1)
					return nil
				}
				select {
				case codes <- code:
					return nil
				case <-rctx.Done():
					return rctx.Err()
				}
			})
		})
	}
	g.Go(func() error {
		defer close(codes)
		return readers.Wait()
	})

	g.Go(func() error {
		seen := bloom.NewWithEstimates(opts.expected, opts.fpRate)
		batch := make([]promo.Code, 0, opts.batchSize)
		flush := func() error {
			if len(batch) == 0 {
				return nil
			}
			n, err := sink.InsertBatch(gctx, batch)
			st.inserted += n
			st.duplicates += int64(len(batch)) - n
			batch = batch[:0]
			return errors.Wrap(err, "insert batch")
		}

		for code := range codes {
			if seen.TestAndAddString(code) {
				st.duplicates++
				continue
			}
			p := tmpl
			p.ID = uuid.NewString()
			p.Code = code
			if p.Title == "" {
				p.Title = code
			}
			batch = append(batch, p)
			if len(batch) == opts.batchSize {
				if err := flush(); err != nil {
					return err
				}
			}
		}
		if err := gctx.Err(); err != nil {
			return err
		}
		return flush()
	})

	err := g.Wait()
	st.read = read.Load()
	st.invalid = bad.Load()
	return st, err
}

func validCode(code string) bool {
	if len(code) < minCodeLen || len(code) > maxCodeLen {
		return false
	}
	for i := range len(code) {
		c := code[i]
		if (c < 'A' || c > 'Z') && (c < '0' || c > '9') && c != '-' && c != '_' {
			return false
		}
	}
	return true
}

// streamGzFile opens a gzip-compressed file and calls fn for each line.
func streamGzFile(ctx context.Context, path string, fn func(line string) error) error {
	f, err := os.Open(path)
	if err != nil {
		return errors.Wrapf(err, "open %s", path)
	}
	defer func() { _ = f.Close() }()

	gz, err := pgzip.NewReader(f)
	if err != nil {
		return errors.Wrapf(err, "create gzip reader for %s", path)
	}
	defer func() { _ = gz.Close() }()

	scanner := bufio.NewScanner(gz)
	for scanner.Scan() {
		if err := ctx.Err(); err != nil {
			return err
		}
		if err := fn(scanner.Text()); err != nil {
			return err
		}
	}
	if err := scanner.Err(); err != nil {
		return errors.Wrapf(err, "scan %s", path)
	}
	return nil
}
