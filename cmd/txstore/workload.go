package main

import (
	"context"
	"fmt"
	"sync/atomic"

	"golang.org/x/sync/errgroup"

	"github.com/pharosnet/txstore"
	"github.com/pharosnet/txstore/internal/config"
)

const countersTable txstore.TableID = "counters"

type counter struct {
	ID    int64 `msgpack:"id"`
	Value int64 `msgpack:"value"`
}

var counterSchema = txstore.NewSchema[counter]([]string{"id"}, func(c counter) txstore.Key {
	return txstore.Key{c.ID}
})

type workloadReport struct {
	Committed int
	Failed    int
	// Total is the sum of all counters after the run.
	Total int64
}

// runWorkload has every worker increment random counters, each increment
// in its own transaction. Conflicting increments are retried by Store.Run;
// the ones that exhaust their retries are counted as failed.
func runWorkload(ctx context.Context, store *txstore.Store, cfg config.WorkloadConfig, options txstore.RunOptions) (report workloadReport, err error) {
	if err = store.CreateTable(countersTable, counterSchema); err != nil {
		return
	}
	err = store.Run(ctx, func(tx *txstore.Tx) error {
		table := txstore.Open[counter](tx, countersTable)
		for i := 0; i < cfg.Counters; i++ {
			if saveErr := table.Save(counter{ID: int64(i)}); saveErr != nil {
				return saveErr
			}
		}
		return nil
	}, options)
	if err != nil {
		return
	}

	var committed, failed int64
	g, gctx := errgroup.WithContext(ctx)
	for w := 0; w < cfg.Workers; w++ {
		worker := w
		g.Go(func() error {
			for i := 0; i < cfg.Increments; i++ {
				id := int64((worker + i) % cfg.Counters)
				runErr := store.Run(gctx, func(tx *txstore.Tx) error {
					return increment(tx, id)
				}, options)
				switch {
				case runErr == nil:
					atomic.AddInt64(&committed, 1)
				case txstore.IsRetryable(runErr):
					atomic.AddInt64(&failed, 1)
				default:
					return fmt.Errorf("worker %d failed, %w", worker, runErr)
				}
			}
			return nil
		})
	}
	if err = g.Wait(); err != nil {
		return
	}
	report.Committed = int(committed)
	report.Failed = int(failed)
	report.Total, err = total(store)
	return
}

func increment(tx *txstore.Tx, id int64) error {
	table := txstore.Open[counter](tx, countersTable)
	c, found, err := table.Find(txstore.K(id))
	if err != nil {
		return err
	}
	if !found {
		c = counter{ID: id}
	}
	c.Value++
	return table.Save(c)
}

func total(store *txstore.Store) (sum int64, err error) {
	err = store.Current().Scan(countersTable, txstore.FullRange(), func(row txstore.Row) bool {
		sum += row.Value.(counter).Value
		return true
	})
	return
}
