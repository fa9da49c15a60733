package main

import (
	"context"
	"fmt"
	"os"

	"gopkg.in/yaml.v3"

	"github.com/pharosnet/txstore"
)

// seedFile lists tables to create and the rows to insert into them.
//
//	tables:
//	  - name: accounts
//	    key: [id]
//	    rows:
//	      - {id: 1, owner: alice, balance: 100}
type seedFile struct {
	Tables []seedTable `yaml:"tables"`
}

type seedTable struct {
	Name string                   `yaml:"name"`
	Key  []string                 `yaml:"key"`
	Rows []map[string]interface{} `yaml:"rows"`
}

func readSeed(path string) (seed *seedFile, err error) {
	p, err := os.ReadFile(path)
	if err != nil {
		err = fmt.Errorf("read seed failed, %w", err)
		return
	}
	seed, err = parseSeed(p)
	return
}

func parseSeed(p []byte) (seed *seedFile, err error) {
	seed = &seedFile{}
	if err = yaml.Unmarshal(p, seed); err != nil {
		err = fmt.Errorf("parse seed failed, %w", err)
		seed = nil
		return
	}
	for _, t := range seed.Tables {
		if t.Name == "" {
			err = fmt.Errorf("parse seed failed, table without a name")
			seed = nil
			return
		}
		if len(t.Key) == 0 {
			err = fmt.Errorf("parse seed failed, table %s has no key fields", t.Name)
			seed = nil
			return
		}
	}
	return
}

// apply creates the tables, loads rows already stored in the backend and
// upserts the seed rows in one transaction per table.
func (s *seedFile) apply(ctx context.Context, store *txstore.Store, be *backend) (err error) {
	for _, t := range s.Tables {
		id := txstore.TableID(t.Name)
		if err = store.CreateTable(id, txstore.NewMapSchema(t.Key...)); err != nil {
			return
		}
		if be != nil && be.loader != nil {
			rows, loadErr := be.loader.Load(ctx, id, txstore.MsgpackDecoder[map[string]interface{}]())
			if loadErr != nil {
				err = loadErr
				return
			}
			if err = store.Load(id, rows); err != nil {
				return
			}
		}
		rows := t.Rows
		err = store.Run(ctx, func(tx *txstore.Tx) error {
			table := txstore.Open[map[string]interface{}](tx, id)
			for _, row := range rows {
				if saveErr := table.Save(row); saveErr != nil {
					return saveErr
				}
			}
			return nil
		}, txstore.DefaultRunOptions())
		if err != nil {
			err = fmt.Errorf("seed %s failed, %w", t.Name, err)
			return
		}
	}
	return
}
