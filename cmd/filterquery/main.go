// Command filterquery loads sample records, declares secondary indexes, and
// runs equality, range, and contains filters against them, printing the
// matches alongside the exact bytes each filter puts on the wire.
package main

import (
	"context"
	"fmt"
	"log/slog"
	"os"

	"github.com/INLOpen/nexuskv/core"
	"github.com/INLOpen/nexuskv/query"
	"github.com/INLOpen/nexuskv/store"
)

const (
	nsName  = "test"
	setName = "people"
)

func main() {
	logger := slog.New(slog.NewJSONHandler(os.Stdout, nil))

	db, err := store.NewStore(store.Options{
		Namespaces: []store.NamespaceOptions{{Name: nsName}},
		Logger:     logger,
	})
	if err != nil {
		logger.Error("Failed to create store", "error", err)
		os.Exit(1)
	}
	defer db.Close()

	ctx := context.Background()
	if err := run(ctx, db); err != nil {
		logger.Error("Filter query demonstration failed", "error", err)
		os.Exit(1)
	}
}

func run(ctx context.Context, db *store.Store) error {
	if err := db.CreateIndex(ctx, nsName, "age", query.CollectionDefault, store.IndexNumeric); err != nil {
		return err
	}
	if err := db.CreateIndex(ctx, nsName, "city", query.CollectionDefault, store.IndexString); err != nil {
		return err
	}
	if err := db.CreateIndex(ctx, nsName, "tags", query.CollectionList, store.IndexString); err != nil {
		return err
	}

	people := []struct {
		name string
		age  int64
		city string
		tags []any
	}{
		{"ann", 25, "berlin", []any{"red", "green"}},
		{"bob", 42, "paris", []any{"red"}},
		{"cid", 64, "berlin", []any{"blue"}},
		{"dot", 17, "oslo", []any{"green", "blue"}},
	}
	for _, p := range people {
		key, err := core.NewKey(nsName, setName, p.name)
		if err != nil {
			return err
		}
		err = db.Put(ctx, nil, key,
			core.NewBin("age", p.age),
			core.NewBin("city", p.city),
			core.NewBin("tags", p.tags),
		)
		if err != nil {
			return fmt.Errorf("put %s: %w", p.name, err)
		}
	}

	equal, err := query.NewEqualFilter("city", "berlin")
	if err != nil {
		return err
	}
	if err := show(ctx, db, "equal(city, berlin)", equal); err != nil {
		return err
	}

	rng, err := query.NewRangeFilter("age", 18, 65)
	if err != nil {
		return err
	}
	if err := show(ctx, db, "range(age, 18, 65)", rng); err != nil {
		return err
	}

	contains, err := query.NewContainsFilter("tags", query.CollectionList, "red")
	if err != nil {
		return err
	}
	return show(ctx, db, "contains(tags, LIST, red)", contains)
}

func show(ctx context.Context, db *store.Store, label string, f query.Filter) error {
	buf := make([]byte, f.EstimateSize())
	if _, err := f.Write(buf, 0); err != nil {
		return fmt.Errorf("%s: encode: %w", label, err)
	}

	records, err := db.Query(ctx, nsName, setName, f)
	if err != nil {
		return fmt.Errorf("%s: %w", label, err)
	}

	fmt.Printf("%s\n  wire: % x\n  matches: %d\n", label, buf, len(records))
	for _, rec := range records {
		fmt.Printf("    bins=%v generation=%d\n", rec.Bins, rec.Generation)
	}
	return nil
}
