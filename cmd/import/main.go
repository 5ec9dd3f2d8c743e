// Command import loads employees from an xlsx workbook into the directory.
package main

import (
	"context"
	"fmt"
	"os"

	"github.com/spf13/pflag"
	"go.uber.org/zap"

	"meetsign/internal/directory"
	"meetsign/internal/importer"
	"meetsign/internal/store"
)

func main() {
	var (
		dbPath = pflag.String("db", "data/meetsign.db", "path to the sqlite database")
		file   = pflag.String("file", "", "xlsx workbook to import (required)")
		dryRun = pflag.Bool("dry-run", false, "parse and report without writing")
	)
	pflag.Parse()

	log, err := zap.NewDevelopment()
	if err != nil {
		panic(err)
	}
	defer log.Sync()

	if *file == "" {
		pflag.Usage()
		os.Exit(2)
	}

	if err := run(log, *dbPath, *file, *dryRun); err != nil {
		log.Fatal("import failed", zap.Error(err))
	}
}

func run(log *zap.Logger, dbPath, file string, dryRun bool) error {
	employees, err := importer.ReadFile(file)
	if err != nil {
		return err
	}
	log.Info("parsed workbook", zap.String("file", file), zap.Int("rows", len(employees)))

	if dryRun {
		for _, e := range employees {
			fmt.Printf("%s\t%s\t%s\n", e.EmployeeID, e.Name, e.Department)
		}
		return nil
	}

	db, err := store.Open(dbPath)
	if err != nil {
		return err
	}
	defer db.Close()

	results := directory.NewRepository(db.Client).Import(context.Background(), employees)
	var okCount, failCount int
	for _, r := range results {
		if r.OK {
			okCount++
			continue
		}
		failCount++
		log.Warn("row failed", zap.String("name", r.Name), zap.String("error", r.Error))
	}
	log.Info("import complete", zap.Int("imported", okCount), zap.Int("failed", failCount))
	return nil
}
