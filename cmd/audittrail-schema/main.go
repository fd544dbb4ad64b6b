// Command audittrail-schema materializes the audit tables an
// application's configuration calls for. By default it writes one
// idempotent SQL file per audit table for the host's migration tooling
// to pick up; with -dsn it applies the statements directly.
package main

import (
	"context"
	"flag"
	"fmt"
	"log"
	"time"

	"github.com/ostraca/audittrail"
	"github.com/ostraca/audittrail/pgxtrail"
)

func main() {
	configPath := flag.String("config", "", "configuration file (defaults to ./audittrail.yaml)")
	outDir := flag.String("out", "./schema", "destination directory for schema files")
	dsn := flag.String("dsn", "", "when set, apply the schema to this database instead of writing files")
	flag.Parse()

	cfg, err := audittrail.LoadConfiguration(*configPath)
	if err != nil {
		log.Fatalf("loading configuration: %v", err)
	}

	if *dsn != "" {
		ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
		defer cancel()

		pool, err := pgxtrail.Connect(ctx, *dsn)
		if err != nil {
			log.Fatalf("connecting: %v", err)
		}
		defer pool.Close()

		if err := pgxtrail.CreateAuditTables(ctx, pool, cfg); err != nil {
			log.Fatalf("creating audit tables: %v", err)
		}
		fmt.Printf("created %d audit tables\n", len(pgxtrail.SchemaFiles(cfg)))
		return
	}

	if err := pgxtrail.WriteSchema(cfg, *outDir); err != nil {
		log.Fatalf("writing schema: %v", err)
	}

	files := pgxtrail.SchemaFiles(cfg)
	fmt.Printf("wrote %d schema files to %s\n", len(files), *outDir)
	for _, f := range files {
		fmt.Printf("  %s\n", f)
	}
}
