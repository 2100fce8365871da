// smdctl is the operator CLI for catalog lookups and offline BOM imports.
//
// Usage (from backend directory):
//   DIGIKEY_CLIENT_ID=... DIGIKEY_CLIENT_SECRET=... go run ./cmd/smdctl lookup 296-1395-5-ND
//   go run ./cmd/smdctl search --limit 5 NE555
//   DB_USER=... DB_PASSWORD=... DB_HOST=... DB_PORT=... DB_NAME=... go run ./cmd/smdctl import board.csv
package main

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/google/uuid"
	"github.com/urfave/cli/v2"

	"github.com/AnimaI/SMD-Manager/bomimport"
	"github.com/AnimaI/SMD-Manager/catalog"
	"github.com/AnimaI/SMD-Manager/config"
	"github.com/AnimaI/SMD-Manager/models"
)

func main() {
	app := &cli.App{
		Name:  "smdctl",
		Usage: "SMD inventory operator tools",
		Commands: []*cli.Command{
			{
				Name:      "lookup",
				Usage:     "look up one DigiKey number",
				ArgsUsage: "<catalog-number>",
				Action:    lookup,
			},
			{
				Name:      "search",
				Usage:     "keyword search in the DigiKey catalog",
				ArgsUsage: "<keyword>",
				Flags: []cli.Flag{
					&cli.IntFlag{Name: "limit", Value: 10, Usage: "maximum number of results"},
				},
				Action: search,
			},
			{
				Name:      "import",
				Usage:     "import a BOM file into the database and wait for the result",
				ArgsUsage: "<file>",
				Flags: []cli.Flag{
					&cli.BoolFlag{Name: "migrate", Usage: "run AutoMigrate before importing"},
				},
				Action: importBom,
			},
		},
	}
	if err := app.Run(os.Args); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

func newCatalogClient() (*catalog.Client, error) {
	var shared catalog.SharedStore
	if config.RedisEnabled() {
		config.ConnectRedisWithRetry()
		if rdb := config.GetRedisDB(); rdb != nil {
			shared = config.NewRedisStore(rdb)
		}
	}
	return catalog.NewClient(config.LoadCatalogConfig(), shared, config.GetLogger())
}

func lookup(c *cli.Context) error {
	if c.NArg() != 1 {
		return cli.Exit("usage: smdctl lookup <catalog-number>", 2)
	}
	client, err := newCatalogClient()
	if err != nil {
		return err
	}
	product, err := client.FetchByID(c.Context, c.Args().First())
	if err != nil {
		return err
	}
	return printJSON(product)
}

func search(c *cli.Context) error {
	if c.NArg() != 1 {
		return cli.Exit("usage: smdctl search [--limit N] <keyword>", 2)
	}
	client, err := newCatalogClient()
	if err != nil {
		return err
	}
	results, err := client.SearchByKeyword(c.Context, c.Args().First(), c.Int("limit"))
	if err != nil {
		return err
	}
	return printJSON(results)
}

func importBom(c *cli.Context) error {
	if c.NArg() != 1 {
		return cli.Exit("usage: smdctl import <file>", 2)
	}
	path := c.Args().First()
	data, err := os.ReadFile(path)
	if err != nil {
		return err
	}
	if len(data) > bomimport.MaxUploadSize {
		return bomimport.ErrFileTooLarge
	}
	bom, err := bomimport.ParseFile(filepath.Base(path), data)
	if err != nil {
		return fmt.Errorf("parse %s: %w", path, err)
	}

	config.ConnectDatabaseWithRetry()
	if config.GetDB() == nil {
		return errors.New("database not initialized; set DB_* env vars")
	}
	if c.Bool("migrate") {
		models.MigrateTable()
	}

	logger := config.GetLogger()
	var resolver bomimport.Resolver
	if client, err := newCatalogClient(); err != nil {
		logger.Warn("catalog lookup disabled: " + err.Error())
	} else {
		resolver = client
	}

	tracker := bomimport.NewTracker(time.Hour, nil, logger)
	importer := bomimport.NewImporter(models.NewBomStore(config.GetDB()), resolver, tracker, nil, logger)

	id := uuid.NewString()
	tracker.Start(c.Context, id, "Reading BOM file...")
	result, err := importer.Run(context.WithoutCancel(c.Context), id, bom)
	if err != nil {
		return err
	}
	state, _ := tracker.Get(c.Context, id)
	return printJSON(map[string]any{
		"result": result,
		"job":    state,
	})
}

func printJSON(v any) error {
	enc := json.NewEncoder(os.Stdout)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}
