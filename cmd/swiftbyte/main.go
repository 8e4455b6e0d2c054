package main

import (
	"fmt"
	"net/http"
	"os"
	"strings"
	"time"

	"github.com/docker/go-units"
	"github.com/urfave/cli/v2"

	"github.com/swiftbyte/swiftbyte/config"
	"github.com/swiftbyte/swiftbyte/internal/metadata"
	"github.com/swiftbyte/swiftbyte/internal/session"
	"github.com/swiftbyte/swiftbyte/internal/storage"
	"github.com/swiftbyte/swiftbyte/internal/transfer"
	"github.com/swiftbyte/swiftbyte/pkg/env"
	"github.com/swiftbyte/swiftbyte/pkg/httpserver"
	"github.com/swiftbyte/swiftbyte/pkg/logging"
)

func main() {
	env.LoadEnv()

	app := &cli.App{
		Name:  "swiftbyte",
		Usage: "Chunked file transfer over HTTP",
		Flags: []cli.Flag{
			&cli.BoolFlag{
				Name:    "debug",
				Usage:   "enable debug logging",
				EnvVars: []string{"SWIFTBYTE_DEBUG"},
			},
		},
		Before: func(c *cli.Context) error {
			logging.InitLogger(c.Bool("debug"))
			return nil
		},
		Commands: []*cli.Command{
			serveCommand(),
			uploadCommand(),
			downloadCommand(),
			infoCommand(),
			statusCommand(),
			cancelCommand(),
			historyCommand(),
		},
	}

	if err := app.Run(os.Args); err != nil {
		logging.Log.Fatal(err)
	}
}

func serverFlag() *cli.StringFlag {
	return &cli.StringFlag{
		Name:    "server",
		Aliases: []string{"s"},
		Value:   "http://localhost:8080",
		Usage:   "transfer server base URL",
		EnvVars: []string{"SWIFTBYTE_SERVER"},
	}
}

func serveCommand() *cli.Command {
	return &cli.Command{
		Name:  "serve",
		Usage: "Run the transfer server",
		Flags: []cli.Flag{
			&cli.StringFlag{Name: "config", Aliases: []string{"c"}, Usage: "directory containing config.yaml"},
			&cli.StringFlag{Name: "host", Usage: "listen host"},
			&cli.IntFlag{Name: "port", Usage: "listen port"},
			&cli.StringFlag{Name: "root", Usage: "directory served for uploads and downloads"},
			&cli.StringFlag{Name: "metadata-dir", Usage: "transfer ledger location"},
		},
		Action: runServe,
	}
}

func runServe(c *cli.Context) error {
	cfg, err := config.LoadConfig(c.String("config"))
	if err != nil {
		return err
	}
	if c.IsSet("host") {
		cfg.Server.Host = c.String("host")
	}
	if c.IsSet("port") {
		cfg.Server.Port = c.Int("port")
	}
	if c.IsSet("root") {
		cfg.Server.RootDir = c.String("root")
	}
	if c.IsSet("metadata-dir") {
		cfg.Metadata.Dir = c.String("metadata-dir")
	}
	if cfg.Debug {
		logging.InitLogger(true)
	}

	store, err := storage.NewLocal(cfg.Server.RootDir)
	if err != nil {
		return fmt.Errorf("failed to open served root: %w", err)
	}

	ledger, err := metadata.OpenStore(cfg.Metadata.Dir)
	if err != nil {
		return fmt.Errorf("failed to open transfer ledger: %w", err)
	}
	defer ledger.Close()

	sessions := session.NewStore(cfg.Server.SessionTimeout)
	sessions.StartSweeper(cfg.Server.SweepInterval)
	defer sessions.StopSweeper()

	srv, err := transfer.NewServer(cfg, store, sessions, ledger)
	if err != nil {
		return err
	}

	mux := http.NewServeMux()
	srv.RegisterRoutes(mux)

	logging.Log.WithFields(map[string]interface{}{
		"addr": cfg.Addr(),
		"root": store.Root(),
	}).Info("🚀 swiftbyte server starting")

	return httpserver.Run(cfg.Addr(), mux)
}

func uploadCommand() *cli.Command {
	return &cli.Command{
		Name:      "upload",
		Aliases:   []string{"up"},
		Usage:     "Upload a file in parallel chunks",
		ArgsUsage: "<file>",
		Flags: []cli.Flag{
			serverFlag(),
			&cli.StringFlag{Name: "dir", Aliases: []string{"d"}, Usage: "destination directory under the served root"},
			&cli.StringFlag{Name: "chunk-size", Usage: "chunk size, e.g. 1MiB or 512KiB"},
			&cli.IntFlag{Name: "parallel", Aliases: []string{"p"}, Value: 4, Usage: "chunks in flight at once"},
			&cli.StringFlag{Name: "algorithm", Value: "gzip", Usage: "compression algorithm (gzip, lz4, zstd)"},
			&cli.IntFlag{Name: "level", Value: 6, Usage: "compression level"},
			&cli.StringFlag{Name: "compress", Value: "auto", Usage: "compress chunks: auto, true or false"},
			&cli.StringFlag{Name: "passphrase", Usage: "encrypt chunks with this passphrase", EnvVars: []string{"SWIFTBYTE_PASSPHRASE"}},
			&cli.BoolFlag{Name: "quiet", Aliases: []string{"q"}, Usage: "suppress progress output"},
		},
		Action: runUpload,
	}
}

func runUpload(c *cli.Context) error {
	if c.NArg() != 1 {
		return fmt.Errorf("usage: swiftbyte upload <file>")
	}

	opts, err := transferOptions(c)
	if err != nil {
		return err
	}
	opts.Passphrase = c.String("passphrase")

	client := transfer.NewClient(c.String("server"))
	resp, err := client.UploadFile(c.Context, c.Args().Get(0), c.String("dir"), opts)
	if !c.Bool("quiet") {
		fmt.Fprintln(os.Stderr)
	}
	if err != nil {
		return err
	}

	logging.Log.WithFields(map[string]interface{}{
		"filename": resp.Filename,
		"size":     units.BytesSize(float64(resp.FileSize)),
		"path":     resp.Path,
	}).Info("✅ Upload completed")
	return nil
}

func downloadCommand() *cli.Command {
	return &cli.Command{
		Name:      "download",
		Aliases:   []string{"dl"},
		Usage:     "Download a file in parallel chunks",
		ArgsUsage: "<remote-path> <local-path>",
		Flags: []cli.Flag{
			serverFlag(),
			&cli.StringFlag{Name: "chunk-size", Usage: "chunk size, e.g. 1MiB or 512KiB"},
			&cli.IntFlag{Name: "parallel", Aliases: []string{"p"}, Value: 4, Usage: "chunks in flight at once"},
			&cli.StringFlag{Name: "algorithm", Value: "gzip", Usage: "compression algorithm (gzip, lz4, zstd)"},
			&cli.StringFlag{Name: "compress", Value: "auto", Usage: "transfer compressed chunks: auto, true or false"},
			&cli.BoolFlag{Name: "simple", Usage: "stream the whole file in one request"},
			&cli.BoolFlag{Name: "quiet", Aliases: []string{"q"}, Usage: "suppress progress output"},
		},
		Action: runDownload,
	}
}

func runDownload(c *cli.Context) error {
	if c.NArg() != 2 {
		return fmt.Errorf("usage: swiftbyte download <remote-path> <local-path>")
	}

	opts, err := transferOptions(c)
	if err != nil {
		return err
	}
	opts.Simple = c.Bool("simple")

	client := transfer.NewClient(c.String("server"))
	localPath := c.Args().Get(1)
	err = client.DownloadFile(c.Context, c.Args().Get(0), localPath, opts)
	if !c.Bool("quiet") {
		fmt.Fprintln(os.Stderr)
	}
	if err != nil {
		return err
	}

	logging.Log.WithField("path", localPath).Info("✅ Download completed")
	return nil
}

func infoCommand() *cli.Command {
	return &cli.Command{
		Name:      "info",
		Usage:     "Describe a remote file and its chunk grid",
		ArgsUsage: "<remote-path>",
		Flags:     []cli.Flag{serverFlag()},
		Action: func(c *cli.Context) error {
			if c.NArg() != 1 {
				return fmt.Errorf("usage: swiftbyte info <remote-path>")
			}

			client := transfer.NewClient(c.String("server"))
			info, err := client.FileInfo(c.Context, c.Args().Get(0))
			if err != nil {
				return err
			}

			fmt.Printf("File:          %s\n", info.Filename)
			fmt.Printf("Size:          %s (%d bytes)\n", units.BytesSize(float64(info.FileSize)), info.FileSize)
			fmt.Printf("Chunks:        %d x %s\n", info.TotalChunks, units.BytesSize(float64(info.ChunkSize)))
			fmt.Printf("Compression:   %v (estimated ratio %.2f)\n", info.ShouldCompress, info.EstimatedCompressionRatio)
			fmt.Printf("Recommended:   %s chunks, %d in parallel\n", units.BytesSize(float64(info.RecommendedChunkSize)), info.MaxParallelChunks)
			fmt.Printf("Last modified: %s\n", time.Unix(info.LastModified, 0).Format(time.RFC3339))
			return nil
		},
	}
}

func statusCommand() *cli.Command {
	return &cli.Command{
		Name:      "status",
		Usage:     "Show the state of an open upload session",
		ArgsUsage: "<session-id>",
		Flags:     []cli.Flag{serverFlag()},
		Action: func(c *cli.Context) error {
			if c.NArg() != 1 {
				return fmt.Errorf("usage: swiftbyte status <session-id>")
			}

			client := transfer.NewClient(c.String("server"))
			status, err := client.UploadStatus(c.Context, c.Args().Get(0))
			if err != nil {
				return err
			}

			fmt.Printf("Session:  %s\n", status.SessionID)
			fmt.Printf("File:     %s\n", status.Filename)
			fmt.Printf("Chunks:   %d/%d received\n", status.ReceivedChunks, status.TotalChunks)
			fmt.Printf("Complete: %v\n", status.IsComplete)
			if n := len(status.MissingChunks); n > 0 {
				missing := status.MissingChunks
				if n > 10 {
					missing = missing[:10]
				}
				fmt.Printf("Missing:  %v", missing)
				if n > 10 {
					fmt.Printf(" and %d more", n-10)
				}
				fmt.Println()
			}
			fmt.Printf("Updated:  %s\n", status.LastUpdated.Format(time.RFC3339))
			return nil
		},
	}
}

func cancelCommand() *cli.Command {
	return &cli.Command{
		Name:      "cancel",
		Usage:     "Cancel an open upload session",
		ArgsUsage: "<session-id>",
		Flags:     []cli.Flag{serverFlag()},
		Action: func(c *cli.Context) error {
			if c.NArg() != 1 {
				return fmt.Errorf("usage: swiftbyte cancel <session-id>")
			}

			client := transfer.NewClient(c.String("server"))
			if err := client.CancelUpload(c.Context, c.Args().Get(0)); err != nil {
				return err
			}
			logging.Log.WithField("session_id", c.Args().Get(0)).Info("Upload session cancelled")
			return nil
		},
	}
}

func historyCommand() *cli.Command {
	return &cli.Command{
		Name:  "history",
		Usage: "List finished transfers, newest first",
		Flags: []cli.Flag{
			serverFlag(),
			&cli.IntFlag{Name: "limit", Aliases: []string{"n"}, Value: 20, Usage: "maximum records to list"},
		},
		Action: func(c *cli.Context) error {
			client := transfer.NewClient(c.String("server"))
			records, err := client.History(c.Context, c.Int("limit"))
			if err != nil {
				return err
			}
			if len(records) == 0 {
				fmt.Println("No transfers recorded")
				return nil
			}

			for _, rec := range records {
				line := fmt.Sprintf("%s  %-8s  %-28s  %10s  %d chunks",
					time.Unix(rec.CompletedAt, 0).Format("2006-01-02 15:04:05"),
					rec.Direction, rec.Filename,
					units.BytesSize(float64(rec.FileSize)), rec.Chunks)
				if rec.Compressed {
					line += "  " + rec.Algorithm
				}
				if rec.Encrypted {
					line += "  encrypted"
				}
				fmt.Println(line)
			}
			return nil
		},
	}
}

// transferOptions builds client options from the shared upload/download
// flags, including the tri-state compress choice.
func transferOptions(c *cli.Context) (transfer.Options, error) {
	opts := transfer.Options{
		Parallelism: c.Int("parallel"),
		Algorithm:   c.String("algorithm"),
		Level:       c.Int("level"),
	}

	if raw := c.String("chunk-size"); raw != "" {
		n, err := units.RAMInBytes(raw)
		if err != nil {
			return opts, fmt.Errorf("invalid --chunk-size %q: %w", raw, err)
		}
		opts.ChunkSize = n
	}

	switch strings.ToLower(c.String("compress")) {
	case "", "auto":
	case "true", "on", "yes":
		v := true
		opts.Compress = &v
	case "false", "off", "no":
		v := false
		opts.Compress = &v
	default:
		return opts, fmt.Errorf("invalid --compress value %q (want auto, true or false)", c.String("compress"))
	}

	if !c.Bool("quiet") {
		opts.OnProgress = func(p transfer.Progress) {
			fmt.Fprintf(os.Stderr, "\r%s", p.Describe())
		}
	}
	return opts, nil
}
