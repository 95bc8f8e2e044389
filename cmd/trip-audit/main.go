package main

import (
	"context"
	"encoding/json"
	"errors"
	"flag"
	"fmt"
	"io"
	"log"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"

	"github.com/banshee-data/congestion.audit/internal/batchio"
	"github.com/banshee-data/congestion.audit/internal/config"
	"github.com/banshee-data/congestion.audit/internal/db"
	"github.com/banshee-data/congestion.audit/internal/export"
	"github.com/banshee-data/congestion.audit/internal/fsutil"
	"github.com/banshee-data/congestion.audit/internal/geo"
	"github.com/banshee-data/congestion.audit/internal/monitoring"
	"github.com/banshee-data/congestion.audit/internal/quality"
	"github.com/banshee-data/congestion.audit/internal/security"
	"github.com/banshee-data/congestion.audit/internal/version"
)

var (
	configPath  = flag.String("config", "", "Audit config JSON (built-in defaults when empty)")
	inPath      = flag.String("in", "", "Input trip batch CSV")
	outPath     = flag.String("out", "", "Cleaned batch CSV output")
	reportPath  = flag.String("report", "", "FilterReport JSON output")
	zonesPath   = flag.String("zones", "", "Taxi zone GeoJSON; enables the zone filter")
	dbPath      = flag.String("db", "", "Audit ledger sqlite database")
	xlsxPath    = flag.String("xlsx", "", "Review workbook output")
	source      = flag.String("source", "", "Lineage label stored in the ledger (defaults to the input file name)")
	outputRoot  = flag.String("root", "", "When set, every output path must resolve inside this directory")
	verbose     = flag.Bool("v", false, "Log every excluded row")
	showVersion = flag.Bool("version", false, "Print version and exit")
)

// options are the resolved flags of one audit run.
type options struct {
	ConfigPath string
	InPath     string
	OutPath    string
	ReportPath string
	ZonesPath  string
	DBPath     string
	XLSXPath   string
	Source     string
	Root       string
}

func main() {
	flag.Usage = func() {
		fmt.Fprintf(flag.CommandLine.Output(), "Usage: trip-audit [flags] -in batch.csv\n       trip-audit -db audit.db migrate <action>\n       trip-audit -db audit.db patterns [-since 720h] [-units mph]\n\n")
		flag.PrintDefaults()
	}
	flag.Parse()

	if *showVersion {
		fmt.Println("trip-audit", version.String())
		return
	}
	monitoring.SetVerbose(*verbose)

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	if args := flag.Args(); len(args) > 0 {
		if args[0] != "migrate" && args[0] != "patterns" {
			flag.Usage()
			os.Exit(2)
		}
		if *dbPath == "" {
			log.Fatalf("-db is required for %s", args[0])
		}
		var err error
		if args[0] == "migrate" {
			err = db.RunMigrateCommand(os.Stdout, args[1:], *dbPath)
		} else {
			err = runPatterns(ctx, fsutil.OSFileSystem{}, os.Stdout, *dbPath, args[1:])
		}
		if err != nil {
			log.Fatalf("%s: %v", args[0], err)
		}
		return
	}

	if *inPath == "" {
		flag.Usage()
		os.Exit(2)
	}

	opts := options{
		ConfigPath: *configPath,
		InPath:     *inPath,
		OutPath:    *outPath,
		ReportPath: *reportPath,
		ZonesPath:  *zonesPath,
		DBPath:     *dbPath,
		XLSXPath:   *xlsxPath,
		Source:     *source,
		Root:       *outputRoot,
	}
	if err := run(ctx, fsutil.OSFileSystem{}, os.Stdout, opts); err != nil {
		log.Fatalf("trip-audit: %v", err)
	}
}

// run audits one batch and writes every requested output. Only a schema
// mismatch or an I/O failure is an error; bad rows are reported as
// exclusions.
func run(ctx context.Context, fsys fsutil.FileSystem, stdout io.Writer, opts options) error {
	if opts.Root != "" {
		if err := security.ValidateOutputs(opts.Root, opts.OutPath, opts.ReportPath, opts.XLSXPath, opts.DBPath); err != nil {
			return err
		}
	}

	cfg := config.EmptyAuditConfig()
	if opts.ConfigPath != "" {
		var err error
		if cfg, err = config.LoadAuditConfig(opts.ConfigPath); err != nil {
			return err
		}
	}

	var zones *geo.ZoneSet
	if opts.ZonesPath != "" {
		all, err := geo.LoadZonesFile(fsys, opts.ZonesPath)
		if err != nil {
			return err
		}
		zones = all.Select(cfg.GetZones())
		monitoring.Logf("zone filter: %d of %d zones selected", zones.Len(), all.Len())
		if zones.Len() == 0 {
			return errors.New("zone selection matched no zones")
		}
	}

	filter, err := quality.NewFilter(cfg, zones)
	if err != nil {
		return err
	}

	batch, err := batchio.ReadFile(fsys, opts.InPath, cfg.GetNullMarkers())
	if err != nil {
		return err
	}
	if n := batch.Ragged(); n > 0 {
		monitoring.Logf("%s: %d rows do not match the header width", opts.InPath, n)
	}

	res, err := filter.Run(batch)
	if err != nil {
		return fmt.Errorf("%s: %w", opts.InPath, err)
	}

	if opts.OutPath != "" {
		wopts := batchio.DefaultWriteOptions()
		wopts.Location = cfg.GetLocation()
		if err := batchio.WriteFile(fsys, opts.OutPath, res.Schema.OutputColumns(), res.Kept, wopts); err != nil {
			return err
		}
	}

	if opts.ReportPath != "" {
		data, err := json.MarshalIndent(res.Report, "", "  ")
		if err != nil {
			return fmt.Errorf("failed to encode report: %w", err)
		}
		if err := fsutil.WriteFileAtomic(fsys, opts.ReportPath, append(data, '\n'), 0o644); err != nil {
			return err
		}
	}

	if opts.XLSXPath != "" {
		if err := export.WriteFile(fsys, opts.XLSXPath, res); err != nil {
			return err
		}
	}

	runID := ""
	if opts.DBPath != "" {
		ledger, err := db.NewDB(opts.DBPath)
		if err != nil {
			return fmt.Errorf("failed to open audit ledger: %w", err)
		}
		defer ledger.Close()

		src := opts.Source
		if src == "" {
			src = filepath.Base(opts.InPath)
		}
		stored, err := ledger.RecordRun(ctx, security.SanitizeLabel(src), res)
		if err != nil {
			return fmt.Errorf("failed to record run: %w", err)
		}
		runID = stored.ID
	}

	rep := res.Report
	fmt.Fprintf(stdout, "%s: %d in, %d kept, %d excluded\n", opts.InPath, rep.TotalIn(), rep.TotalOut(), rep.ExcludedTotal())
	for _, reason := range filter.Reasons() {
		if n := rep.ExcludedCount(reason); n > 0 {
			fmt.Fprintf(stdout, "  %-24s %d\n", reason, n)
		}
	}
	if runID != "" {
		fmt.Fprintf(stdout, "recorded run %s\n", runID)
	}
	return nil
}
