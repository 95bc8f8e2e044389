package db

import (
	"fmt"
	"io"
	"strconv"
)

// RunMigrateCommand handles the 'migrate' subcommand against the ledger at
// dbPath. Status output goes to w.
func RunMigrateCommand(w io.Writer, args []string, dbPath string) error {
	if len(args) < 1 {
		PrintMigrateHelp(w)
		return fmt.Errorf("missing migrate action")
	}

	migFS, err := getMigrationsFS()
	if err != nil {
		return fmt.Errorf("failed to get migrations: %w", err)
	}

	// Schema is left to the action.
	database, err := OpenDB(dbPath)
	if err != nil {
		return fmt.Errorf("failed to open audit ledger: %w", err)
	}
	defer database.Close()

	switch action := args[0]; action {
	case "up":
		if err := database.MigrateUp(migFS); err != nil {
			return err
		}
	case "down":
		if err := database.MigrateDown(migFS); err != nil {
			return err
		}
	case "status":
	case "version":
		if len(args) < 2 {
			return fmt.Errorf("usage: trip-audit migrate version <version_number>")
		}
		v, err := strconv.ParseUint(args[1], 10, 32)
		if err != nil {
			return fmt.Errorf("invalid version %q: %w", args[1], err)
		}
		if err := database.MigrateTo(migFS, uint(v)); err != nil {
			return err
		}
	case "force":
		if len(args) < 2 {
			return fmt.Errorf("usage: trip-audit migrate force <version_number>")
		}
		v, err := strconv.Atoi(args[1])
		if err != nil {
			return fmt.Errorf("invalid version %q: %w", args[1], err)
		}
		if err := database.MigrateForce(migFS, v); err != nil {
			return err
		}
	case "help":
		PrintMigrateHelp(w)
		return nil
	default:
		PrintMigrateHelp(w)
		return fmt.Errorf("unknown migrate action: %s", action)
	}

	st, err := database.GetMigrationStatus(migFS)
	if err != nil {
		return err
	}
	printStatus(w, st)
	return nil
}

func printStatus(w io.Writer, st MigrationStatus) {
	fmt.Fprintln(w, "=== Audit Ledger Migration Status ===")
	fmt.Fprintf(w, "Current version: %d\n", st.CurrentVersion)
	fmt.Fprintf(w, "Latest version:  %d\n", st.LatestVersion)
	fmt.Fprintf(w, "Pending:         %d\n", st.Pending())
	fmt.Fprintf(w, "Dirty:           %v\n", st.Dirty)
	if st.Dirty {
		fmt.Fprintln(w, "\nWARNING: a migration failed mid-execution.")
		fmt.Fprintln(w, "Inspect the ledger, then run 'trip-audit migrate force <version>'.")
	}
}

// PrintMigrateHelp writes usage for the migrate subcommand.
func PrintMigrateHelp(w io.Writer) {
	fmt.Fprint(w, `Usage: trip-audit [-db path] migrate <action> [args]

Actions:
  up                 apply all pending migrations
  down               roll back the most recent migration
  status             show the applied and latest versions
  version <n>        migrate up or down to version n
  force <n>          record version n without running migrations
  help               show this help
`)
}
