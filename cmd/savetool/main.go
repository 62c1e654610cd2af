// Command savetool manages save backups offline: run it while the game is
// stopped to list, take, restore, invalidate, export, import or inspect backups.
package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"os"
	"strconv"
	"text/tabwriter"
	"time"

	"github.com/dustin/go-humanize"

	"github.com/talgya/farmstead/internal/archive"
	"github.com/talgya/farmstead/internal/config"
	"github.com/talgya/farmstead/internal/logging"
	"github.com/talgya/farmstead/internal/persistence"
	"github.com/talgya/farmstead/internal/saves"
)

func main() {
	if len(os.Args) < 2 {
		usage()
		os.Exit(2)
	}
	cmds := map[string]func([]string) error{
		"list":       listCmd,
		"save":       saveCmd,
		"restore":    restoreCmd,
		"invalidate": invalidateCmd,
		"dedupe":     dedupeCmd,
		"export":     exportCmd,
		"import":     importCmd,
		"inspect":    inspectCmd,
	}
	run, ok := cmds[os.Args[1]]
	if !ok {
		usage()
		os.Exit(2)
	}
	// Subcommands return instead of exiting so their deferred Close runs.
	if err := run(os.Args[2:]); err != nil {
		fmt.Fprintln(os.Stderr, err)
		var ue usageError
		if errors.As(err, &ue) {
			os.Exit(2)
		}
		os.Exit(1)
	}
}

func usage() {
	fmt.Fprintln(os.Stderr, "usage: savetool <list|save|restore|invalidate|dedupe|export|import|inspect> [flags]")
}

// env holds what every subcommand opens.
type env struct {
	cfg config.Config
	db  *persistence.DB
}

func (e *env) orchestrator() *saves.Orchestrator {
	return saves.New(e.db, saves.OptionsFrom(e.cfg), nil)
}

// usageError marks bad invocations, which exit with status 2.
type usageError string

func (e usageError) Error() string { return string(e) }

func open(fs *flag.FlagSet, args []string) (*env, []string, error) {
	configPath := fs.String("config", os.Getenv("FARMSTEAD_CONFIG"), "YAML config file (optional)")
	dbPath := fs.String("db", "", "database path (overrides config)")
	_ = fs.Parse(args)

	cfg, err := config.Load(*configPath)
	if err != nil {
		return nil, nil, usageError("config: " + err.Error())
	}
	if *dbPath != "" {
		cfg.Store.Path = *dbPath
	}
	cfg.Log.Level = "warn"
	logging.Setup(os.Stderr, cfg.Log)

	db, err := persistence.Open(cfg.Store.Path)
	if err != nil {
		return nil, nil, fmt.Errorf("open: %w", err)
	}
	return &env{cfg: cfg, db: db}, fs.Args(), nil
}

func backupID(rest []string) (int64, error) {
	if len(rest) != 1 {
		return 0, usageError("missing backup id")
	}
	id, err := strconv.ParseInt(rest[0], 10, 64)
	if err != nil {
		return 0, usageError("bad backup id: " + rest[0])
	}
	return id, nil
}

func savedAt(b persistence.SaveBackup) string {
	t, err := time.ParseInLocation(time.DateTime, b.SaveDate+" "+b.SaveTime, time.Local)
	if err != nil {
		return b.SaveDate + " " + b.SaveTime
	}
	return humanize.Time(t)
}

func listCmd(args []string) error {
	fs := flag.NewFlagSet("list", flag.ExitOnError)
	all := fs.Bool("all", false, "include invalidated backups")
	e, _, err := open(fs, args)
	if err != nil {
		return err
	}
	defer e.db.Close()

	backups, err := e.db.Backups(context.Background(), *all)
	if err != nil {
		return fmt.Errorf("list: %w", err)
	}
	tw := tabwriter.NewWriter(os.Stdout, 0, 4, 2, ' ', 0)
	fmt.Fprintln(tw, "ID\tSAVED\tSEASON\tDAY\tVALID\tNOTE")
	for _, b := range backups {
		fmt.Fprintf(tw, "%d\t%s\t%s\t%d\t%t\t%s\n", b.ID, savedAt(b), b.CurrentSeason, b.CurrentDay, b.IsValid, b.Note)
	}
	return tw.Flush()
}

func saveCmd(args []string) error {
	fs := flag.NewFlagSet("save", flag.ExitOnError)
	note := fs.String("note", "", "backup note (default: current time)")
	e, _, err := open(fs, args)
	if err != nil {
		return err
	}
	defer e.db.Close()

	ctx := context.Background()
	p, err := e.db.Live().Player(ctx)
	if err != nil {
		return fmt.Errorf("read player: %w", err)
	}
	season, day := e.cfg.Clock.StartSeason, e.cfg.Clock.StartDay
	if p != nil {
		season, day = p.CurrentSeason, p.CurrentDay
	}
	if *note == "" {
		*note = time.Now().Format(time.DateTime)
	}
	id, err := e.orchestrator().SaveGame(ctx, season, day, *note)
	if err != nil {
		return fmt.Errorf("save: %w", err)
	}
	fmt.Printf("saved backup %d (%s day %d)\n", id, season, day)
	return nil
}

func restoreCmd(args []string) error {
	fs := flag.NewFlagSet("restore", flag.ExitOnError)
	e, rest, err := open(fs, args)
	if err != nil {
		return err
	}
	defer e.db.Close()

	id, err := backupID(rest)
	if err != nil {
		return err
	}
	rep, err := e.orchestrator().LoadBackup(context.Background(), id)
	if err != nil {
		return fmt.Errorf("restore: %w", err)
	}
	fmt.Printf("restored backup %d: %d tiles, %d crops (%d dropped, %d deduplicated)\n",
		rep.BackupID, rep.Tiles, rep.Crops, rep.DroppedCrops, rep.Deduplicated)
	return nil
}

func invalidateCmd(args []string) error {
	fs := flag.NewFlagSet("invalidate", flag.ExitOnError)
	e, rest, err := open(fs, args)
	if err != nil {
		return err
	}
	defer e.db.Close()

	id, err := backupID(rest)
	if err != nil {
		return err
	}
	if err := e.orchestrator().Invalidate(context.Background(), id); err != nil {
		return fmt.Errorf("invalidate: %w", err)
	}
	fmt.Printf("invalidated backup %d\n", id)
	return nil
}

func dedupeCmd(args []string) error {
	fs := flag.NewFlagSet("dedupe", flag.ExitOnError)
	e, _, err := open(fs, args)
	if err != nil {
		return err
	}
	defer e.db.Close()

	n, err := e.orchestrator().Dedupe(context.Background())
	if err != nil {
		return fmt.Errorf("dedupe: %w", err)
	}
	fmt.Printf("removed %d duplicate live crops\n", n)
	return nil
}

func exportCmd(args []string) error {
	fs := flag.NewFlagSet("export", flag.ExitOnError)
	out := fs.String("out", "", "archive path (default: backup-<id>.farm.zst)")
	e, rest, err := open(fs, args)
	if err != nil {
		return err
	}
	defer e.db.Close()

	id, err := backupID(rest)
	if err != nil {
		return err
	}
	path := *out
	if path == "" {
		path = fmt.Sprintf("backup-%d.farm.zst", id)
	}
	hdr, err := archive.Export(context.Background(), e.db, id, path)
	if err != nil {
		return fmt.Errorf("export: %w", err)
	}
	size := "?"
	if st, err := os.Stat(path); err == nil {
		size = humanize.Bytes(uint64(st.Size()))
	}
	fmt.Printf("exported backup %d to %s (%s, archive %s)\n", id, path, size, hdr.ID)
	return nil
}

func importCmd(args []string) error {
	fs := flag.NewFlagSet("import", flag.ExitOnError)
	e, rest, err := open(fs, args)
	if err != nil {
		return err
	}
	defer e.db.Close()

	if len(rest) != 1 {
		return usageError("missing archive path")
	}
	rep, err := archive.ImportFile(context.Background(), e.db, rest[0])
	if err != nil {
		return fmt.Errorf("import: %w", err)
	}
	fmt.Printf("imported archive %s as backup %d: %d tiles, %d crops (%d dropped)\n",
		rep.ArchiveID, rep.BackupID, rep.Tiles, rep.Crops, rep.DroppedCrops)
	return nil
}

func inspectCmd(args []string) error {
	fs := flag.NewFlagSet("inspect", flag.ExitOnError)
	_ = fs.Parse(args)
	if fs.NArg() != 1 {
		return usageError("missing archive path")
	}
	f, err := os.Open(fs.Arg(0))
	if err != nil {
		return fmt.Errorf("open: %w", err)
	}
	defer f.Close()
	hdr, err := archive.ReadHeader(f)
	if err != nil {
		return fmt.Errorf("inspect: %w", err)
	}
	fmt.Printf("archive %s\n  exported %s\n  from backup %d (%s day %d)\n",
		hdr.ID, humanize.Time(hdr.ExportedAt), hdr.BackupID, hdr.Season, hdr.Day)
	return nil
}
