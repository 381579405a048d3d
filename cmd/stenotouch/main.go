// stenotouch - touch-driven steno keyboard
//
//	stenotouch run              Open the keyboard window
//	stenotouch layouts          List the available layouts
//	stenotouch validate <file>  Check a layout document
//	stenotouch journal          Show recent strokes
//	stenotouch config init      Write a default configuration file
//	stenotouch config show      Print the effective configuration
package main

import (
	"flag"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"text/tabwriter"
	"time"

	"stenotouch/internal/config"
	"stenotouch/internal/layout"
	"stenotouch/internal/layouts"
	"stenotouch/internal/logging"
	"stenotouch/internal/reactive"
	"stenotouch/internal/settings"
	"stenotouch/internal/steno"
	"stenotouch/internal/store"
)

var version = "dev"

func main() {
	if len(os.Args) < 2 {
		usage()
		os.Exit(1)
	}

	cmd := os.Args[1]

	switch cmd {
	case "run":
		cmdRun()
	case "layouts":
		cmdLayouts()
	case "validate":
		cmdValidate()
	case "journal":
		cmdJournal()
	case "config":
		cmdConfig()
	case "version":
		fmt.Println("stenotouch", version)
	case "help", "-h", "--help":
		usage()
	default:
		fmt.Fprintf(os.Stderr, "Unknown command: %s\n\n", cmd)
		usage()
		os.Exit(1)
	}
}

func usage() {
	fmt.Println(`stenotouch - Touch-driven steno keyboard

USAGE:
    stenotouch <command> [options]

COMMANDS:
    run                 Open the keyboard window
    layouts             List the available layouts
    validate <file>     Check a layout document against the schema
    journal             Show recent strokes and key frequencies
    config init         Write a default configuration file
    config show         Print the effective configuration
    version             Print the version
    help                Show this help message

OPTIONS:
    run      -config <path>  -layout <name>
    layouts  -config <path>  -dir <path>
    journal  -config <path>  -db <path>  -n <count>
    config   -path <path>    -force (init)  -format toml|json|yaml (show)`)
}

func fatalf(format string, args ...any) {
	fmt.Fprintf(os.Stderr, format, args...)
	os.Exit(1)
}

// loadConfig reads path, or the default location when path is empty.
// A missing file yields the defaults.
func loadConfig(path string) *config.Config {
	cfg, err := config.Load(path)
	if err != nil {
		fatalf("Error loading config: %v\n", err)
	}
	return cfg
}

func openCatalog(dir string) *layouts.Catalog {
	catalog, err := layouts.NewCatalog(logging.Discard())
	if err != nil {
		fatalf("Error loading layouts: %v\n", err)
	}
	if dir != "" {
		if _, err := catalog.LoadDir(dir); err != nil {
			fmt.Fprintf(os.Stderr, "Warning: %v\n", err)
		}
	}
	return catalog
}

func cmdLayouts() {
	fs := flag.NewFlagSet("layouts", flag.ExitOnError)
	configPath := fs.String("config", "", "Config file (default: platform config dir)")
	dir := fs.String("dir", "", "Layouts directory (default: keyboard.layouts_dir)")
	fs.Parse(os.Args[2:])

	if *dir == "" {
		*dir = loadConfig(*configPath).Keyboard.LayoutsDir
	}
	catalog := openCatalog(*dir)

	w := tabwriter.NewWriter(os.Stdout, 0, 0, 2, ' ', 0)
	fmt.Fprintln(w, "NAME\tMODALITY\tFINGERPRINT\tSOURCE\tDESCRIPTION")
	for _, l := range catalog.Layouts() {
		fmt.Fprintf(w, "%s\t%s\t%s\t%s\t%s\n", l.Name, l.Modality, l.Fingerprint[:16], l.Source, l.Description)
	}
	w.Flush()
}

func cmdValidate() {
	fs := flag.NewFlagSet("validate", flag.ExitOnError)
	configPath := fs.String("config", "", "Config file supplying the geometry settings")
	fs.Parse(os.Args[2:])

	if fs.NArg() < 1 {
		fmt.Fprintln(os.Stderr, "Usage: stenotouch validate <file> [-config path]")
		os.Exit(1)
	}

	catalog := openCatalog("")
	cfg := loadConfig(*configPath)
	failed := false
	for _, path := range fs.Args() {
		if err := validateFile(catalog, path, cfg); err != nil {
			fmt.Printf("FAIL %s\n     %v\n", path, err)
			failed = true
		}
	}
	if failed {
		os.Exit(1)
	}
}

func validateFile(catalog *layouts.Catalog, path string, cfg *config.Config) error {
	l, err := catalog.LoadFile(path)
	if err != nil {
		return err
	}

	set := settings.New(cfg)
	defer set.Close()
	owner := reactive.NewScope()
	defer owner.Close()

	built, err := l.Build(owner, set)
	if err != nil {
		return err
	}
	switch l.Modality {
	case layouts.Joysticks:
		fmt.Printf("OK   %s: %s, %d joysticks\n", path, l.Name, len(built.Joysticks))
	default:
		ix, err := layout.NewIndex(owner, built.Root)
		if err != nil {
			return err
		}
		var covered steno.Stroke
		for _, r := range ix.Regions() {
			covered = covered.Union(r.Key.Codes)
		}
		b := ix.Bounds()
		fmt.Printf("OK   %s: %s, %d keys, %.0fx%.0f\n", path, l.Name, len(ix.Regions()),
			b.Max.X-b.Min.X, b.Max.Y-b.Min.Y)
		if missing := steno.Stroke(1<<steno.NumKeys - 1) &^ covered; !missing.IsEmpty() {
			fmt.Printf("     no key for %s\n", strings.Join(missing.KeyNames(), " "))
		}
	}
	return nil
}

func cmdJournal() {
	fs := flag.NewFlagSet("journal", flag.ExitOnError)
	configPath := fs.String("config", "", "Config file (default: platform config dir)")
	dbPath := fs.String("db", "", "Journal database (default: journal.path)")
	n := fs.Int("n", 20, "Number of recent strokes to show")
	since := fs.Duration("since", 7*24*time.Hour, "Window for key frequencies")
	fs.Parse(os.Args[2:])

	if *dbPath == "" {
		*dbPath = loadConfig(*configPath).Journal.Path
	}
	if _, err := os.Stat(*dbPath); os.IsNotExist(err) {
		fatalf("No journal at %s\n", *dbPath)
	}

	st, err := store.Open(*dbPath)
	if err != nil {
		fatalf("Error opening journal: %v\n", err)
	}
	defer st.Close()

	stats, err := st.Stats()
	if err != nil {
		fatalf("Error reading journal: %v\n", err)
	}
	fmt.Printf("=== Stroke Journal: %s ===\n", filepath.Base(*dbPath))
	fmt.Printf("Strokes: %d\n", stats.Strokes)
	fmt.Printf("Layouts: %d\n", stats.Layouts)
	if stats.Strokes > 0 {
		fmt.Printf("First:   %s\n", stats.First.Format("2006-01-02 15:04:05"))
		fmt.Printf("Last:    %s\n", stats.Last.Format("2006-01-02 15:04:05"))
	}
	fmt.Println()

	recent, err := st.Recent(*n)
	if err != nil {
		fatalf("Error reading strokes: %v\n", err)
	}
	for i := len(recent) - 1; i >= 0; i-- {
		s := recent[i]
		fmt.Printf("%s  %-12s %s\n", s.Time.Format("15:04:05.000"), s.Stroke, s.Layout)
	}
	if len(recent) > 0 {
		fmt.Println()
	}

	counts, err := st.KeyFrequency(time.Now().Add(-*since))
	if err != nil {
		fatalf("Error reading key frequencies: %v\n", err)
	}
	fmt.Println("Key frequencies:")
	for _, kc := range counts {
		if kc.Count > 0 {
			fmt.Printf("    %-3s %d\n", kc.Key.Name(), kc.Count)
		}
	}
}

func cmdConfig() {
	if len(os.Args) < 3 {
		fmt.Fprintln(os.Stderr, "Usage: stenotouch config init|show [-path path]")
		os.Exit(1)
	}

	action := os.Args[2]
	fs := flag.NewFlagSet("config "+action, flag.ExitOnError)
	path := fs.String("path", config.ConfigPath(), "Config file")
	force := fs.Bool("force", false, "Overwrite an existing file (init)")
	format := fs.String("format", "toml", "Output format: toml, json, yaml (show)")
	fs.Parse(os.Args[3:])

	switch action {
	case "init":
		if _, err := os.Stat(*path); err == nil && !*force {
			fatalf("Config already exists: %s (use -force to overwrite)\n", *path)
		}
		if err := config.SaveConfig(config.DefaultConfig(), *path); err != nil {
			fatalf("Error writing config: %v\n", err)
		}
		fmt.Printf("Wrote %s\n", *path)

	case "show":
		cfg := loadConfig(*path)
		data, err := config.Encode(cfg, "."+*format)
		if err != nil {
			fatalf("Error encoding config: %v\n", err)
		}
		os.Stdout.Write(data)

	default:
		fatalf("Unknown config action: %s\n", action)
	}
}
