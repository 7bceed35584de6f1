// isola CLI - runs the freeze and transfer scenarios against the runtime
package main

import (
	"context"
	"flag"
	"fmt"
	"os"
	"time"

	"github.com/tliron/commonlog"

	"github.com/chazu/isola/config"
	"github.com/chazu/isola/vm"

	_ "github.com/tliron/commonlog/simple"
)

func main() {
	verbose := flag.Int("v", -1, "Log verbosity (overrides isola.toml)")
	configPath := flag.String("config", "", "Path to isola.toml (default: search upward from cwd)")
	modeFlag := flag.String("mode", "", "Transfer mode: checked or unsafe (overrides isola.toml)")
	stress := flag.Int("stress", 0, "Run N concurrent freezers over shared graphs")
	stressDepth := flag.Int("stress-depth", 64, "Records per graph in stress mode")
	dump := flag.Bool("dump", false, "Print a CBOR snapshot fingerprint of each frozen graph")

	flag.Usage = func() {
		fmt.Fprintf(os.Stderr, "Usage: isola [options]\n\n")
		fmt.Fprintf(os.Stderr, "Exercises freezing, the write barrier and checked transfers between workers.\n\n")
		fmt.Fprintf(os.Stderr, "Options:\n")
		flag.PrintDefaults()
		fmt.Fprintf(os.Stderr, "\nExamples:\n")
		fmt.Fprintf(os.Stderr, "  isola                  # Run the scenarios\n")
		fmt.Fprintf(os.Stderr, "  isola -dump            # Also print graph fingerprints\n")
		fmt.Fprintf(os.Stderr, "  isola -stress 16       # 16 goroutines freezing overlapping graphs\n")
	}
	flag.Parse()

	cfg, err := loadConfig(*configPath)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}

	verbosity := cfg.Log.Verbosity
	if *verbose >= 0 {
		verbosity = *verbose
	}
	commonlog.Configure(verbosity, nil)

	mode := cfg.TransferMode()
	if *modeFlag != "" {
		mode, err = vm.ParseTransferMode(*modeFlag)
		if err != nil {
			fmt.Fprintf(os.Stderr, "Error: %v\n", err)
			os.Exit(1)
		}
	}

	if *stress > 0 {
		if err := runStress(context.Background(), *stress, *stressDepth); err != nil {
			fmt.Fprintf(os.Stderr, "Stress failed: %v\n", err)
			os.Exit(1)
		}
		fmt.Println("OK")
		return
	}

	if err := runFreezeScenario(os.Stdout, *dump); err != nil {
		fmt.Fprintf(os.Stderr, "Freeze scenario failed: %v\n", err)
		os.Exit(1)
	}
	if err := runTransferScenario(os.Stdout, cfg, mode); err != nil {
		fmt.Fprintf(os.Stderr, "Transfer scenario failed: %v\n", err)
		os.Exit(1)
	}

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := vm.TerminateAll(ctx); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
	fmt.Println("OK")
}

func loadConfig(path string) (*config.Config, error) {
	if path != "" {
		return config.Load(path)
	}
	cwd, err := os.Getwd()
	if err != nil {
		return nil, err
	}
	return config.FindAndLoad(cwd)
}
