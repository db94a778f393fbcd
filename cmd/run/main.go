// Command run invokes incident service operations once or from an interactive console.
package main

import (
	"context"
	"flag"
	"fmt"
	"os"
	"strings"

	"golang.org/x/term"

	"github.com/wippyai/incident-bridge/config"
	"github.com/wippyai/incident-bridge/internal/app"
	"github.com/wippyai/incident-bridge/runtime"
)

type argList []string

func (a *argList) String() string { return strings.Join(*a, ",") }

func (a *argList) Set(v string) error {
	*a = append(*a, v)
	return nil
}

func main() {
	var args argList
	var (
		configPath  = flag.String("config", "", "Path to YAML or TOML config file")
		op          = flag.String("op", "", "Operation to call (createIncident, changeStatus)")
		list        = flag.Bool("list", false, "List operations and exit")
		interactive = flag.Bool("i", false, "Interactive mode with TUI")
	)
	flag.Var(&args, "arg", "Operation argument, repeat in declared order")
	flag.Parse()

	if *op == "" && !*list && !*interactive {
		fmt.Fprintln(os.Stderr, "Usage: run -op <operation> -arg <value> [-arg <value> ...] [-config file]")
		fmt.Fprintln(os.Stderr, "       run -list")
		fmt.Fprintln(os.Stderr, "       run -i  (interactive mode)")
		os.Exit(1)
	}

	if err := run(*configPath, *op, args, *list, *interactive); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}

func run(configPath, op string, args []string, listOnly, interactive bool) error {
	ctx := context.Background()

	cfg, err := config.Load(configPath)
	if err != nil {
		return err
	}
	logger, err := cfg.Log.BuildLogger()
	if err != nil {
		return fmt.Errorf("build logger: %w", err)
	}
	defer func() { _ = logger.Sync() }()

	a, err := app.Bootstrap(ctx, cfg, logger)
	if err != nil {
		return err
	}
	defer a.Close(ctx)

	if interactive {
		if !term.IsTerminal(int(os.Stdout.Fd())) {
			return fmt.Errorf("interactive mode requires a terminal")
		}
		return runInteractive(a)
	}

	fmt.Printf("Services: %s\n", strings.Join(a.Engine.Services(), ", "))
	fmt.Printf("\nOperations:\n")
	for _, sig := range a.Incidents.Operations() {
		fmt.Printf("  %s\n", sig.Descriptor())
	}
	if listOnly {
		return nil
	}

	sig, err := findOperation(a, op)
	if err != nil {
		return err
	}

	result, err := a.Incidents.Invoke(ctx, sig, args...)
	if err != nil {
		return err
	}
	fmt.Printf("\n%s(%s) = %q\n", sig.Operation, strings.Join(args, ", "), result)
	return nil
}

func findOperation(a *app.App, name string) (*runtime.Signature, error) {
	for _, sig := range a.Incidents.Operations() {
		if sig.Operation == name {
			return sig, nil
		}
	}
	return nil, fmt.Errorf("unknown operation %q", name)
}
