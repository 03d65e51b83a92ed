// Package main provides the femtogpt CLI: train a small GPT on a text file
// and generate text from a trained checkpoint.
package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"io"
	"os"
	"os/signal"
)

const version = "v0.1.0"

const usage = `Usage: femtogpt <command> [flags]

Commands:
  train      Train a model on a text dataset
  infer      Generate text from a trained model
  version    Show version

Run "femtogpt <command> -h" for command flags.
`

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt)
	defer stop()

	if err := run(ctx, os.Args[1:], os.Stdout); err != nil {
		if errors.Is(err, flag.ErrHelp) {
			os.Exit(2)
		}
		fmt.Fprintf(os.Stderr, "%s\n", err)
		os.Exit(1)
	}
}

func run(ctx context.Context, args []string, stdout io.Writer) error {
	if len(args) == 0 {
		fmt.Fprint(stdout, usage)
		return nil
	}
	switch args[0] {
	case "train":
		return runTrain(ctx, args[1:], stdout)
	case "infer":
		return runInfer(ctx, args[1:], stdout)
	case "version":
		fmt.Fprintf(stdout, "femtogpt %s\n", version)
		return nil
	case "help", "-h", "--help":
		fmt.Fprint(stdout, usage)
		return nil
	default:
		return fmt.Errorf("unknown command %q\n\n%s", args[0], usage)
	}
}
