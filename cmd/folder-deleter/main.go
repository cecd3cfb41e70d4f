// Command folder-deleter removes directory trees while streaming per-item progress.
package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/maruaican/Quick-Folder-Deleter/cmd/folder-deleter/commands"
)

func main() {
	os.Exit(run(os.Args[1:]))
}

func run(args []string) int {
	ctx, cancel := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer cancel()

	cli := commands.New(os.Stdout, os.Stderr)
	cli.SetArgs(args)

	err := cli.Execute(ctx)
	if err != nil {
		fmt.Fprintln(os.Stderr, "Error:", err)
	}
	return commands.ExitCode(err)
}
