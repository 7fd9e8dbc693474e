// main package for the narrator command line tool
package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"
)

func run() error {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	a := &app{out: os.Stdout}

	return a.execute(ctx, os.Args[1:])
}

func main() {
	err := run()
	if err != nil {
		fmt.Fprintf(os.Stderr, "narrator: %v\n", err)
		os.Exit(1)
	}
}
