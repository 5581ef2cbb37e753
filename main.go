package main

import (
	"context"
	"fmt"
	"os"

	"github.com/ekaya-inc/survey-engine/cmd"
)

// Version is set at build time via ldflags
var Version = "dev"

func main() {
	if err := cmd.RootCommand(Version).ExecuteContext(context.Background()); err != nil {
		fmt.Fprintln(os.Stderr, "Error:", err)
		os.Exit(1)
	}
}
