package main

import (
	"fmt"
	"os"

	"github.com/soyeahso/qbridge/internal/cli"
	"github.com/tillberg/autorestart"
)

func main() {
	// Development aid: re-exec when the binary is rebuilt.
	if os.Getenv("QBRIDGE_AUTORESTART") != "" {
		go autorestart.RestartOnChange()
	}

	if err := cli.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, "qbridge:", err)
		os.Exit(1)
	}
}
