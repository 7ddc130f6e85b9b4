package main

import (
	"fmt"
	"os"

	"workspace-assistant/internal/app"
)

func main() {
	if err := app.Run(); err != nil {
		fmt.Fprintf(os.Stderr, "workspace-assistant: %v\n", err)
		os.Exit(1)
	}
}
