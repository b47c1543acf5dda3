package main

import (
	"log/slog"
	"os"

	"github.com/containerbox/boxprov/cmd/boxprov/commands"
	"github.com/containerbox/boxprov/internal/logging"
)

func main() {
	// Structured logger: text on terminals, JSON when piped
	logging.Setup(os.Stdout, slog.LevelInfo)

	commands.Execute()
}
