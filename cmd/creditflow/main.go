package main

import (
	"log/slog"

	"github.com/creditflow/creditflow/internal/app"
)

func main() {
	app.SetupLogger()

	if err := app.Start(nil); err != nil {
		slog.Error("Service exited with error", "error", err)
	}
}
