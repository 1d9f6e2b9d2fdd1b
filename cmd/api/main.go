package main

import (
	"go.uber.org/fx"

	"github.com/Additional-Code/topup/internal/app"
)

// main runs the HTTP and gRPC servers without the CLI.
func main() {
	fx.New(app.Module, app.FxLogger).Run()
}
