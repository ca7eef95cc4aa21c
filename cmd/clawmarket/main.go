// Package main is the single-binary entrypoint for clawmarket.
package main

import (
	"github.com/joho/godotenv"

	"github.com/clawchain/clawmarket/internal/cli"
)

// version is set at build time via -ldflags.
var version = "dev"

func main() {
	// A .env file in the working directory may supply CLAWMARKET_* settings.
	_ = godotenv.Load()
	cli.Execute(version)
}
