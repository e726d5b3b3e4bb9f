// Copyright (c) 2025 Darren Soothill
// Licensed under the MIT License

// Command battery-logger samples battery telemetry into a CSV log.
package main

import "github.com/soothill/battery-data-logger/cli"

// version is set at build time with -ldflags "-X main.version=..."
var version = "dev"

func main() {
	cli.Execute(version)
}
