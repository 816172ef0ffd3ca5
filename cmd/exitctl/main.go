// Package main - exitctl CLI
//
// Usage:
//
//	go run ./cmd/exitctl instruments
//	go run ./cmd/exitctl policy EURUSD --score 80
//	go run ./cmd/exitctl replay events.csv --serve
//	go run ./cmd/exitctl serve
package main

import (
	"os"

	"github.com/Estalvo/GeminiV26-sub001/cmd/exitctl/cmd"
)

func main() {
	if err := cmd.Execute(); err != nil {
		os.Exit(1)
	}
}
