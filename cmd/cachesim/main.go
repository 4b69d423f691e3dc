// Package main provides the cachesim CLI for replaying cache traces and
// comparing eviction algorithms.
package main

import (
	"os"
)

func main() {
	if err := rootCmd.Execute(); err != nil {
		os.Exit(1)
	}
}
