// Command gm synchronizes a bookmark collection with a Git repository.
package main

import (
	"os"
)

func main() {
	if err := rootCmd.Execute(); err != nil {
		os.Exit(1)
	}
}
