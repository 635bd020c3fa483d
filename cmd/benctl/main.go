// Command benctl edits the per-guild settings file read by the bot. A
// running bot picks changes up through its file watcher.
package main

import (
	"os"

	"github.com/joho/godotenv"
)

func main() {
	_ = godotenv.Load()
	if err := newRootCmd().Execute(); err != nil {
		os.Exit(1)
	}
}
