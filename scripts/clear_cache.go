package main

import (
	"log"
	"os"

	"tmdbhelper/internal/cachestore"
)

// Drops cached responses whose keys start with one of the given prefixes,
// e.g. "trakt.sync." after switching Trakt accounts or "fanarttv" to refetch art.
func main() {
	if len(os.Args) < 3 {
		log.Fatal("Usage: clear_cache <cache_dir> <key_prefix> [key_prefix...]")
	}

	cacheDir := os.Args[1]
	store, err := cachestore.Open(cacheDir, 0)
	if err != nil {
		log.Fatalf("Failed to open cache at %s: %v", cacheDir, err)
	}
	defer store.Close()

	for _, prefix := range os.Args[2:] {
		if prefix == "" {
			log.Printf("Skipping empty prefix")
			continue
		}
		store.DeletePrefix(prefix)
		log.Printf("Cleared %q", prefix)
	}
}
