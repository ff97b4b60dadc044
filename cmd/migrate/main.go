// Command migrate converts a legacy data directory into the current document
// layout. Legacy carts and purchases are read as JSON files from
// <src>/carts and <src>/purchases and written through the file store into
// <dst>, so the output is byte-compatible with what the server produces.
package main

import (
	"context"
	"encoding/json"
	"flag"
	"log"
	"os"
	"path/filepath"
	"strings"

	"boltline/backend/internal/migration"
	"boltline/backend/internal/store/pack"
)

func main() {
	src := flag.String("src", "", "legacy data directory (with carts/ and purchases/ subdirectories)")
	dst := flag.String("dst", "data", "destination data directory")
	flag.Parse()

	if *src == "" {
		log.Fatalf("-src is required")
	}
	if sameDir(*src, *dst) {
		log.Fatalf("-src and -dst must be different directories")
	}

	dest, err := pack.LoadOrInit(*dst)
	if err != nil {
		log.Fatalf("open destination %s: %v", *dst, err)
	}

	ctx := context.Background()

	carts, cartFailures := migrateCarts(ctx, filepath.Join(*src, "carts"), dest)
	purchases, purchaseFailures := migratePurchases(ctx, filepath.Join(*src, "purchases"), dest)

	log.Printf("migrated %d carts (%d failed), %d purchases (%d failed)",
		carts, cartFailures, purchases, purchaseFailures)
	if cartFailures > 0 || purchaseFailures > 0 {
		os.Exit(1)
	}
}

func sameDir(a, b string) bool {
	absA, errA := filepath.Abs(a)
	absB, errB := filepath.Abs(b)
	if errA != nil || errB != nil {
		return a == b
	}
	return absA == absB
}

func migrateCarts(ctx context.Context, dir string, dest *pack.Store) (ok int, failed int) {
	for _, path := range jsonFiles(dir) {
		var legacy migration.LegacyCart
		if err := readDoc(path, &legacy); err != nil {
			log.Printf("cart %s: %v", filepath.Base(path), err)
			failed++
			continue
		}
		c, err := migration.ConvertCart(legacy)
		if err != nil {
			log.Printf("cart %s: %v", filepath.Base(path), err)
			failed++
			continue
		}
		if err := dest.InsertCart(ctx, c); err != nil {
			log.Printf("cart %s: %v", filepath.Base(path), err)
			failed++
			continue
		}
		ok++
	}
	return ok, failed
}

func migratePurchases(ctx context.Context, dir string, dest *pack.Store) (ok int, failed int) {
	for _, path := range jsonFiles(dir) {
		var legacy migration.LegacyPurchase
		if err := readDoc(path, &legacy); err != nil {
			log.Printf("purchase %s: %v", filepath.Base(path), err)
			failed++
			continue
		}
		p, err := migration.ConvertPurchase(legacy)
		if err != nil {
			log.Printf("purchase %s: %v", filepath.Base(path), err)
			failed++
			continue
		}
		if err := dest.InsertPurchase(ctx, p); err != nil {
			log.Printf("purchase %s: %v", filepath.Base(path), err)
			failed++
			continue
		}
		ok++
	}
	return ok, failed
}

func jsonFiles(dir string) []string {
	entries, err := os.ReadDir(dir)
	if err != nil {
		log.Printf("skip %s: %v", dir, err)
		return nil
	}
	paths := make([]string, 0, len(entries))
	for _, entry := range entries {
		if entry.IsDir() || !strings.HasSuffix(entry.Name(), ".json") {
			continue
		}
		paths = append(paths, filepath.Join(dir, entry.Name()))
	}
	return paths
}

func readDoc(path string, dest any) error {
	raw, err := os.ReadFile(path)
	if err != nil {
		return err
	}
	return json.Unmarshal(raw, dest)
}
