package main

import (
	"fmt"
	"os"

	"github.com/diegod088/bot-bens11-sub000/internal/payments"
)

func main() {
	if len(os.Args) < 2 {
		fmt.Println("usage: plans-check <plans.yaml>...")
		os.Exit(0)
	}

	failed := false
	for _, path := range os.Args[1:] {
		catalog, err := payments.LoadCatalog(path)
		if err != nil {
			fmt.Printf("❌ %s: %v\n", path, err)
			failed = true
			continue
		}
		fmt.Printf("✅ %s: %d plans\n", path, len(catalog.Plans))
		for _, p := range catalog.Plans {
			fmt.Printf("   %-14s %-9s %3d days  %4d stars  $%.2f\n", p.ID, p.Level, p.Days, p.Stars, p.PriceUSD)
		}
	}

	if failed {
		os.Exit(1)
	}
}
