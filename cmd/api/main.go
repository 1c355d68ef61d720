// Command api runs the economy ledger HTTP service and its background workers.
package main

import (
	"fmt"
	"os"

	"github.com/ayo6706/economy-ledger/internal/app"
)

func main() {
	if err := app.Run(); err != nil {
		fmt.Fprintf(os.Stderr, "economy ledger: %v\n", err)
		os.Exit(1)
	}
}
