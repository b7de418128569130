// Command av-proxy serves the caching Alpha Vantage client over HTTP and
// offers one-shot query commands.
package main

import (
	"os"
)

func main() {
	if err := newRootCmd().Execute(); err != nil {
		os.Exit(1)
	}
}
