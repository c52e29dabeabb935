// assetflow builds front-end assets and supervises the asset pipeline.
package main

import (
	"os"

	"github.com/hupe1980/assetflow/internal/cli"
)

func main() {
	os.Exit(cli.Execute())
}
