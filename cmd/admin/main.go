package main

import (
	"os"

	"github.com/darusc/Fileknight/internal/admin"
)

func main() {
	if err := admin.Execute(); err != nil {
		os.Exit(1)
	}
}
