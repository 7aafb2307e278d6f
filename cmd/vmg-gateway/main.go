package main

import (
	"os"

	"github.com/zlseong/OTA-Vehicle-Mobile-Gateway/cmd/vmg-gateway/app"
)

func main() {
	if err := app.NewCommand().Execute(); err != nil {
		os.Exit(1)
	}
}
