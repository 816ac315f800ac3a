package main

import (
	"fmt"
	"os"

	"github.com/mpratt/lifelogd/internal/storage"
)

var (
	version   = "dev"
	buildTime = "unknown"
)

func main() {
	if err := newRootCmd().Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

func versionString() string {
	return fmt.Sprintf("%s (built %s, %s build, driver %s)", version, buildTime, storage.BuildMode, storage.DriverName)
}
