package main

import (
	"os"

	"github.com/bobbleheadhobo/Windscribe-Port-Forwarding/cmd"
)

var (
	version   = "dev"
	buildTime = "unknown"
)

func main() {
	cmd.SetVersion(version, buildTime)
	os.Exit(cmd.Execute())
}
