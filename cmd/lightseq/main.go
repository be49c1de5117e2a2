package main

import (
	"os"

	"github.com/dokzlo13/lightseq/cmd/lightseq/commands"
)

var version = "dev"

func main() {
	commands.SetVersion(version)
	if err := commands.Execute(); err != nil {
		os.Exit(1)
	}
}
