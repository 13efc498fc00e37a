package main

import (
	"github.com/sidkik/versync/cmd"
	"github.com/sidkik/versync/cmd/util"
)

func main() {
	defer util.HandlePanic()
	cmd.Execute()
}
