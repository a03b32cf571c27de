package main

import (
	"github.com/CrumpLab/vertical/cmd/xprmntr/cmd"
)

func main() {
	cmd.Execute()
}
