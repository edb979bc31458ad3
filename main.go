package main

import (
	"chschema/cmd"
	"os"
)

func main() {
	os.Exit(cmd.Execute())
}
