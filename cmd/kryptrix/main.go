package main

import (
	"kryptrix/internal/cli"
)

func main() {
	cli.Execute()
}
