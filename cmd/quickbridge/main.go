package main

import (
	"github.com/nfrund/quickbridge/internal/cli"
)

func main() {
	cli.Execute()
}
