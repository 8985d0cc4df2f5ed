package main

import (
	"github.com/gumo-py/gumo-logging/internal/cmd"
)

func main() {
	cmd.Execute()
}
