package main

import (
	"waiver-trend-alerts/internal/cli"
)

func main() {
	cli.Execute()
}
