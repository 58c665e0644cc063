package main

import "github.com/Toltar/energy-monitoring-app/internal/cli"

func main() {
	cli.Execute()
}
