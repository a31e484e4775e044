package main

import "nlquery-agent/internal/cli"

func main() {
	cli.Execute()
}
