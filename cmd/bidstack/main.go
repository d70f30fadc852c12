package main

import "bidstack/internal/cli"

func main() {
	cli.Execute()
}
