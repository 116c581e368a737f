package main

import "flowstore/internal/cli"

func main() {
	cli.Execute()
}
