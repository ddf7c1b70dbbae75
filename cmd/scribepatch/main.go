package main

import "github.com/scribepatch/scribepatch/internal/cli"

func main() {
	cli.Execute()
}
