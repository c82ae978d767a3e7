package main

import "arblog/internal/cli"

func main() {
	cli.Execute()
}
