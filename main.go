package main

import "products/internal/cli"

func main() {
	cli.Execute()
}
