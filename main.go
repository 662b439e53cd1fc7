package main

import "github.com/pratama/storefront/cmd"

func main() {
	cmd.Start()
}
