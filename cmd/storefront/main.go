package main

import "github.com/Skotchmaster/storefront/internal/cmd"

func main() {
	cmd.Execute()
}
