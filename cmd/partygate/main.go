package main

import "github.com/mcoot/partygate/internal/cli"

func main() {
	cli.Execute()
}
