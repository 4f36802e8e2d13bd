package main

import "github.com/martinemde/codeagent/cli"

func main() {
	cli.Execute()
}
