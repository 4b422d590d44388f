package main

import "github.com/hupe1980/researchmesh/internal/cli"

func main() {
	cli.Execute()
}
