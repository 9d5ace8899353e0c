package main

import "github.com/gc-rootscan/cmd/rootscan/cmd"

func main() {
	cmd.Execute()
}
