package main

import "github.com/opd-ai/facemask/cmd/facemask/cmd"

func main() {
	cmd.Execute()
}
