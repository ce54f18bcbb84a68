package main

import "github.com/CraigKelly/tempering/cmd"

func main() {
	cmd.Execute()
}
