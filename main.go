package main

import "github.com/metal-toolbox/printwatch/cmd"

func main() {
	cmd.Execute()
}
