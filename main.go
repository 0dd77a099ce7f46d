package main

import "github.com/FranksOps/magpie/cmd"

func main() {
	cmd.Execute()
}
