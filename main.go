package main

import "netglobe/cmd"

func main() {
	cmd.Execute()
}
