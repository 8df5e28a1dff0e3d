package main

import "github.com/iksnae/copilot-session/cmd"

func main() {
	cmd.Execute()
}
