package main

import "github.com/camden-git/eventfaces/cmd"

func main() {
	cmd.Execute()
}
