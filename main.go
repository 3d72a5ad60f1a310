package main

import "github.com/wikiwalk/wikiwalk/cmd"

func main() {
	cmd.Execute()
}
