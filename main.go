package main

import "github.com/djcass44/apt-tree/cmd"

var version = "develop"

func main() {
	cmd.Execute(version)
}
