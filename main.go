package main

import "github.com/lotas/tabforest/cmd"

func main() {
	cmd.Execute()
}
