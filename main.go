package main

import "github.com/facein/facein/cmd"

func main() {
	cmd.Execute()
}
