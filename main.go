package main

import "github.com/fakeyudi/timebox/cmd"

func main() {
	cmd.Execute()
}
