package main

import "github.com/jctechlabs/jarvis/cmd"

func main() {
	cmd.Execute()
}
