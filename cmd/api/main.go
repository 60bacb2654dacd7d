package main

import "github.com/behzadon/pollvote/cmd"

func main() {
	cmd.Execute()
}
