package main

import "github.com/scrivener-audio/bartleby/cmd"

func main() {
	cmd.Execute()
}
