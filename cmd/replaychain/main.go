package main

import "github.com/marcus/replaychain/cmd/replaychain/commands"

func main() {
	commands.Execute()
}
