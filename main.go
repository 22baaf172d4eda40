package main

import "github.com/tgstats/channel-harvester/cmd"

func main() {
	cmd.Execute()
}
