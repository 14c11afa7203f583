package main

import "shard-exchange/cmd/shardctl/cmd"

func main() {
	cmd.Execute()
}
