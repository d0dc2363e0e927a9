package main

import "github.com/oasis-home/oasisctl/cmd"

func main() {
	cmd.Execute()
}
