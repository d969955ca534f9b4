package main

import "github.com/kozaktomas/photo-grouper/cmd"

func main() {
	cmd.Execute()
}
