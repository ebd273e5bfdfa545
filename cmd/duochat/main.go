package main

import "github.com/nfrund/duochat/cmd/duochat/cmd"

func main() {
	cmd.Execute()
}
