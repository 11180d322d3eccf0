package main

import "github.com/samsaffron/gemchat/cmd"

func main() {
	cmd.Execute()
}
