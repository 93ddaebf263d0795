package main

import "github.com/iksnae/chatstream/cmd"

func main() {
	cmd.Execute()
}
