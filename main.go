package main

import "github.com/user/checkforge/cmd"

func main() {
	cmd.Execute()
}
