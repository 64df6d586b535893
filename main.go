package main

import "github.com/andresmejia3/ash/cmd"

func main() {
	cmd.Execute()
}
