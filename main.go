package main

import "github.com/robmorgan/clicktrack/cmd"

func main() {
	cmd.Execute()
}
