package main

import "github.com/jjenkins/scorestream/cmd"

func main() {
	cmd.Execute()
}
