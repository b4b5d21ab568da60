package main

import "github.com/kebairia/ghbackup/cmd"

func main() {
	cmd.Execute()
}
