package main

import "github.com/uniframe-io/uniframe-backend/cmd/cli"

func main() {
	cli.Execute()
}
