package main

import "github.com/citizenvoice/citizenvoice-api/cmd"

func main() {
	cmd.Execute()
}
