package main

import "github.com/endorses/trustpeer/cmd"

func main() {
	cmd.Execute()
}
