package main

import "github.com/oshokin/zonesync/cmd/zonesync/cmd"

func main() {
	cmd.Execute()
}
