package main

import "github.com/MeKo-Tech/glasscanvas/cmd/glasscanvas/cmd"

func main() {
	cmd.Execute()
}
