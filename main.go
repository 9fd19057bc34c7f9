package main

import (
	_ "go.uber.org/automaxprocs" // GOMAXPROCS follows the container CPU quota

	"video-relay-go/cmd"
)

func main() {
	cmd.Execute()
}
