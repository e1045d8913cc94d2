package main

import "github.com/jrsteele09/go-card-console/cmd/console/cmd"

func main() {
	cmd.Execute()
}
