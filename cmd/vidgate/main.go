package main

import "github.com/vietddude/vidgate/internal/cli"

func main() {
	cli.Execute()
}
