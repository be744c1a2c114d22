package main

import "github.com/vietddude/gigwatch/internal/cli"

func main() {
	cli.Execute()
}
