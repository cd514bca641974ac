package main

import "github.com/vietddude/tokenwatch/internal/cli"

func main() {
	cli.Execute()
}
