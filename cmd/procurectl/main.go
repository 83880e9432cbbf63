package main

import "backoffice/internal/cli"

func main() {
	cli.Execute()
}
