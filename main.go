package main

import "github.com/vibast-solutions/ms-go-paygate/cmd"

func main() {
	cmd.Execute()
}
