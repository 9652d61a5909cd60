package main

import "github.com/praetorian-inc/cloudshovel/cmd"

func main() {
	cmd.Execute()
}
