package main

import "hailuo-batch/cmd"

func main() {
	cmd.Execute()
}
