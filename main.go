package main

import "task-api.com/task-api/cmd"

func main() {
	cmd.Execute()
}
