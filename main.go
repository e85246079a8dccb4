package main

import "heartsync-backend/cmd"

func main() {
	cmd.Execute()
}
