package main

import (
	"PartyQ/cmd"
	"log"
)

func main() {
	cmd.Execute()
	// If Execute() had a problem, Cobra would have called os.Exit.
	// Reaching here means the command completed (or the server shut down
	// cleanly after a signal).
	log.Println("Application command execution finished.")
}
