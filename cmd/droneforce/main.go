// Command droneforce is the droneforce CLI client. It keeps the user's
// keypair, signs task transactions locally and submits them to a gateway.
package main

import (
	"fmt"
	"os"
)

func main() {
	if err := execute(os.Args[1:], os.Stdout, os.Stderr); err != nil {
		fmt.Fprintf(os.Stderr, "error: %v\n", err)
		os.Exit(1)
	}
}
