// ./main.go
package main

import (
	"github.com/xkilldash9x/browsergate/cmd"
)

// main is the entry point for the browsergate server.
func main() {
	cmd.Execute()
}
