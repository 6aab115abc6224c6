// The main package for the auditor executable.
package main

import (
	"github.com/JakeFAU/realtime-site-auditor/cmd"
)

// main defers all execution to the Cobra CLI library.
func main() {
	cmd.Execute()
}
