// The main package for the linker executable.
package main

import "github.com/JakeFAU/catalog-linker/cmd"

// main defers all execution to the Cobra CLI.
func main() {
	cmd.Execute()
}
