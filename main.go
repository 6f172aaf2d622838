// The main package for the ramtracker executable.
package main

import (
	"github.com/JakeFAU/ramtracker/cmd"
)

func main() {
	cmd.Execute()
}
