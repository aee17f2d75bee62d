// The main package for the gpsjus executable.
package main

import (
	"github.com/JakeFAU/gpsjus-scraper/cmd"
)

func main() {
	cmd.Execute()
}
