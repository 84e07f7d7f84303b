// The main package for the sitescrape executable.
package main

import (
	"os"

	"github.com/JakeFAU/sitescrape/cmd"
)

func main() {
	os.Exit(cmd.Execute())
}
