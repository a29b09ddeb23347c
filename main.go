// The main package for the venue-crawler executable.
package main

import (
	"github.com/veganvoyager/venue-crawler/cmd"
)

func main() {
	cmd.Execute()
}
