// Command pacer is the command line front end of the pacing log.
package main

import "github.com/roach88/pacer/internal/cli"

func main() {
	cli.Main()
}
