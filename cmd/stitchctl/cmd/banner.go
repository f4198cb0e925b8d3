package cmd

import (
	"fmt"
	"io"
)

const banner = `
      _   _ _       _          _   _ 
  ___| |_(_) |_ ___| |__   ___| |_| |
 / __| __| | __/ __| '_ \ / __| __| |
 \__ \ |_| | || (__| | | | (__| |_| |
 |___/\__|_|\__\___|_| |_|\___|\__|_|
`

func printBanner(w io.Writer) {
	fmt.Fprintf(w, "\x1b[34m%s\x1b[0m", banner)
	fmt.Fprintf(w, "\x1b[32m  Development Backend - Version %s\x1b[0m\n\n", Version)
}
