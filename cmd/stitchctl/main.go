package main

import "github.com/productinfo/stitch-js-sdk/cmd/stitchctl/cmd"

func main() {
	cmd.Execute()
}
