package main

import "cheribuild/internal/cheribuild"

func main() {
	cheribuild.Main()
}
