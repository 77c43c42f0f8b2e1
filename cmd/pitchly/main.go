package main

import "github.com/opunsoars/pitchly/internal/process"

func main() {
	process.Run()
}
