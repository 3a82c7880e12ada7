package test

import (
	"os"
)

// ReadFile reads the given file, panicking if it can't be read
func ReadFile(path string) []byte {
	d, err := os.ReadFile(path)
	if err != nil {
		panic(err)
	}
	return d
}
