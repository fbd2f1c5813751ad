package main

import (
	"fmt"
	"os"

	"github.com/google/uuid"
)

// keygen prints a random v4 UUID suitable for use as the service API key.
func main() {
	key, err := uuid.NewRandom()
	if err != nil {
		fmt.Fprintf(os.Stderr, "generate key: %v\n", err)
		os.Exit(1)
	}
	fmt.Println(key.String())
}
