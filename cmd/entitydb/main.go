// Package main provides the entitydb CLI.
package main

import "github.com/mesh-intelligence/entitydb/internal/cli"

func main() {
	cli.Execute()
}
