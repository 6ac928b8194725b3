// Package main is the entry point for the deputeti terminal client.
package main

import "github.com/deputeti-ai/chat-gateway/internal/cli"

func main() {
	cli.Execute()
}
