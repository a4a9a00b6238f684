package main

import "github.com/tlqiu/quic3/internal/cmd"

func main() {
	cmd.Execute()
}
