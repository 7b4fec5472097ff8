package main

import "github.com/ytget/yt-manager/internal/cli"

func main() {
	cli.Execute()
}
