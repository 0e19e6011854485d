package main

import "airdropbot/internal/app"

func main() {
	app.Run()
}
