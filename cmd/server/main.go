package main

import "aichat-backend/internal/app"

func main() {
	app.Run()
}
