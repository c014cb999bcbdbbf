package main

import "github.com/example/resy-swiper/cmd"

func main() {
	cmd.Execute()
}
