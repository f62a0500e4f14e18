package main

import "github.com/ValentinKolb/dRef/cmd"

func main() {
	cmd.Execute()
}
