package main

import "github.com/oshokin/lambda-packager/cmd/packager/cmd"

func main() {
	cmd.Execute()
}
