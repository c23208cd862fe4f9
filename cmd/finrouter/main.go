// Package main is the entry point for finrouter.
package main

import (
	_ "go.uber.org/automaxprocs/maxprocs"

	"github.com/kart-io/finrouter/cmd/finrouter/app"
)

func main() {
	app.NewApp().Run()
}
