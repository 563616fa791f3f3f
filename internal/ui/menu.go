package ui

import (
	"context"
	"fmt"
)

type menuOption struct {
	title   string
	handler func()
}

// ShowMenu displays the main menu and handles user input until the user
// exits. serve blocks until the server stops.
func ShowMenu(ctx context.Context, processor AreaProcessor, serve func() error) {
	exit := false
	menuOptions := []menuOption{
		{"Process an area from data/geojsons", func() { ProcessArea(ctx, processor) }},
		{"View the list of available areas", ListAreas},
		{"Start the web map server", func() {
			if err := serve(); err != nil {
				PrintError(err.Error())
			}
		}},
		{"Exit the application", func() { fmt.Println("Exiting..."); exit = true }},
	}

	for !exit {
		fmt.Println("\033[34m===================\033[0m")
		for i, opt := range menuOptions {
			fmt.Printf("\033[34m%d. %s\033[0m\n", i+1, opt.title)
		}

		choice, err := ReadInt("Please enter your choice: ", 1, len(menuOptions))
		if err != nil {
			PrintError(err.Error())
			continue
		}
		menuOptions[choice-1].handler()
		if ctx.Err() != nil {
			return
		}
	}
}
