package ui

import (
	"fmt"

	"github.com/forest-guardian/pdr-calculator/internal/geometry"
)

// ListAreas prints the areas available under data/geojsons.
func ListAreas() {
	areas, err := geometry.ListAreas()
	if err != nil {
		PrintError(err.Error())
		return
	}

	PrintWarning("To add a new area, add its '.geojson' file at 'data/geojsons' folder.")

	fmt.Printf("\n%sAvailable areas:%s\n", ColorGreen, ColorReset)
	for _, area := range areas {
		fmt.Printf("%s- %s%s\n", ColorGreen, area, ColorReset)
	}
}
