package main

import (
	"context"
	"errors"
	"fmt"
	"os"
	"os/signal"
	"runtime/debug"
	"strconv"
	"syscall"
	"time"

	"github.com/airbusgeo/godal"
	"github.com/common-nighthawk/go-figure"
	bannercolor "github.com/fatih/color"
	"github.com/forest-guardian/pdr-calculator/internal/delivery"
	"github.com/forest-guardian/pdr-calculator/internal/geometry"
	"github.com/forest-guardian/pdr-calculator/internal/notification"
	"github.com/forest-guardian/pdr-calculator/internal/properties"
	"github.com/forest-guardian/pdr-calculator/internal/server"
	"github.com/forest-guardian/pdr-calculator/internal/ui"
	"github.com/sirupsen/logrus"
	cli "gopkg.in/urfave/cli.v1"
)

func printBanner() {
	figure1 := figure.NewFigure("PDR", "isometric1", true)
	bannercolor.Cyan(figure1.String())
	bannercolor.Green("Potential Denitrification Rate calculator")
	fmt.Println()
}

var commands = cli.Commands{
	cli.Command{
		Name:    "serve",
		Aliases: []string{"s"},
		Usage:   "Launch the web map and HTTP API",
		Flags: []cli.Flag{
			cli.IntFlag{Name: "port", Usage: "listen port (defaults to PORT or 8080)"},
		},
		Action: serveAction,
	},
	cli.Command{
		Name:    "process",
		Aliases: []string{"p"},
		Usage:   "Compute PDR for an area in data/geojsons",
		Flags: []cli.Flag{
			cli.StringFlag{Name: "area", Usage: "area name, without the .geojson extension"},
			cli.StringFlag{Name: "start", Usage: "start date (YYYY-MM-DD)"},
			cli.StringFlag{Name: "end", Usage: "end date (YYYY-MM-DD)"},
		},
		Action: processAction,
	},
	cli.Command{
		Name:    "areas",
		Aliases: []string{"a"},
		Usage:   "List the areas available in data/geojsons",
		Action: func(*cli.Context) error {
			ui.ListAreas()
			return nil
		},
	},
}

func createCliApp(ctx context.Context) *cli.App {
	app := cli.NewApp()
	app.Name = "pdr-calculator"
	app.Usage = "Compute NDVI and Potential Denitrification Rate from Sentinel-2 imagery"
	app.Commands = commands
	app.Metadata = map[string]interface{}{"ctx": ctx}
	app.Action = menuAction
	return app
}

func appContext(c *cli.Context) context.Context {
	if ctx, ok := c.App.Metadata["ctx"].(context.Context); ok {
		return ctx
	}
	return context.Background()
}

func serveAction(c *cli.Context) error {
	ctx := appContext(c)
	port := usePort(c.Int("port"))
	processor, err := delivery.NewProcessorFromEnv(ctx)
	if err != nil {
		return cli.NewExitError(err.Error(), 1)
	}
	return serve(ctx, processor, port)
}

// usePort makes a --port flag override PORT, so the default public base URL
// of local downloads follows it.
func usePort(port int) int {
	if port == 0 {
		return properties.Port()
	}
	os.Setenv("PORT", strconv.Itoa(port))
	return port
}

func serve(ctx context.Context, processor *delivery.Processor, port int) error {
	return server.New(processor, logrus.StandardLogger()).Run(ctx, ":"+strconv.Itoa(port))
}

func processAction(c *cli.Context) error {
	area := c.String("area")
	if area == "" {
		return cli.NewExitError("--area is required", 1)
	}
	start, end := properties.DefaultDateRange()
	for _, date := range []struct {
		flag string
		dest *time.Time
	}{{"start", &start}, {"end", &end}} {
		value := c.String(date.flag)
		if value == "" {
			continue
		}
		parsed, err := time.Parse(time.DateOnly, value)
		if err != nil {
			return cli.NewExitError(fmt.Sprintf("invalid --%s %q, expected YYYY-MM-DD", date.flag, value), 1)
		}
		*date.dest = parsed
	}

	ctx := appContext(c)
	processor, err := delivery.NewProcessorFromEnv(ctx)
	if err != nil {
		return cli.NewExitError(err.Error(), 1)
	}
	result, err := ui.RunArea(ctx, processor, area, start, end)
	if err != nil {
		if errors.Is(err, geometry.ErrNoGeometry) {
			return cli.NewExitError(fmt.Sprintf("area %s has no polygon: %s", area, err), 1)
		}
		return cli.NewExitError(err.Error(), 1)
	}
	ui.PrintSuccess(ui.FormatResult(result))
	return nil
}

func menuAction(c *cli.Context) error {
	ctx := appContext(c)
	printBanner()
	processor, err := delivery.NewProcessorFromEnv(ctx)
	if err != nil {
		return cli.NewExitError(err.Error(), 1)
	}
	ui.ShowMenu(ctx, processor, func() error {
		return serve(ctx, processor, properties.Port())
	})
	return nil
}

func notifyPanic() {
	r := recover()
	if r == nil {
		return
	}
	fmt.Printf("\n\033[31mPANIC: %v\033[0m\n", r)
	fmt.Printf("\033[31mExiting...\033[0m\n")

	errMessage := fmt.Sprintf("PDR calculator panic:\n\n%v\n\nStack trace:\n%s", r, debug.Stack())
	if err := notification.NewDiscordFromEnv().SendError(context.Background(), errMessage); err != nil {
		fmt.Printf("\033[31mFailed to send notification: %s\033[0m\n", err.Error())
	}
	os.Exit(2)
}

func main() {
	defer notifyPanic()

	if path, err := properties.LoadEnv(); err != nil {
		fmt.Printf("\033[33mNo .env file loaded: %s\033[0m\n", err.Error())
	} else {
		fmt.Printf("\033[32mLoaded environment from %s\033[0m\n", path)
	}

	level, err := logrus.ParseLevel(properties.LogLevel())
	if err != nil {
		level = logrus.InfoLevel
	}
	logrus.SetLevel(level)
	logrus.SetFormatter(&logrus.TextFormatter{FullTimestamp: true})

	godal.RegisterAll()

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if err := createCliApp(ctx).Run(os.Args); err != nil {
		logrus.WithError(err).Error("Error executing CLI app")
		os.Exit(1)
	}
}
