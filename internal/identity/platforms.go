package identity

// Browser is one user-agent family. Template receives the major version.
type Browser struct {
	Name     string
	Template string
	// Safari versions follow their own numbering.
	SafariVersioning bool
}

// TableVersion identifies the built-in browser and platform tables.
const TableVersion = "2024-05"

var defaultBrowsers = []Browser{
	{Name: "chrome", Template: "Chrome/%d.0.0.0 Safari/537.36"},
	{Name: "edge", Template: "Chrome/%[1]d.0.0.0 Safari/537.36 Edg/%[1]d.0.0.0"},
	{Name: "firefox", Template: "Gecko/20100101 Firefox/%d.0"},
	{Name: "safari", Template: "Version/%d.0 Safari/605.1.15", SafariVersioning: true},
}

var defaultDesktopPlatforms = []string{
	"Windows NT 10.0; Win64; x64",
	"Windows NT 6.1; Win64; x64",
	"Macintosh; Intel Mac OS X 10_15_7",
	"X11; Linux x86_64",
}

var defaultMobilePlatforms = []string{
	"iPhone; CPU iPhone OS 17_4 like Mac OS X",
	"Linux; Android 14; Pixel 8 Pro",
	"Linux; Android 13; SM-S918B",
}

// viewport bounds, inclusive
var (
	desktopViewport = [2]Viewport{{Width: 1024, Height: 768}, {Width: 1920, Height: 1080}}
	mobileViewport  = [2]Viewport{{Width: 360, Height: 740}, {Width: 430, Height: 932}}
	compactViewport = [2]Viewport{{Width: 1024, Height: 768}, {Width: 1280, Height: 800}}
)
