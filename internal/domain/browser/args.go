package browser

import "strconv"

// Flag is one browser command-line switch, without the leading dashes.
type Flag struct {
	Name   string
	Values []string
}

// String renders the flag the way it appears on the command line.
func (f Flag) String() string {
	if len(f.Values) == 0 {
		return "--" + f.Name
	}
	s := "--" + f.Name + "="
	for i, v := range f.Values {
		if i > 0 {
			s += ","
		}
		s += v
	}
	return s
}

// stabilityFlags turn off subsystems a headless server never needs.
var stabilityFlags = []string{
	"disable-extensions",
	"disable-background-networking",
	"disable-background-timer-throttling",
	"disable-breakpad",
	"disable-component-update",
	"disable-default-apps",
	"disable-sync",
	"metrics-recording-only",
	"mute-audio",
	"no-first-run",
	"disable-renderer-backgrounding",
	"disable-hang-monitor",
}

// HardenedFlags returns the fixed flag set for a server-side browser.
func HardenedFlags(opts LaunchOptions) []Flag {
	flags := []Flag{
		{Name: "no-sandbox"},
		{Name: "disable-setuid-sandbox"},
		{Name: "disable-dev-shm-usage"},
		{Name: "disable-gpu"},
		{Name: "remote-debugging-address", Values: []string{"0.0.0.0"}},
		{Name: "remote-debugging-port", Values: []string{strconv.Itoa(opts.DebugPort)}},
	}
	if opts.MaxHeapMB > 0 {
		flags = append(flags, Flag{
			Name:   "js-flags",
			Values: []string{"--max-old-space-size=" + strconv.Itoa(opts.MaxHeapMB)},
		})
	}
	for _, name := range stabilityFlags {
		flags = append(flags, Flag{Name: name})
	}
	return flags
}

// HardenedArgs is HardenedFlags rendered as command-line arguments.
func HardenedArgs(opts LaunchOptions) []string {
	flags := HardenedFlags(opts)
	args := make([]string, 0, len(flags))
	for _, f := range flags {
		args = append(args, f.String())
	}
	return args
}
