// Package flagx helps several independent flag sets share os.Args.
package flagx

import (
	"flag"
	"os"
	"strings"
)

// FilterArgs returns the arguments that belong to allowedFlags, each
// followed by its value when the value was given as a separate argument.
//
// Supported formats:
//  1. Flag and value as separate arguments:  -c conf.json
//  2. Flag and value combined with '=':      --config=conf.json
//
// Flag names are matched without their leading dashes, so "-config" and
// "--config" are the same flag, as they are for the flag package.
func FilterArgs(args []string, allowedFlags []string) []string {
	return Filter(args, allowedFlags, nil)
}

// Filter is FilterArgs for a mix of value flags and boolean flags. A boolean
// flag never consumes the following argument.
func Filter(args []string, valueFlags, boolFlags []string) []string {
	kinds := make(map[string]bool, len(valueFlags)+len(boolFlags))
	for _, f := range valueFlags {
		kinds[name(f)] = true
	}
	for _, f := range boolFlags {
		kinds[name(f)] = false
	}

	// Always non-nil so callers can pass it straight to flag.Parse.
	filtered := make([]string, 0, len(args))

	for i := 0; i < len(args); i++ {
		arg := args[i]
		if !strings.HasPrefix(arg, "-") {
			continue
		}

		// "--flag=value" or "-f=value"
		if n, _, ok := strings.Cut(arg, "="); ok {
			if _, known := kinds[name(n)]; known {
				filtered = append(filtered, arg)
			}
			continue
		}

		takesValue, known := kinds[name(arg)]
		if !known {
			continue
		}
		filtered = append(filtered, arg)

		// The next argument is the value unless it looks like another flag.
		if takesValue && i+1 < len(args) && !strings.HasPrefix(args[i+1], "-") {
			filtered = append(filtered, args[i+1])
			i++
		}
	}

	return filtered
}

func name(f string) string {
	return strings.TrimLeft(f, "-")
}

// ConfigFileFlag extracts the config file path given via -c or -config.
//
// Only these flags are parsed; everything else in os.Args is ignored, so the
// application can still parse its own flags separately. If neither flag is
// present, an empty string is returned.
func ConfigFileFlag() string {
	var config string

	args := FilterArgs(os.Args[1:], []string{"-c", "-config"})

	fs := flag.NewFlagSet("config", flag.ContinueOnError)
	fs.StringVar(&config, "config", "", "Path to config file")
	fs.StringVar(&config, "c", "", "Path to config file (short)")
	_ = fs.Parse(args)

	return config
}
