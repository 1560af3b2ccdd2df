// Package flagx lets several config loaders share os.Args: each one keeps
// only the flags it owns and parses them with its own FlagSet.
package flagx

import (
	"flag"
	"strings"
)

// FilterArgs returns the allowed flags from args together with their values.
//
// Both "-c conf.json" and "--config=conf.json" forms are recognized. A value
// is only taken from the next argument when it does not start with "-".
func FilterArgs(args []string, allowedFlags []string) []string {
	kept, _ := SplitArgs(args, allowedFlags)
	return kept
}

// ExcludeArgs is the complement of FilterArgs: it returns args without the
// allowed flags and their values.
func ExcludeArgs(args []string, allowedFlags []string) []string {
	_, rest := SplitArgs(args, allowedFlags)
	return rest
}

// SplitArgs partitions args into the allowed flags with their values and
// everything else, preserving order in both.
func SplitArgs(args []string, allowedFlags []string) (kept, rest []string) {
	allowed := make(map[string]struct{}, len(allowedFlags))
	for _, f := range allowedFlags {
		allowed[f] = struct{}{}
	}

	kept = make([]string, 0, len(args))
	rest = make([]string, 0, len(args))

	for i := 0; i < len(args); i++ {
		arg := args[i]

		if strings.HasPrefix(arg, "-") && strings.Contains(arg, "=") {
			name, _, _ := strings.Cut(arg, "=")
			if _, ok := allowed[name]; ok {
				kept = append(kept, arg)
			} else {
				rest = append(rest, arg)
			}
			continue
		}

		if _, ok := allowed[arg]; !ok {
			rest = append(rest, arg)
			continue
		}
		kept = append(kept, arg)
		if i+1 < len(args) && !strings.HasPrefix(args[i+1], "-") {
			kept = append(kept, args[i+1])
			i++
		}
	}

	return kept, rest
}

// ConfigPath extracts the JSON config path given with -c or -config.
// An empty string means no file was requested.
func ConfigPath(args []string) string {
	var path string

	fs := flag.NewFlagSet("json", flag.ContinueOnError)
	fs.StringVar(&path, "config", "", "path to config file")
	fs.StringVar(&path, "c", "", "path to config file (short)")
	_ = fs.Parse(FilterArgs(args, []string{"-c", "-config", "--config"}))

	return path
}
