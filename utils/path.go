package utils

import "flag"

// MakePath returns the package query given as the first non-flag argument.
// Without one, the package in the working directory is optimized.
func MakePath() string {
	if args := flag.Args(); len(args) >= 1 {
		return args[0]
	}
	return "."
}
