package render

import (
	"io"
	"os"
	"strings"

	"github.com/muesli/termenv"
	"golang.org/x/term"
)

// LookupEnv matches os.LookupEnv.
type LookupEnv func(key string) (string, bool)

// DetectProfile picks the colour profile for w. NO_COLOR, CLICOLOR=0 and
// TERM=dumb disable colour; CLICOLOR_FORCE and FORCE_COLOR enable it.
// Writers that are not terminals get plain text.
func DetectProfile(w io.Writer, env LookupEnv) termenv.Profile {
	if env == nil {
		env = os.LookupEnv
	}
	if colorDisabled(env) {
		return termenv.Ascii
	}
	if colorForced(env) {
		return termenv.EnvColorProfile()
	}
	if file, ok := w.(*os.File); ok && term.IsTerminal(int(file.Fd())) {
		return termenv.NewOutput(w).ColorProfile()
	}
	return termenv.Ascii
}

func colorDisabled(env LookupEnv) bool {
	if v, ok := env("NO_COLOR"); ok && v != "" {
		return true
	}
	if v, ok := env("CLICOLOR"); ok && strings.TrimSpace(v) == "0" {
		return true
	}
	if v, ok := env("TERM"); ok && strings.EqualFold(strings.TrimSpace(v), "dumb") {
		return true
	}
	return false
}

func colorForced(env LookupEnv) bool {
	for _, key := range []string{"CLICOLOR_FORCE", "FORCE_COLOR"} {
		if v, ok := env(key); ok && truthy(v) {
			return true
		}
	}
	return false
}

func truthy(value string) bool {
	switch strings.ToLower(strings.TrimSpace(value)) {
	case "", "0", "false", "no", "off":
		return false
	default:
		return true
	}
}
