package execution

import (
	"regexp"
	"strings"
	"unicode/utf8"
)

// MaxSourceLength bounds the submitted source text, counted in characters.
const MaxSourceLength = 10000

type deniedPattern struct {
	expr   *regexp.Regexp
	reason string
}

// The denylist is input hygiene only; isolation is the runner's job.
var denylist = []deniedPattern{
	{regexp.MustCompile(`\bprocess\s*\.\s*exit\b`), "process exit call"},
	{regexp.MustCompile(`\bSystem\s*\.\s*exit\b`), "process exit call"},
	{regexp.MustCompile(`\bos\s*\.\s*_exit\b`), "process exit call"},
	{regexp.MustCompile(`\beval\s*\(`), "dynamic code evaluation"},
	{regexp.MustCompile(`\bexec\s*\(`), "dynamic code evaluation"},
	{regexp.MustCompile(`\bnew\s+Function\s*\(`), "dynamic code evaluation"},
	{regexp.MustCompile(`\bchild_process\b`), "shell invocation"},
	{regexp.MustCompile(`\bos\s*\.\s*system\b`), "shell invocation"},
	{regexp.MustCompile(`\bos\s*\.\s*popen\b`), "shell invocation"},
	{regexp.MustCompile(`\bsubprocess\b`), "shell invocation"},
	{regexp.MustCompile(`\bProcessBuilder\b`), "shell invocation"},
	{regexp.MustCompile(`\bsystem\s*\(`), "shell invocation"},
	{regexp.MustCompile(`\bpopen\s*\(`), "shell invocation"},
	{regexp.MustCompile(`"os/exec"`), "shell invocation"},
	{regexp.MustCompile(`\b__import__\b`), "arbitrary module loading"},
	{regexp.MustCompile(`\bimportlib\b`), "arbitrary module loading"},
	{regexp.MustCompile(`\bctypes\b`), "arbitrary module loading"},
	{regexp.MustCompile(`\bdlopen\b`), "arbitrary module loading"},
	{regexp.MustCompile(`\brequire\s*\(\s*[a-zA-Z_$]`), "arbitrary module loading"},
}

// ValidateSource checks the textual constraints on submitted code.
func ValidateSource(source string) error {
	if strings.TrimSpace(source) == "" {
		return &InvalidInputError{Reason: "code must not be empty"}
	}

	if utf8.RuneCountInString(source) > MaxSourceLength {
		return &InvalidInputError{Reason: "code exceeds the maximum length of 10000 characters"}
	}

	for _, pattern := range denylist {
		if pattern.expr.MatchString(source) {
			return &InvalidInputError{Reason: "code contains a disallowed construct: " + pattern.reason}
		}
	}

	return nil
}
