package execution

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/require"
)

func TestValidateSource(t *testing.T) {
	cases := []struct {
		name    string
		source  string
		wantErr bool
	}{
		{name: "plain print", source: `print("hello")`},
		{name: "literal require", source: `const fs = require('fs')`},
		{name: "go import block", source: "package main\n\nimport (\n\t\"fmt\"\n)\n"},
		{name: "empty", source: "", wantErr: true},
		{name: "whitespace only", source: " \n\t", wantErr: true},
		{name: "too long", source: strings.Repeat("a", MaxSourceLength+1), wantErr: true},
		{name: "process exit", source: "process.exit(1)", wantErr: true},
		{name: "java exit", source: "System.exit(0);", wantErr: true},
		{name: "eval", source: "eval('1+1')", wantErr: true},
		{name: "subprocess", source: "import subprocess", wantErr: true},
		{name: "child process", source: "require('child_process')", wantErr: true},
		{name: "dynamic require", source: "require(name)", wantErr: true},
		{name: "os exec", source: "import \"os/exec\"", wantErr: true},
		{name: "dunder import", source: "__import__('os')", wantErr: true},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			err := ValidateSource(tc.source)
			if tc.wantErr {
				require.ErrorIs(t, err, ErrInvalidInput)
				return
			}
			require.NoError(t, err)
		})
	}
}

func TestValidateSourceCountsCharactersNotBytes(t *testing.T) {
	require.NoError(t, ValidateSource(strings.Repeat("é", MaxSourceLength)))
}
