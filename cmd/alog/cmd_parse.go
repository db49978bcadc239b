package main

import (
	"bufio"
	"fmt"
	"io"
	"os"

	"github.com/pkg/errors"
	"github.com/spf13/cobra"
	"github.com/valyala/fastjson"

	"github.com/trickstertwo/alog/subscriber/console"
)

var commandParseFlagNoTarget bool

var commandParse = &cobra.Command{
	Use:   "parse",
	Short: "Convert compact log lines from stdin to JSON",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		return parse(os.Stdin, os.Stdout, os.Stderr, !commandParseFlagNoTarget)
	},
}

func init() {
	commandParse.Flags().BoolVar(&commandParseFlagNoTarget, "no-target", false, "lines were written with the target hidden")
	mainCommand.AddCommand(commandParse)
}

var errUnparsed = errors.New("some lines could not be parsed")

// parse writes one JSON object per parsed line to out and reports malformed
// lines to errOut. Empty lines are skipped.
func parse(in io.Reader, out, errOut io.Writer, withTarget bool) error {
	var (
		arena fastjson.Arena
		buf   []byte
		bad   int
	)
	scanner := bufio.NewScanner(in)
	scanner.Buffer(make([]byte, 0, 64*1024), 1<<20)
	for n := 1; scanner.Scan(); n++ {
		line := scanner.Text()
		if line == "" {
			continue
		}
		p, err := console.ParseCompact(line, withTarget)
		if err != nil {
			bad++
			fmt.Fprintf(errOut, "line %d: %v\n", n, err)
			continue
		}
		buf = appendParsed(&arena, buf[:0], p)
		buf = append(buf, '\n')
		if _, err := out.Write(buf); err != nil {
			return errors.Wrap(err, "write output")
		}
	}
	if err := scanner.Err(); err != nil {
		return errors.Wrap(err, "read input")
	}
	if bad > 0 {
		return errors.Wrapf(errUnparsed, "%d malformed", bad)
	}
	return nil
}

// appendParsed renders p as
// {"level":..,"target":..,"message":..,"fields":[{"key":..,"value":..}]}.
// Fields stay an array so order and repeated keys survive.
func appendParsed(a *fastjson.Arena, dst []byte, p console.Parsed) []byte {
	defer a.Reset()
	obj := a.NewObject()
	obj.Set("level", a.NewString(p.Level.String()))
	obj.Set("target", a.NewString(p.Target))
	obj.Set("message", a.NewString(p.Message))
	fields := a.NewArray()
	for i, f := range p.Fields {
		kv := a.NewObject()
		kv.Set("key", a.NewString(f.Key))
		kv.Set("value", a.NewString(f.Value))
		fields.SetArrayItem(i, kv)
	}
	obj.Set("fields", fields)
	return obj.MarshalTo(dst)
}
