package cli

import (
	"encoding/json"
	"fmt"
	"io"

	"github.com/spf13/cobra"
)

// Terminal color codes.
const (
	colorReset  = "\033[0m"
	colorRed    = "\033[31m"
	colorGreen  = "\033[32m"
	colorYellow = "\033[33m"
	colorBold   = "\033[1m"
	colorDim    = "\033[2m"
)

// Output handles formatted output for the CLI.
type Output struct {
	writer   io.Writer
	jsonMode bool
}

// NewOutput creates an Output bound to the command's stdout, honoring the
// global --json flag.
func NewOutput(cmd *cobra.Command) *Output {
	jsonMode, _ := cmd.Flags().GetBool("json")
	return &Output{writer: cmd.OutOrStdout(), jsonMode: jsonMode}
}

// IsJSON reports whether JSON output was requested.
func (o *Output) IsJSON() bool { return o.jsonMode }

// JSON writes v as indented JSON.
func (o *Output) JSON(v interface{}) error {
	enc := json.NewEncoder(o.writer)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}

// Printf writes formatted text.
func (o *Output) Printf(format string, args ...interface{}) {
	fmt.Fprintf(o.writer, format, args...)
}

// Println writes a line.
func (o *Output) Println(args ...interface{}) {
	fmt.Fprintln(o.writer, args...)
}

// Bold writes a bold line.
func (o *Output) Bold(format string, args ...interface{}) {
	fmt.Fprintf(o.writer, colorBold+format+colorReset+"\n", args...)
}

// Dim writes a dimmed line.
func (o *Output) Dim(format string, args ...interface{}) {
	fmt.Fprintf(o.writer, colorDim+format+colorReset+"\n", args...)
}

// Success writes a green line.
func (o *Output) Success(format string, args ...interface{}) {
	fmt.Fprintf(o.writer, colorGreen+format+colorReset+"\n", args...)
}

// Warn writes a yellow line.
func (o *Output) Warn(format string, args ...interface{}) {
	fmt.Fprintf(o.writer, colorYellow+format+colorReset+"\n", args...)
}

// Error writes a red line.
func (o *Output) Error(format string, args ...interface{}) {
	fmt.Fprintf(o.writer, colorRed+format+colorReset+"\n", args...)
}
