// G-code line parser for the arc welder pipeline.
//
// Turns one source line into a structured command: command name, ordered
// letter parameters with their observed textual precision, and the trailing
// comment. Lines that cannot be parsed are reported as unknown commands and
// passed through unchanged by the caller.
//
// Copyright (C) 2026  Arc Welder Go Team
//
// This file may be distributed under the terms of the GNU GPLv3 license.

package gcode

import (
	"strconv"
	"strings"
)

// Param is a single letter-prefixed numeric parameter, in source order.
type Param struct {
	Letter byte

	// Value is the parsed numeric value.
	Value float64

	// Text is the raw numeric text as it appeared in the source.
	Text string

	// Precision is the number of decimal digits in Text.
	Precision int
}

// Command is one parsed G-code line.
type Command struct {
	// Gcode is the original line, verbatim, without the trailing newline.
	Gcode string

	// Name is the uppercased command token ("G1", "M104"), or "" when the
	// line carries no command.
	Name string

	Params  []Param
	Comment string

	// IsEmpty is true when no command token was found.
	IsEmpty bool

	// IsKnown is true when Name is in the recognized command set.
	IsKnown bool
}

// Float returns the value of the first parameter with the given letter.
func (c *Command) Float(letter byte) (float64, bool) {
	for i := range c.Params {
		if c.Params[i].Letter == letter {
			return c.Params[i].Value, true
		}
	}
	return 0, false
}

// Has reports whether a parameter with the given letter is present.
func (c *Command) Has(letter byte) bool {
	_, ok := c.Float(letter)
	return ok
}

// knownCommands is the recognized command set; the position tracker applies
// the motion and modal commands among them. Anything else passes through
// the welder untouched.
var knownCommands = map[string]bool{
	"G0": true, "G1": true, "G2": true, "G3": true,
	"G10": true, "G11": true,
	"G20": true, "G21": true,
	"G28": true,
	"G90": true, "G91": true, "G92": true,
	"M82": true, "M83": true,
	"M114": true, "M218": true,
	"M220": true, "M221": true,
}

// Parse splits a raw G-code line into a Command. It never fails: lines it
// cannot make sense of come back with IsEmpty or IsKnown=false so the caller
// can pass them through verbatim.
func Parse(line string) Command {
	cmd := Command{Gcode: strings.TrimRight(line, "\r\n")}

	body := cmd.Gcode
	if idx := strings.IndexByte(body, ';'); idx >= 0 {
		cmd.Comment = strings.TrimSpace(body[idx+1:])
		body = body[:idx]
	}
	body = stripParenComments(body)
	body = strings.TrimSpace(body)

	// Strip N-number prefixes and *checksum suffixes before tokenizing.
	body = stripLineNumber(body)
	if idx := strings.IndexByte(body, '*'); idx >= 0 {
		body = strings.TrimSpace(body[:idx])
	}

	if body == "" {
		cmd.IsEmpty = true
		return cmd
	}

	// Lex letter-prefixed words; handles both "G1 X10 Y20" and the
	// compact "G1X10Y20" form.
	words, ok := lexWords(body)
	if !ok || len(words) == 0 {
		cmd.IsEmpty = true
		return cmd
	}

	first := words[0]
	if first.text == "" || (first.letter != 'G' && first.letter != 'M' && first.letter != 'T') {
		cmd.IsEmpty = true
		return cmd
	}
	// Normalize zero-padded commands ("G01" -> "G1").
	number := strings.TrimLeft(first.text, "0")
	if number == "" {
		number = "0"
	}
	cmd.Name = string(first.letter) + number

	for _, w := range words[1:] {
		if w.text == "" {
			// Bare axis word, e.g. "G28 X".
			cmd.Params = append(cmd.Params, Param{Letter: w.letter})
			continue
		}
		v, err := strconv.ParseFloat(w.text, 64)
		if err != nil {
			// A malformed parameter makes the whole line opaque.
			cmd.IsKnown = false
			cmd.Params = nil
			return cmd
		}
		cmd.Params = append(cmd.Params, Param{
			Letter:    w.letter,
			Value:     v,
			Text:      w.text,
			Precision: decimalDigits(w.text),
		})
	}

	cmd.IsKnown = knownCommands[cmd.Name]
	return cmd
}

type word struct {
	letter byte
	text   string
}

// lexWords splits a comment-free command body into letter-prefixed words.
// ok is false when the body does not follow word structure at all.
func lexWords(body string) ([]word, bool) {
	var words []word
	i := 0
	for i < len(body) {
		c := body[i]
		if c == ' ' || c == '\t' {
			i++
			continue
		}
		letter := upperByte(c)
		if letter < 'A' || letter > 'Z' {
			return nil, false
		}
		i++
		start := i
		for i < len(body) && isNumericByte(body[i]) {
			i++
		}
		text := body[start:i]
		if text == "" && i < len(body) && body[i] != ' ' && body[i] != '\t' {
			// A letter running straight into another letter is not a
			// G-code word.
			return nil, false
		}
		words = append(words, word{letter: letter, text: text})
	}
	return words, true
}

func isNumericByte(b byte) bool {
	return (b >= '0' && b <= '9') || b == '.' || b == '-' || b == '+'
}

func stripParenComments(s string) string {
	if !strings.ContainsRune(s, '(') {
		return s
	}
	var sb strings.Builder
	depth := 0
	for i := 0; i < len(s); i++ {
		switch s[i] {
		case '(':
			depth++
		case ')':
			if depth > 0 {
				depth--
				continue
			}
		}
		if depth == 0 {
			sb.WriteByte(s[i])
		}
	}
	return sb.String()
}

func stripLineNumber(s string) string {
	if len(s) < 2 || (s[0] != 'N' && s[0] != 'n') {
		return s
	}
	i := 1
	for i < len(s) && s[i] >= '0' && s[i] <= '9' {
		i++
	}
	if i == 1 {
		return s
	}
	return strings.TrimSpace(s[i:])
}

func upperByte(b byte) byte {
	if b >= 'a' && b <= 'z' {
		return b - 'a' + 'A'
	}
	return b
}

// decimalDigits counts digits after the decimal point in a numeric literal.
func decimalDigits(text string) int {
	idx := strings.IndexByte(text, '.')
	if idx < 0 {
		return 0
	}
	n := 0
	for i := idx + 1; i < len(text); i++ {
		if text[i] < '0' || text[i] > '9' {
			break
		}
		n++
	}
	return n
}
