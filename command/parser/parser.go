/*
 * rvsim - Console command parser.
 *
 * Copyright 2024, Richard Cornwell
 *
 * Permission is hereby granted, free of charge, to any person obtaining a copy
 * of this software and associated documentation files (the "Software"), to deal
 * in the Software without restriction, including without limitation the rights
 * to use, copy, modify, merge, publish, distribute, sublicense, and/or sell
 * copies of the Software, and to permit persons to whom the Software is
 * furnished to do so, subject to the following conditions:
 *
 * The above copyright notice and this permission notice shall be included in
 * all copies or substantial portions of the Software.
 *
 * THE SOFTWARE IS PROVIDED "AS IS", WITHOUT WARRANTY OF ANY KIND, EXPRESS OR
 * IMPLIED, INCLUDING BUT NOT LIMITED TO THE WARRANTIES OF MERCHANTABILITY,
 * FITNESS FOR A PARTICULAR PURPOSE AND NONINFRINGEMENT. IN NO EVENT SHALL THE
 * AUTHORS OR COPYRIGHT HOLDERS BE LIABLE FOR ANY CLAIM, DAMAGES OR OTHER
 * LIABILITY, WHETHER IN AN ACTION OF CONTRACT, TORT OR OTHERWISE, ARISING FROM,
 * OUT OF OR IN CONNECTION WITH THE SOFTWARE OR THE USE OR OTHER DEALINGS IN THE
 * SOFTWARE.
 *
 */

// Package parser tokenizes and dispatches interactive console commands.
// Command names may be abbreviated down to each entry's Min length, so
// "s" steps and "ex" examines but "q" is not enough for "quit".
package parser

import (
	"fmt"
	"strings"

	command "github.com/virtcore/rvsim/command/command"
	config "github.com/virtcore/rvsim/config/configparser"
)

type cmd struct {
	Name    string
	Min     int // Minimum abbreviation length.
	Help    string
	Process func(args []string, sess *command.Session) (bool, error)
}

var cmdList []cmd

func init() {
	cmdList = []cmd{
		{Name: "step", Min: 1, Help: "step [n] - retire n instructions (default 1)", Process: step},
		{Name: "continue", Min: 1, Help: "continue - run until a stop condition", Process: cont},
		{Name: "examine", Min: 2, Help: "examine x<n>|f<n>|pc|<csr>|mem <addr> [len]", Process: examine},
		{Name: "deposit", Min: 2, Help: "deposit x<n>|f<n>|pc|<csr>|mem <addr> <value>", Process: deposit},
		{Name: "regs", Min: 1, Help: "regs - dump integer registers and pc", Process: regs},
		{Name: "reset", Min: 5, Help: "reset [pc] - reset the selected hart", Process: reset},
		{Name: "translate", Min: 2, Help: "translate <vaddr> [r|w|x]", Process: translate},
		{Name: "walk", Min: 1, Help: "walk - show the last page-table walk", Process: walk},
		{Name: "nmi", Min: 3, Help: "nmi [cause] - inject a non-maskable interrupt", Process: nmi},
		{Name: "hart", Min: 1, Help: "hart <n> - select hart n", Process: selectHart},
		{Name: "help", Min: 2, Help: "help - list commands", Process: help},
		{Name: "quit", Min: 4, Help: "quit - leave the console", Process: quit},
	}
}

// ProcessCommand runs one console line; quit reports that the session is
// over.
func ProcessCommand(line string, sess *command.Session) (quit bool, err error) {
	args := strings.Fields(line)
	if len(args) == 0 {
		return false, nil
	}
	name := strings.ToLower(args[0])
	match := matchCommand(name)
	if match == nil {
		return false, fmt.Errorf("unknown command %q, try help", args[0])
	}
	return match.Process(args[1:], sess)
}

// matchCommand resolves a possibly-abbreviated command name; nil when no
// entry matches or the abbreviation is shorter than the entry's Min.
func matchCommand(name string) *cmd {
	for i := range cmdList {
		c := &cmdList[i]
		if len(name) >= c.Min && strings.HasPrefix(c.Name, name) {
			return c
		}
	}
	return nil
}

// CompleteCmd backs the liner tab completer: complete the command word, or
// hand off to resource completion for examine/deposit.
func CompleteCmd(line string) []string {
	fields := strings.Fields(line)
	if len(fields) <= 1 && !strings.HasSuffix(line, " ") {
		prefix := ""
		if len(fields) == 1 {
			prefix = strings.ToLower(fields[0])
		}
		var out []string
		for _, c := range cmdList {
			if strings.HasPrefix(c.Name, prefix) {
				out = append(out, c.Name+" ")
			}
		}
		return out
	}
	c := matchCommand(strings.ToLower(fields[0]))
	if c == nil || (c.Name != "examine" && c.Name != "deposit") {
		return nil
	}
	last := ""
	if !strings.HasSuffix(line, " ") {
		last = fields[len(fields)-1]
	}
	head := line[:len(line)-len(last)]
	var out []string
	for _, r := range completeResource(last) {
		out = append(out, head+r)
	}
	return out
}

// parseNum accepts the same numeric forms as the CLI: decimal, 0x hex,
// K/M/G/T suffix.
func parseNum(s string) (uint64, error) {
	return config.ParseSize(s)
}
