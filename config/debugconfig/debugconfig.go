/*
 * rvsim - Trace options configuration.
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

// Package debugconfig registers the "trace" config section and turns it
// into a util/trace.Sink. The --log/--csvlog CLI flags override whatever
// the config file set, so a quick command-line trace does not require
// editing the config document.
package debugconfig

import (
	"encoding/json"
	"fmt"
	"os"
	"strings"

	config "github.com/virtcore/rvsim/config/configparser"
	"github.com/virtcore/rvsim/util/trace"
)

type settings struct {
	File string   `json:"file"`
	Csv  bool     `json:"csv"`
	Mask []string `json:"mask"`
}

var (
	cfg     settings
	cfgSet  bool
	sinkOut *os.File
)

func init() {
	config.Register("trace", decode)
}

func decode(raw json.RawMessage) error {
	var s settings
	if err := json.Unmarshal(raw, &s); err != nil {
		return err
	}
	for _, name := range s.Mask {
		if _, ok := trace.MaskByName[strings.ToUpper(name)]; !ok {
			return fmt.Errorf("unknown trace module %q", name)
		}
	}
	cfg = s
	cfgSet = true
	return nil
}

// Override replaces the config-file settings with CLI flag values. An
// empty file leaves the config-file choice in place.
func Override(file string, csv bool) {
	if file == "" {
		return
	}
	cfg.File = file
	cfg.Csv = csv
	if len(cfg.Mask) == 0 {
		cfg.Mask = []string{"ALL"}
	}
	cfgSet = true
}

// Sink opens the configured trace file and builds the Sink, or returns
// (nil, nil) when tracing is not configured. Close releases the file.
func Sink() (*trace.Sink, error) {
	if !cfgSet || cfg.File == "" {
		return nil, nil
	}
	f, err := os.Create(cfg.File)
	if err != nil {
		return nil, fmt.Errorf("debugconfig: %w", err)
	}
	sinkOut = f
	mask := 0
	for _, name := range cfg.Mask {
		mask |= trace.MaskByName[strings.ToUpper(name)]
	}
	if mask == 0 {
		mask = trace.MaskAll
	}
	s := trace.New(f, mask, cfg.Csv)
	s.WriteHeader()
	return s, nil
}

// Close flushes and closes the trace file opened by Sink.
func Close() {
	if sinkOut != nil {
		sinkOut.Close()
		sinkOut = nil
	}
}
