/*
 * rvsim - Main process.
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

package main

import (
	"fmt"
	"log/slog"
	"os"
	"strings"

	getopt "github.com/pborman/getopt/v2"

	command "github.com/virtcore/rvsim/command/command"
	"github.com/virtcore/rvsim/command/reader"
	config "github.com/virtcore/rvsim/config/configparser"
	"github.com/virtcore/rvsim/config/debugconfig"
	"github.com/virtcore/rvsim/rv/hart"
	"github.com/virtcore/rvsim/rv/loader"
	"github.com/virtcore/rvsim/rv/mcm"
	"github.com/virtcore/rvsim/rv/scheduler"
	"github.com/virtcore/rvsim/rv/server"
	"github.com/virtcore/rvsim/rv/snapshot"
	"github.com/virtcore/rvsim/rv/system"
	"github.com/virtcore/rvsim/util/logger"
	"github.com/virtcore/rvsim/util/trace"
)

// Process exit codes: 0 when the guest stopped successfully (tohost write
// of 1 or a clean limit stop), 1 when the guest reported failure, 2 on an
// internal error.
const (
	exitOK       = 0
	exitFail     = 1
	exitInternal = 2
)

func main() {
	os.Exit(run())
}

// size wraps config.ParseSize for flags that may be empty.
func size(s string) (uint64, error) {
	if s == "" {
		return 0, nil
	}
	return config.ParseSize(s)
}

func run() int {
	optTarget := getopt.StringLong("target", 't', "", "Guest image: ELF, Intel HEX, or raw[:addr[:u]]")
	optIsa := getopt.StringLong("isa", 0, "rv64imafdcsuh", "ISA string")
	optHarts := getopt.IntLong("harts", 0, 1, "Harts per core")
	optCores := getopt.IntLong("cores", 0, 1, "Core count")
	optMemSize := getopt.StringLong("memorysize", 'm', "0x8000000", "Physical memory size in bytes")
	optStartPC := getopt.StringLong("startpc", 0, "", "Override reset PC")
	optEndPC := getopt.StringLong("endpc", 0, "", "Stop when any hart reaches this PC")
	optToHost := getopt.StringLong("tohost", 0, "", "Stop on a store to this address")
	optMaxInst := getopt.StringLong("maxinst", 0, "", "Stop after this many retired instructions per hart")
	optInteractive := getopt.BoolLong("interactive", 'i', "Run the interactive console")
	optServer := getopt.StringLong("server", 's', "", "Serve external control; the file receives host:port")
	optShm := getopt.BoolLong("shm", 0, "Use the shared-memory transport for --server")
	optMcm := getopt.BoolLong("mcm", 0, "Enable the memory-consistency checker")
	optMcmLs := getopt.StringLong("mcmls", 0, "64", "Merge-buffer line size (bytes, power of two, 0 disables)")
	optDeterministic := getopt.StringLong("deterministic", 0, "", "Deterministic scheduling: lo:hi or n (meaning 1:n)")
	optSeed := getopt.StringLong("seed", 0, "0", "Deterministic scheduling seed")
	optSnapPeriod := getopt.StringLong("snapshotperiod", 0, "", "Snapshot every n cumulative retires")
	optSnapDir := getopt.StringLong("snapshotdir", 0, "snapshots", "Directory prefix for periodic snapshots")
	optLoadFrom := getopt.StringLong("loadfrom", 0, "", "Restore state from a snapshot directory")
	optLog := getopt.StringLong("log", 'l', "", "Execution trace file")
	optCsvLog := getopt.BoolLong("csvlog", 0, "Write the trace in CSV form")
	optConfig := getopt.StringLong("configfile", 'c', "", "JSON configuration file")
	optQuitAny := getopt.BoolLong("quitany", 0, "Stop the whole run when the first hart stops")
	optHelp := getopt.BoolLong("help", 'h', "Help")
	getopt.Parse()

	if *optHelp {
		getopt.Usage()
		return exitOK
	}

	programLevel := new(slog.LevelVar)
	programLevel.Set(slog.LevelDebug)
	slog.SetDefault(slog.New(logger.NewHandler(nil, &slog.HandlerOptions{Level: programLevel}, false)))

	if *optConfig != "" {
		if err := config.LoadConfigFile(*optConfig); err != nil {
			slog.Error(err.Error())
			return exitInternal
		}
	}
	debugconfig.Override(*optLog, *optCsvLog)
	tracer, err := debugconfig.Sink()
	if err != nil {
		slog.Error(err.Error())
		return exitInternal
	}
	defer debugconfig.Close()

	xlen, err := parseISA(*optIsa)
	if err != nil {
		slog.Error(err.Error())
		return exitInternal
	}
	memSize, err := size(*optMemSize)
	if err != nil || memSize == 0 || memSize%4096 != 0 {
		slog.Error(fmt.Sprintf("bad --memorysize %q: need a nonzero multiple of 4096", *optMemSize))
		return exitInternal
	}
	lineSize, err := size(*optMcmLs)
	if err != nil || (lineSize != 0 && lineSize&(lineSize-1) != 0) {
		slog.Error(fmt.Sprintf("bad --mcmls %q: need a power of two", *optMcmLs))
		return exitInternal
	}

	sysCfg := system.Config{
		Harts:      *optHarts * *optCores,
		XLEN:       xlen,
		MemorySize: memSize,
		McmEnabled: *optMcm,
		Mcm:        mcm.Config{LineSize: lineSize},
	}
	sys, err := system.New(sysCfg)
	if err != nil {
		slog.Error(err.Error())
		return exitInternal
	}

	switch {
	case *optLoadFrom != "":
		if err := snapshot.Load(*optLoadFrom, sys); err != nil {
			slog.Error(err.Error())
			return exitInternal
		}
	case *optTarget != "":
		target, err := loader.ParseTarget(*optTarget)
		if err != nil {
			slog.Error(err.Error())
			return exitInternal
		}
		entry, err := loader.Load(sys.Memory, target)
		if err != nil {
			slog.Error(err.Error())
			return exitInternal
		}
		sys.Reset(entry)
	case *optServer == "" && !*optInteractive:
		slog.Error("nothing to run: need --target, --loadfrom, --server or --interactive")
		return exitInternal
	}

	if *optStartPC != "" {
		pc, err := size(*optStartPC)
		if err != nil {
			slog.Error(err.Error())
			return exitInternal
		}
		for _, h := range sys.Harts {
			h.PokePC(pc)
		}
	}

	limits, err := buildLimits(*optEndPC, *optToHost, *optMaxInst)
	if err != nil {
		slog.Error(err.Error())
		return exitInternal
	}

	if *optServer != "" {
		return runServer(sys, *optServer, *optShm)
	}
	if *optInteractive {
		sess := &command.Session{Sys: sys, Limits: limits, Tracer: tracer}
		reader.ConsoleReader(sess)
		return exitOK
	}
	return runBatch(sys, limits, tracer,
		*optDeterministic, *optSeed, *optSnapPeriod, *optSnapDir, *optQuitAny)
}

// parseISA accepts "rv32..." / "rv64..." with the usual extension letters;
// anything else is a configuration error that aborts startup.
func parseISA(isa string) (xlen int, err error) {
	low := strings.ToLower(isa)
	switch {
	case strings.HasPrefix(low, "rv32"):
		xlen = 32
	case strings.HasPrefix(low, "rv64"):
		xlen = 64
	default:
		return 0, fmt.Errorf("bad --isa %q: must start with rv32 or rv64", isa)
	}
	for _, r := range low[4:] {
		if !strings.ContainsRune("imafdqcbvsuh_zp", r) && (r < '0' || r > '9') {
			return 0, fmt.Errorf("bad --isa %q: unknown extension letter %q", isa, r)
		}
	}
	return xlen, nil
}

func buildLimits(endPC, toHost, maxInst string) (hart.Limits, error) {
	var limits hart.Limits
	if endPC != "" {
		v, err := size(endPC)
		if err != nil {
			return limits, fmt.Errorf("bad --endpc: %w", err)
		}
		limits.StopPC, limits.HasStopPC = v, true
	}
	if toHost != "" {
		v, err := size(toHost)
		if err != nil {
			return limits, fmt.Errorf("bad --tohost: %w", err)
		}
		limits.ToHostAddr, limits.HasToHost = v, true
	}
	if maxInst != "" {
		v, err := size(maxInst)
		if err != nil {
			return limits, fmt.Errorf("bad --maxinst: %w", err)
		}
		limits.MaxRetired = v
	}
	return limits, nil
}

func runServer(sys *system.System, path string, shm bool) int {
	d := &server.Dispatcher{Sys: sys, DumpMemory: func() error {
		return os.WriteFile("memory.dump", sys.Memory.Raw(), 0o644)
	}}
	var err error
	if shm {
		var region *server.ShmRegion
		region, err = server.OpenShm(path)
		if err == nil {
			defer region.Close()
			err = server.ServeShm(d, region)
		}
	} else {
		err = server.ServeTCP(d, path)
	}
	if err != nil {
		slog.Error(err.Error())
		return exitInternal
	}
	return exitOK
}

func runBatch(sys *system.System, limits hart.Limits, tracer *trace.Sink,
	deterministic, seedStr, snapPeriod, snapDir string, quitAny bool) int {
	cfg := scheduler.Config{
		Mode:          scheduler.FreeRun,
		Limits:        limits,
		QuitOnAnyHart: quitAny,
	}

	if deterministic != "" {
		lo, hi, single, err := parseDeterministicArg(deterministic)
		if err != nil {
			slog.Error(err.Error())
			return exitInternal
		}
		cfg.Lo, cfg.Hi = scheduler.ParseDeterministic(lo, hi, single)
		if cfg.Hi > 0 {
			cfg.Mode = scheduler.Deterministic
		}
		seed, err := size(seedStr)
		if err != nil {
			slog.Error(fmt.Sprintf("bad --seed %q", seedStr))
			return exitInternal
		}
		cfg.Seed = int64(seed)
	}

	if snapPeriod != "" {
		period, err := size(snapPeriod)
		if err != nil {
			slog.Error(fmt.Sprintf("bad --snapshotperiod %q", snapPeriod))
			return exitInternal
		}
		cfg.SnapshotPeriod = period
		cfg.OnCheckpoint = func(totalRetired uint64) {
			dir := fmt.Sprintf("%s.%d", snapDir, totalRetired)
			if err := snapshot.Save(dir, sys, snapshot.Gzip); err != nil {
				slog.Error("snapshot failed", "dir", dir, "err", err.Error())
				return
			}
			slog.Info("snapshot written", "dir", dir, "retired", totalRetired)
		}
	}

	if tracer != nil {
		cfg.OnStep = func(idx int, outcome hart.Outcome) {
			h := sys.Harts[idx]
			raw, name := h.LastInst()
			trapped, cause := h.LastTrap()
			tracer.WriteRecord(trace.Record{
				Hart: idx, Index: h.Retired(), PC: h.LastPC(), NextPC: h.PC,
				Raw: raw, Name: name, Trapped: trapped, Cause: cause,
			})
		}
	}

	results := scheduler.New(sys, cfg).Run()
	return exitCode(sys, limits, results)
}

// parseDeterministicArg splits the raw --deterministic value into its
// lo:hi or single-token form.
func parseDeterministicArg(s string) (lo, hi uint64, single bool, err error) {
	if i := strings.IndexByte(s, ':'); i >= 0 {
		lo, err = size(s[:i])
		if err != nil {
			return 0, 0, false, fmt.Errorf("bad --deterministic %q", s)
		}
		hi, err = size(s[i+1:])
		if err != nil || hi < lo {
			return 0, 0, false, fmt.Errorf("bad --deterministic %q", s)
		}
		return lo, hi, false, nil
	}
	hi, err = size(s)
	if err != nil {
		return 0, 0, false, fmt.Errorf("bad --deterministic %q", s)
	}
	return 0, hi, true, nil
}

// exitCode folds the per-hart terminal outcomes into the process exit
// code: a tohost stop reads the stored value (1 is success); every other
// clean stop is success.
func exitCode(sys *system.System, limits hart.Limits, results []scheduler.Result) int {
	code := exitOK
	for _, r := range results {
		slog.Info("hart stopped", "hart", r.Hart, "outcome", r.Outcome.String())
		if r.Outcome == hart.HitToHost && limits.HasToHost {
			v, err := sys.Memory.Read(limits.ToHostAddr, 8)
			if err != nil {
				return exitInternal
			}
			if v != 1 {
				code = exitFail
			}
		}
	}
	return code
}
