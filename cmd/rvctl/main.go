/*
 * rvsim - External-control client.
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

// rvctl is a thin client for a running simulator's external-control
// server: each subcommand sends one wire-protocol request over TCP and
// prints the reply. It exists for poking at a live session from a shell;
// a real verification test-bench speaks the protocol directly.
package main

import (
	"encoding/binary"
	"fmt"
	"net"
	"os"
	"strings"

	"github.com/spf13/cobra"

	config "github.com/virtcore/rvsim/config/configparser"
	"github.com/virtcore/rvsim/rv/csr"
	"github.com/virtcore/rvsim/rv/server"
)

type client struct {
	conn net.Conn
}

// dial resolves the --portfile (written by the simulator's --server flag)
// or an explicit --connect host:port.
func dial(portFile, connect string) (*client, error) {
	addr := connect
	if addr == "" {
		data, err := os.ReadFile(portFile)
		if err != nil {
			return nil, fmt.Errorf("rvctl: reading port file: %w", err)
		}
		addr = strings.TrimSpace(string(data))
	}
	conn, err := net.Dial("tcp", addr)
	if err != nil {
		return nil, fmt.Errorf("rvctl: %w", err)
	}
	return &client{conn: conn}, nil
}

func (c *client) roundTrip(req server.Request) (server.Reply, error) {
	if err := server.EncodeRequest(c.conn, req); err != nil {
		return server.Reply{}, err
	}
	rep, err := server.DecodeReply(c.conn)
	if err != nil {
		return server.Reply{}, err
	}
	if rep.Type == server.TypeInvalid {
		return rep, fmt.Errorf("rvctl: server rejected the request")
	}
	return rep, nil
}

func parseResource(s string) (server.Resource, uint64, error) {
	low := strings.ToLower(s)
	switch {
	case low == "pc":
		return server.ResourcePC, 0, nil
	case strings.HasPrefix(low, "x"):
		n, err := config.ParseSize(low[1:])
		if err == nil && n < 32 {
			return server.ResourceXReg, n, nil
		}
	case strings.HasPrefix(low, "f"):
		n, err := config.ParseSize(low[1:])
		if err == nil && n < 32 {
			return server.ResourceFReg, n, nil
		}
	}
	if n, ok := csr.ByName(low); ok {
		return server.ResourceCSR, uint64(n), nil
	}
	if strings.HasPrefix(low, "mem:") {
		addr, err := config.ParseSize(low[4:])
		if err != nil {
			return 0, 0, fmt.Errorf("bad memory address %q", s)
		}
		return server.ResourceMemory, addr, nil
	}
	return 0, 0, fmt.Errorf("unknown resource %q (want pc, xN, fN, a csr name, or mem:ADDR)", s)
}

func main() {
	var portFile, connect string
	var hartIdx uint32

	root := &cobra.Command{
		Use:   "rvctl",
		Short: "Drive a running rvsim external-control server",
	}
	root.PersistentFlags().StringVar(&portFile, "portfile", "rvsim.port", "File the simulator wrote its address to")
	root.PersistentFlags().StringVar(&connect, "connect", "", "Explicit host:port, overriding --portfile")
	root.PersistentFlags().Uint32Var(&hartIdx, "hart", 0, "Hart index")

	withClient := func(fn func(c *client, args []string) error) func(*cobra.Command, []string) error {
		return func(cmd *cobra.Command, args []string) error {
			c, err := dial(portFile, connect)
			if err != nil {
				return err
			}
			defer c.conn.Close()
			return fn(c, args)
		}
	}

	root.AddCommand(&cobra.Command{
		Use:   "peek <resource>",
		Short: "Read a register, CSR, pc, or mem:ADDR",
		Args:  cobra.ExactArgs(1),
		RunE: withClient(func(c *client, args []string) error {
			res, addr, err := parseResource(args[0])
			if err != nil {
				return err
			}
			rep, err := c.roundTrip(server.Request{
				Hart: hartIdx, Type: server.TypePeek, Resource: res, Address: addr, Size: 8,
			})
			if err != nil {
				return err
			}
			fmt.Printf("%#x\n", rep.Value)
			return nil
		}),
	})

	root.AddCommand(&cobra.Command{
		Use:   "poke <resource> <value>",
		Short: "Write a register, CSR, pc, or mem:ADDR, bypassing write-masks",
		Args:  cobra.ExactArgs(2),
		RunE: withClient(func(c *client, args []string) error {
			res, addr, err := parseResource(args[0])
			if err != nil {
				return err
			}
			v, err := config.ParseSize(args[1])
			if err != nil {
				return err
			}
			_, err = c.roundTrip(server.Request{
				Hart: hartIdx, Type: server.TypePoke, Resource: res, Address: addr, Value: v, Size: 8,
			})
			return err
		}),
	})

	root.AddCommand(&cobra.Command{
		Use:   "step [n]",
		Short: "Retire n instructions (default 1)",
		Args:  cobra.MaximumNArgs(1),
		RunE: withClient(func(c *client, args []string) error {
			n := uint64(1)
			if len(args) == 1 {
				v, err := config.ParseSize(args[0])
				if err != nil {
					return err
				}
				n = v
			}
			for i := uint64(0); i < n; i++ {
				rep, err := c.roundTrip(server.Request{Hart: hartIdx, Type: server.TypeStep})
				if err != nil {
					return err
				}
				fmt.Printf("pc=%#x opcode=%#x outcome=%d deltas=%d\n", rep.Address, rep.Value, rep.Flags, rep.Size)
			}
			return nil
		}),
	})

	root.AddCommand(&cobra.Command{
		Use:   "reset [pc]",
		Short: "Reset the hart, optionally with a new reset PC",
		Args:  cobra.MaximumNArgs(1),
		RunE: withClient(func(c *client, args []string) error {
			var pc uint64
			if len(args) == 1 {
				v, err := config.ParseSize(args[0])
				if err != nil {
					return err
				}
				pc = v
			}
			_, err := c.roundTrip(server.Request{Hart: hartIdx, Type: server.TypeReset, Address: pc})
			return err
		}),
	})

	root.AddCommand(&cobra.Command{
		Use:   "translate <vaddr>",
		Short: "Translate a virtual address under the hart's current context",
		Args:  cobra.ExactArgs(1),
		RunE: withClient(func(c *client, args []string) error {
			va, err := config.ParseSize(args[0])
			if err != nil {
				return err
			}
			rep, err := c.roundTrip(server.Request{Hart: hartIdx, Type: server.TypeTranslate, Address: va})
			if err != nil {
				return err
			}
			fmt.Printf("%#x -> %#x\n", va, rep.Value)
			return nil
		}),
	})

	mcmCmd := &cobra.Command{Use: "mcm", Short: "Feed the memory-consistency checker"}
	mcmSub := func(use string, typ server.Type, needStoreTag bool) *cobra.Command {
		var tag, storeTag, size uint64
		cmd := &cobra.Command{
			Use:   use + " <pa> <data>",
			Short: "Send " + use + " for an in-flight instruction tag",
			Args:  cobra.ExactArgs(2),
			RunE: withClient(func(c *client, args []string) error {
				pa, err := config.ParseSize(args[0])
				if err != nil {
					return err
				}
				data, err := config.ParseSize(args[1])
				if err != nil {
					return err
				}
				req := server.Request{
					Hart: hartIdx, Type: typ, InstrTag: tag,
					Address: pa, Value: data, Size: uint32(size),
				}
				if needStoreTag {
					binary.LittleEndian.PutUint64(req.Payload[:8], storeTag)
				}
				_, err = c.roundTrip(req)
				return err
			}),
		}
		cmd.Flags().Uint64Var(&tag, "tag", 0, "Instruction tag")
		cmd.Flags().Uint64Var(&size, "size", 8, "Access size in bytes")
		if needStoreTag {
			cmd.Flags().Uint64Var(&storeTag, "store-tag", 0, "Forwarding store's tag")
		}
		return cmd
	}
	mcmCmd.AddCommand(
		mcmSub("insert", server.TypeMcmInsert, false),
		mcmSub("read", server.TypeMcmRead, false),
		mcmSub("bypass", server.TypeMcmBypass, true),
	)
	root.AddCommand(mcmCmd)

	root.AddCommand(&cobra.Command{
		Use:   "quit",
		Short: "Terminate the simulator session",
		Args:  cobra.NoArgs,
		RunE: withClient(func(c *client, args []string) error {
			_, err := c.roundTrip(server.Request{Hart: hartIdx, Type: server.TypeQuit})
			return err
		}),
	})

	if err := root.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}
