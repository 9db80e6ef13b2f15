// Copyright (C) 2022 Sneller, Inc.
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
//
// This program is distributed in the hope that it will be useful,
// but WITHOUT ANY WARRANTY; without even the implied warranty of
// MERCHANTABILITY or FITNESS FOR A PARTICULAR PURPOSE.  See the
// GNU Affero General Public License for more details.
//
// You should have received a copy of the GNU Affero General Public License
// along with this program.  If not, see <http://www.gnu.org/licenses/>.

// Command gst is the Smalltalk image VM's command-line front end: cold-boot
// a fresh image from chunk-text source files, or warm-start an existing
// image and run its systemProcess (§6).
package main

import (
	"bytes"
	"flag"
	"fmt"
	"log"
	"os"

	"github.com/google/uuid"

	"github.com/ZYSF/Smalltalk-Archive/chunktext"
	"github.com/ZYSF/Smalltalk-Archive/config"
	"github.com/ZYSF/Smalltalk-Archive/image"
	"github.com/ZYSF/Smalltalk-Archive/objmem"
	"github.com/ZYSF/Smalltalk-Archive/oop"
	"github.com/ZYSF/Smalltalk-Archive/vm"
)

var (
	dashc        bool
	dashw        bool
	dashimage    string
	dashmaxsteps int
	dashv        bool
	dashconfig   string
	dashcompress bool
	dashchecksum bool

	flagDefaultUsage func()
)

func init() {
	flagDefaultUsage = flag.CommandLine.Usage
	flag.CommandLine.Usage = printHelp

	flag.BoolVar(&dashc, "c", false, "cold-boot from chunk-text source files and write snapshot")
	flag.BoolVar(&dashw, "w", false, "warm-start from an image file and run systemProcess")
	flag.StringVar(&dashimage, "image", "systemImage", "image file to load in -w mode")
	flag.IntVar(&dashmaxsteps, "maxsteps", 1_000_000, "bytecode budget per interpreter time slice")
	flag.BoolVar(&dashv, "v", false, "start the interpreter with tracing enabled")
	flag.StringVar(&dashconfig, "config", "", "optional YAML VMConfig file")
	flag.BoolVar(&dashcompress, "compress", false, "read/write snapshot/-image as a zstd-compressed stream")
	flag.BoolVar(&dashchecksum, "checksum", false, "write/verify a snapshot.b2 blake2b checksum side-file")
}

func printHelp() {
	fmt.Fprintln(os.Stderr, "usage:")
	fmt.Fprintln(os.Stderr, "  gst -c <source-files...>   cold-boot from chunk-text source, write snapshot")
	fmt.Fprintln(os.Stderr, "  gst -w [-image path]       warm-start an image, run systemProcess, write snapshot")
	flagDefaultUsage()
}

func main() {
	flag.Parse()

	cfg := config.Default()
	if dashconfig != "" {
		loaded, err := config.Load(dashconfig)
		if err != nil {
			exit(1, err)
		}
		cfg = loaded
	}

	switch {
	case dashc:
		coldBoot(cfg, flag.Args())
	case dashw:
		warmStart(cfg)
	default:
		flag.CommandLine.Usage()
		os.Exit(1)
	}
}

func exit(code int, err error) {
	fmt.Fprintln(os.Stderr, err)
	os.Exit(code)
}

// coldBoot builds a fresh object memory from chunk-text source files and
// writes it out as snapshot (§6's -c mode).
func coldBoot(cfg config.VMConfig, sources []string) {
	if len(sources) == 0 {
		exit(1, fmt.Errorf("gst: -c requires at least one source file"))
	}

	mem := objmem.NewMemory(cfg.TableCapacity)
	for _, path := range sources {
		f, err := os.Open(path)
		if err != nil {
			exit(1, fmt.Errorf("gst: %w", err))
		}
		warnings, lerr := chunktext.Load(mem, f)
		f.Close()
		for _, w := range warnings {
			log.Printf("gst: %s: %s", path, w)
		}
		if lerr != nil {
			exit(1, fmt.Errorf("gst: %s: %w", path, lerr))
		}
	}

	if err := writeSnapshot(mem); err != nil {
		exit(2, err)
	}
}

// warmStart loads an existing image and runs its systemProcess to
// completion, stamping the transcript with a session id first (§6's -w
// mode).
func warmStart(cfg config.VMConfig) {
	data, err := os.ReadFile(dashimage)
	if err != nil {
		exit(1, fmt.Errorf("gst: %w", err))
	}
	if dashchecksum {
		if err := image.VerifyChecksumFile(dashimage+".b2", data); err != nil {
			exit(1, fmt.Errorf("gst: %w", err))
		}
	}

	var mem *objmem.Memory
	if dashcompress {
		mem, err = image.ReadCompressed(bytes.NewReader(data))
	} else {
		mem, err = image.Read(bytes.NewReader(data))
	}
	if err != nil {
		exit(1, fmt.Errorf("gst: loading %s: %w", dashimage, err))
	}

	process := mem.Global("systemProcess")
	if oop.IsNil(process) {
		exit(1, fmt.Errorf("gst: %s has no systemProcess", dashimage))
	}

	ip := vm.NewInterp(mem)
	ip.SetBlockClass(mem.Global("Block"))
	ip.Trace = dashv || cfg.Trace
	ip.WatchInterrupts()

	transcript, err := os.OpenFile("transcript", os.O_WRONLY|os.O_CREATE|os.O_APPEND, 0o644)
	if err != nil {
		exit(1, fmt.Errorf("gst: %w", err))
	}
	defer transcript.Close()
	ip.Transcript = transcript
	if err := chunktext.WriteChunk(transcript, uuid.New().String()); err != nil {
		exit(1, fmt.Errorf("gst: writing transcript: %w", err))
	}

	for {
		status, err := ip.Run(process, dashmaxsteps)
		if err != nil {
			exit(1, fmt.Errorf("gst: %w", err))
		}
		switch status {
		case vm.StatusFinished:
			if err := writeSnapshot(mem); err != nil {
				exit(2, err)
			}
			return
		case vm.StatusFailed:
			exit(1, fmt.Errorf("gst: systemProcess failed"))
		}
	}
}

// writeSnapshot serializes mem to the fixed "snapshot" filename (and, with
// -checksum, a "snapshot.b2" side-file), per §6's "both modes write
// snapshot on normal exit."
func writeSnapshot(mem *objmem.Memory) error {
	var buf bytes.Buffer
	var err error
	if dashcompress {
		err = image.WriteCompressed(mem, &buf)
	} else {
		err = image.Write(mem, &buf)
	}
	if err != nil {
		return fmt.Errorf("gst: serializing snapshot: %w", err)
	}
	if err := os.WriteFile("snapshot", buf.Bytes(), 0o644); err != nil {
		return fmt.Errorf("gst: writing snapshot: %w", err)
	}
	if dashchecksum {
		if err := image.WriteChecksumFile("snapshot.b2", buf.Bytes()); err != nil {
			return fmt.Errorf("gst: writing snapshot checksum: %w", err)
		}
	}
	return nil
}
