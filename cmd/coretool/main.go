// Copyright 2023 Sneller, Inc.
//
//  Licensed under the Apache License, Version 2.0 (the "License");
//  you may not use this file except in compliance with the License.
//  You may obtain a copy of the License at
//
//    http://www.apache.org/licenses/LICENSE-2.0
//
//  Unless required by applicable law or agreed to in writing, software
//  distributed under the License is distributed on an "AS IS" BASIS,
//  WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
//  See the License for the specific language governing permissions and
//  limitations under the License.

// Command coretool drives a merge-tree table directly from the shell:
// insert a JSON-lines file, select back the rows it holds, or force a
// merge of its active parts. It exists to exercise mtree and stream
// end to end without a server in front of them.
package main

import (
	"flag"
	"fmt"
	"os"
)

var (
	dashv   bool
	dashh   bool
	dashdir string
)

func init() {
	flag.BoolVar(&dashv, "v", false, "verbose")
	flag.BoolVar(&dashh, "h", false, "show usage help")
	flag.StringVar(&dashdir, "dir", "./coretool-data", "table directory")
}

func exitf(f string, args ...interface{}) {
	fmt.Fprintf(os.Stderr, f+"\n", args...)
	os.Exit(1)
}

func usage() {
	fmt.Fprintf(os.Stderr, "usage:\n")
	fmt.Fprintf(os.Stderr, "    %s [-dir <path>] insert <rows.json>\n", os.Args[0])
	fmt.Fprintf(os.Stderr, "        insert one JSON-lines file of rows as a new part\n")
	fmt.Fprintf(os.Stderr, "    %s [-dir <path>] select [column...]\n", os.Args[0])
	fmt.Fprintf(os.Stderr, "        scan every active part, printing the requested columns (default: all)\n")
	fmt.Fprintf(os.Stderr, "    %s [-dir <path>] merge\n", os.Args[0])
	fmt.Fprintf(os.Stderr, "        merge every active part into one\n")
	fmt.Fprintf(os.Stderr, "    %s [-dir <path>] gc\n", os.Args[0])
	fmt.Fprintf(os.Stderr, "        run one GC pass: purge quarantined parts older than 24h\n")
	fmt.Fprintf(os.Stderr, "flag usage:\n")
	flag.Usage()
}

func main() {
	flag.Parse()
	args := flag.Args()
	if len(args) == 0 || dashh {
		usage()
		os.Exit(1)
	}

	if err := os.MkdirAll(dashdir, 0o755); err != nil {
		exitf("mkdir %s: %s", dashdir, err)
	}

	switch args[0] {
	case "insert":
		if len(args) != 2 {
			exitf("usage: insert <rows.json>")
		}
		runInsert(dashdir, args[1])
	case "select":
		runSelect(dashdir, args[1:])
	case "merge":
		runMerge(dashdir)
	case "gc":
		runGC(dashdir)
	default:
		exitf("unknown subcommand %q", args[0])
	}
}
