/*
 * Copyright (c) 2025 by Alexander Drost, Oldenburg, Germany.
 * This file is licensed to you under the Apache License, Version 2.0 (the "License"); you may not use this file except in compliance with the License.  You may obtain a copy of the License at
 *   http://www.apache.org/licenses/LICENSE-2.0
 * Unless required by applicable law or agreed to in writing, software distributed under the License is distributed on an
 * "AS IS" BASIS, WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.  See the License for the specific language governing permissions and limitations under the License.
 */

package main

import (
	"fmt"
	"os"

	"github.com/aledro/docreaderd/internal/cfi"
	"github.com/aledro/docreaderd/internal/version"
)

// cfitool exercises the CFI codec standalone, mirroring the pure-utility
// build the codec also ships in.
func main() {
	args := os.Args
	if len(args) <= 1 {
		usage()
		return
	}
	switch args[1] {
	case "version", "--version", "-v":
		fmt.Println(version.String())
	case "parse":
		if len(args) < 3 {
			usage()
			os.Exit(2)
		}
		c, err := cfi.Parse(args[2])
		if err != nil {
			fmt.Println("Error:", err)
			os.Exit(1)
		}
		fmt.Println("canonical:", c.String())
		fmt.Println("range:", c.IsRange())
		if idx, ok := c.SpineIndex(); ok {
			fmt.Println("spineIndex:", idx)
		}
	case "compare":
		if len(args) < 4 {
			usage()
			os.Exit(2)
		}
		cmp, ok := cfi.CompareStrings(args[2], args[3])
		if !ok {
			fmt.Println("Error: one of the CFIs does not parse")
			os.Exit(1)
		}
		fmt.Println(cmp)
	default:
		usage()
		os.Exit(2)
	}
}

func usage() {
	fmt.Println("cfitool — EPUB Canonical Fragment Identifier utility")
	fmt.Printf("Version: %s\n", version.String())
	fmt.Println()
	fmt.Println("Usage:")
	fmt.Println("  cfitool parse <cfi>            Parse and print canonical form")
	fmt.Println("  cfitool compare <cfi> <cfi>    Print -1/0/1 reading order")
}
