/*
 * Copyright (c) 2025 by Alexander Drost, Oldenburg, Germany.
 * This file is licensed to you under the Apache License, Version 2.0 (the "License"); you may not use this file except in compliance with the License.  You may obtain a copy of the License at
 *   http://www.apache.org/licenses/LICENSE-2.0
 * Unless required by applicable law or agreed to in writing, software distributed under the License is distributed on an
 * "AS IS" BASIS, WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.  See the License for the specific language governing permissions and limitations under the License.
 */

package main

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"github.com/aledro/docreaderd/internal/cache"
	"github.com/aledro/docreaderd/internal/config"
	"github.com/aledro/docreaderd/internal/crash"
	"github.com/aledro/docreaderd/internal/dochandle"
	"github.com/aledro/docreaderd/internal/domain"
	"github.com/aledro/docreaderd/internal/epubbackend"
	applog "github.com/aledro/docreaderd/internal/log"
	"github.com/aledro/docreaderd/internal/pdfbackend"
	"github.com/aledro/docreaderd/internal/telemetry"
	"github.com/aledro/docreaderd/internal/version"
)

func usage() {
	fmt.Println("docreaderd — document reading engine")
	fmt.Printf("Version: %s\n", version.String())
	fmt.Println()
	fmt.Println("Usage:")
	fmt.Println("  docreaderd version|-v|--version              Show version")
	fmt.Println("  docreaderd inspect <file>                    Parse a document and print metadata/TOC as JSON")
	fmt.Println("  docreaderd text <file> <page>                Extract plain text of one page")
	fmt.Println("  docreaderd search <file> <query>             Search a document, print matches as JSON")
	fmt.Println("  docreaderd render <file> <page> <out.png>    Render one page to a PNG file")
	fmt.Println("  docreaderd thumbnail <file> <page> <out.jpg> Render a 256px thumbnail")
}

func main() {
	applog.Init(applog.FromEnv())
	l := applog.WithComponent("cli")
	defer func() { crash.Recover("") }()

	args := os.Args
	l.Debug("start", slog.Int("args", len(args)))
	if len(args) <= 1 {
		usage()
		return
	}

	switch args[1] {
	case "version", "--version", "-v":
		fmt.Println("docreaderd — document reading engine")
		fmt.Println(version.String())
	case "inspect":
		requireArgs(args, 3)
		runInspect(args[2])
	case "text":
		requireArgs(args, 4)
		runText(args[2], mustAtoi(args[3]))
	case "search":
		requireArgs(args, 4)
		runSearch(args[2], strings.Join(args[3:], " "))
	case "render":
		requireArgs(args, 5)
		runRender(args[2], mustAtoi(args[3]), args[4])
	case "thumbnail":
		requireArgs(args, 5)
		runThumbnail(args[2], mustAtoi(args[3]), args[4])
	default:
		usage()
		os.Exit(2)
	}
}

func requireArgs(args []string, n int) {
	if len(args) < n {
		usage()
		os.Exit(2)
	}
}

func mustAtoi(s string) int {
	n, err := strconv.Atoi(s)
	if err != nil {
		fmt.Println("Error: not a number:", s)
		os.Exit(2)
	}
	return n
}

// openCache builds a single-document cache around the given file, the same
// wiring a server process performs per open document.
func openCache(path string) (*cache.Cache, string) {
	l := applog.WithComponent("cli")
	cfg, err := config.Load()
	if err != nil {
		l.Warn("config load failed, using defaults", slog.Any("err", err))
		cfg = config.Defaults()
	}

	abs, _ := filepath.Abs(path)
	id := strings.TrimSuffix(filepath.Base(abs), filepath.Ext(abs))
	h, err := dochandle.FromPath(abs, id)
	if err != nil {
		fatal(err)
	}

	var parser cache.Parser
	var renderer cache.Renderer
	var parsed *domain.ParsedDocument
	switch h.Format() {
	case domain.FormatPDF:
		b, err := pdfbackend.New(h)
		if err != nil {
			fatal(err)
		}
		if parsed, err = b.Parse(); err != nil {
			fatal(err)
		}
		parser, renderer = b, b
	case domain.FormatEPUB:
		b, err := epubbackend.New(h)
		if err != nil {
			fatal(err)
		}
		if parsed, err = b.Parse(); err != nil {
			fatal(err)
		}
		parser, renderer = b, b
	}

	c, err := cache.New(cache.Options{
		ParserCapacity:    cfg.Cache.ParserCapacity,
		RendererCapacity:  cfg.Cache.RendererCapacity,
		RenderCapacity:    cfg.Cache.RenderCapacity,
		StextCapacity:     cfg.Cache.StextCapacity,
		RenderConcurrency: cfg.Cache.RenderConcurrency,
		Timeouts: cache.Timeouts{
			Parse:          time.Duration(cfg.Timeouts.ParseMs) * time.Millisecond,
			ExtractText:    time.Duration(cfg.Timeouts.TextExtractMs) * time.Millisecond,
			StructuredText: time.Duration(cfg.Timeouts.StructuredTextMs) * time.Millisecond,
			Search:         time.Duration(cfg.Timeouts.SearchMs) * time.Millisecond,
			Render:         time.Duration(cfg.Timeouts.RenderMs) * time.Millisecond,
		},
	})
	if err != nil {
		fatal(err)
	}
	c.StoreDocument(id, parsed, parser, renderer)
	telemetry.Event("document_opened", map[string]any{"format": h.Format().String()})
	return c, id
}

func runInspect(path string) {
	c, id := openCache(path)
	parsed, _ := c.Document(id)
	out, err := json.MarshalIndent(parsed, "", "  ")
	if err != nil {
		fatal(err)
	}
	fmt.Println(string(out))
}

func runText(path string, page int) {
	c, id := openCache(path)
	text, err := c.ExtractText(context.Background(), id, page)
	if err != nil {
		fatal(err)
	}
	fmt.Println(text)
}

func runSearch(path, query string) {
	c, id := openCache(path)
	matches, err := c.Search(context.Background(), id, query, domain.SearchOptions{IncludeContext: true})
	if err != nil {
		fatal(err)
	}
	out, err := json.MarshalIndent(matches, "", "  ")
	if err != nil {
		fatal(err)
	}
	fmt.Println(string(out))
}

func runRender(path string, page int, outPath string) {
	c, id := openCache(path)
	data, err := c.Render(context.Background(), id, domain.RenderRequest{
		ItemIndex: page, Scale: 1.0, Format: domain.RenderPNG,
	})
	if err != nil {
		fatal(err)
	}
	if err := os.WriteFile(outPath, data, 0o644); err != nil {
		fatal(err)
	}
	fmt.Println("Rendered page", page, "to", outPath)
}

func runThumbnail(path string, page int, outPath string) {
	c, id := openCache(path)
	data, err := c.RenderThumbnail(context.Background(), id, page, 256)
	if err != nil {
		fatal(err)
	}
	if err := os.WriteFile(outPath, data, 0o644); err != nil {
		fatal(err)
	}
	fmt.Println("Rendered thumbnail for page", page, "to", outPath)
}

func fatal(err error) {
	applog.WithComponent("cli").Error("command failed", slog.Any("err", err))
	fmt.Println("Error:", err)
	os.Exit(1)
}
