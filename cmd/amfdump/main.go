// Package main provides amfdump, a tool that decodes AMF data and prints it.
// It understands Local Shared Object files, remoting packets and bare AMF0
// or AMF3 value streams, and prints them as YAML, JSON or CBOR.
package main

import (
	"bytes"
	"encoding/json"
	"errors"
	"flag"
	"fmt"
	"io"
	"log/slog"
	"os"

	"github.com/fxamacker/cbor/v2"
	"gopkg.in/yaml.v3"

	"github.com/DMA-Software/dma-goamf/internal/config"
	"github.com/DMA-Software/dma-goamf/internal/export"
	"github.com/DMA-Software/dma-goamf/pkg/amf"
	"github.com/DMA-Software/dma-goamf/pkg/amf0"
	"github.com/DMA-Software/dma-goamf/pkg/amf3"
	"github.com/DMA-Software/dma-goamf/pkg/amf3/flex"
	"github.com/DMA-Software/dma-goamf/pkg/lso"
	"github.com/DMA-Software/dma-goamf/pkg/remoting"
)

func main() {
	os.Exit(run(os.Args[1:], os.Stdout, os.Stderr))
}

// run executes the tool and returns the process exit status
func run(args []string, stdout, stderr io.Writer) int {
	cfg, input, err := parseFlags(args, stderr)
	if err != nil {
		if errors.Is(err, flag.ErrHelp) {
			return 0
		}
		fmt.Fprintf(stderr, "amfdump: %v\n", err)
		return 1
	}

	level, _ := cfg.SlogLevel()
	logger := slog.New(slog.NewTextHandler(stderr, &slog.HandlerOptions{Level: level}))

	if err := dump(cfg, input, stdout, logger); err != nil {
		logger.Error("dump failed", "file", input, "error", err)
		return 1
	}
	return 0
}

// parseFlags parses command line arguments. Flags given explicitly override
// the configuration file.
func parseFlags(args []string, stderr io.Writer) (*config.Config, string, error) {
	fs := flag.NewFlagSet("amfdump", flag.ContinueOnError)
	fs.SetOutput(stderr)
	fs.Usage = func() {
		fmt.Fprintf(fs.Output(), "Usage: amfdump [flags] file\n")
		fs.PrintDefaults()
	}

	configPath := fs.String("config", "", "YAML configuration file")
	format := fs.String("format", config.FormatYAML, "Output format: yaml, json or cbor")
	mode := fs.String("mode", config.ModeLSO, "Input mode: lso, amf0, amf3 or remoting")
	useFlex := fs.Bool("flex", false, "Register the Flex externalizable codecs")

	if err := fs.Parse(args); err != nil {
		return nil, "", err
	}
	if fs.NArg() != 1 {
		fs.Usage()
		return nil, "", fmt.Errorf("expected one input file, got %d", fs.NArg())
	}

	cfg := config.Default()
	if *configPath != "" {
		loaded, err := config.Load(*configPath)
		if err != nil {
			return nil, "", err
		}
		cfg = loaded
	}

	fs.Visit(func(f *flag.Flag) {
		switch f.Name {
		case "format":
			cfg.Output.Format = *format
		case "mode":
			cfg.Decode.Mode = *mode
		case "flex":
			cfg.Decode.Flex = *useFlex
		}
	})
	if err := cfg.Validate(); err != nil {
		return nil, "", err
	}
	return cfg, fs.Arg(0), nil
}

// dump decodes the input file and writes the rendered tree
func dump(cfg *config.Config, input string, w io.Writer, logger *slog.Logger) error {
	data, err := os.ReadFile(input)
	if err != nil {
		return err
	}

	var registry *amf3.Registry
	if cfg.Decode.Flex {
		registry = flex.NewRegistry()
		logger.Debug("registered external codecs", "classes", registry.Names())
	}

	tree, err := decode(cfg.Decode.Mode, data, registry, logger)
	if err != nil {
		return err
	}

	out, err := render(cfg.Output.Format, tree)
	if err != nil {
		return fmt.Errorf("render %s: %w", cfg.Output.Format, err)
	}
	_, err = w.Write(out)
	return err
}

func decode(mode string, data []byte, registry *amf3.Registry, logger *slog.Logger) (any, error) {
	switch mode {
	case config.ModeLSO:
		so, err := lso.Unmarshal(data, lso.WithRegistry(registry), lso.WithLogger(logger))
		if err != nil {
			return nil, err
		}
		return map[string]any{
			"name":    so.Name,
			"version": so.Version.String(),
			"body":    export.Elements(so.Body),
		}, nil

	case config.ModeRemoting:
		parser := remoting.NewPacketParser(remoting.WithRegistry(registry), remoting.WithLogger(logger))
		packet, err := parser.Parse(data)
		if err != nil {
			return nil, err
		}
		headers := make([]any, 0, len(packet.Headers))
		for _, h := range packet.Headers {
			headers = append(headers, map[string]any{
				"name":           h.Name,
				"mustUnderstand": h.MustUnderstand,
				"value":          export.Value(h.Value),
			})
		}
		messages := make([]any, 0, len(packet.Messages))
		for _, m := range packet.Messages {
			messages = append(messages, map[string]any{
				"target":   m.TargetURI,
				"response": m.ResponseURI,
				"body":     export.Value(m.Body),
			})
		}
		return map[string]any{
			"version":  uint16(packet.Version),
			"headers":  headers,
			"messages": messages,
		}, nil

	case config.ModeAMF0:
		dec := amf0.NewDecoder(bytes.NewReader(data), amf0.WithRegistry(registry), amf0.WithLogger(logger))
		return decodeStream(dec.Decode)

	case config.ModeAMF3:
		// One decoder so reference tables span the whole stream
		dec := amf3.NewDecoder(bytes.NewReader(data), amf3.WithRegistry(registry), amf3.WithLogger(logger))
		return decodeStream(dec.Decode)
	}
	return nil, fmt.Errorf("unknown mode %q", mode)
}

// decodeStream decodes consecutive top-level values until the input ends
func decodeStream(next func() (amf.Value, error)) (any, error) {
	values := []any{}
	for {
		v, err := next()
		if err == io.EOF {
			return values, nil
		}
		if err != nil {
			return nil, fmt.Errorf("value %d: %w", len(values), err)
		}
		values = append(values, export.Value(v))
	}
}

func render(format string, tree any) ([]byte, error) {
	switch format {
	case config.FormatJSON:
		out, err := json.MarshalIndent(tree, "", "  ")
		if err != nil {
			return nil, err
		}
		return append(out, '\n'), nil
	case config.FormatCBOR:
		opts := cbor.EncOptions{
			// Make sure that maps have ordered keys
			Sort: cbor.SortCoreDeterministic,
		}
		em, err := opts.EncMode()
		if err != nil {
			return nil, err
		}
		return em.Marshal(tree)
	default:
		return yaml.Marshal(tree)
	}
}
