// Package main implements abvkeydump, a debug CLI that drives the abvkey
// library end to end over raw hex subset keys: encode, decode, inspect,
// and validate. It is not a user-facing set-literal parser; it only
// understands newline-separated decimal IDs and raw hex subset keys.
package main

import (
	"bufio"
	"encoding/hex"
	"fmt"
	"os"
	"strconv"
	"strings"

	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
	"github.com/spf13/cobra"

	"github.com/scigolib/abvkey"
	"github.com/scigolib/abvkey/internal/codec"
	"github.com/scigolib/abvkey/internal/errs"
)

func main() {
	var verbose bool

	rootCmd := &cobra.Command{
		Use:   "abvkeydump",
		Short: "Inspect and round-trip abvkey subset keys",
		PersistentPreRun: func(cmd *cobra.Command, args []string) {
			level := zerolog.WarnLevel
			if verbose {
				level = zerolog.DebugLevel
			}
			log.Logger = log.Output(zerolog.ConsoleWriter{Out: os.Stderr}).Level(level)
		},
	}
	rootCmd.PersistentFlags().BoolVarP(&verbose, "verbose", "v", false, "log progress to stderr")

	encodeCmd := &cobra.Command{
		Use:   "encode",
		Short: "Read newline-separated decimal IDs from stdin, print the canonical hex subset key",
		RunE:  runEncode,
	}

	decodeCmd := &cobra.Command{
		Use:   "decode",
		Short: "Read a hex subset key from stdin, print decimal IDs in ascending order",
		RunE:  runDecode,
	}

	inspectCmd := &cobra.Command{
		Use:   "inspect",
		Short: "Read a hex subset key from stdin, print a structural summary",
		RunE:  runInspect,
	}

	validateCmd := &cobra.Command{
		Use:   "validate",
		Short: "Read a hex subset key from stdin, report OK or the canonicity violation",
		RunE:  runValidate,
	}

	rootCmd.AddCommand(encodeCmd, decodeCmd, inspectCmd, validateCmd)
	if err := rootCmd.Execute(); err != nil {
		log.Error().Err(err).Msg("abvkeydump failed")
		os.Exit(1)
	}
}

func runEncode(cmd *cobra.Command, args []string) error {
	scanner := bufio.NewScanner(os.Stdin)
	s := abvkey.NewEmpty()
	count := 0
	for scanner.Scan() {
		line := strings.TrimSpace(scanner.Text())
		if line == "" {
			continue
		}
		id, err := strconv.ParseUint(line, 10, 64)
		if err != nil {
			return fmt.Errorf("abvkeydump: invalid id %q: %w", line, err)
		}
		s.Add(id)
		count++
	}
	if err := scanner.Err(); err != nil {
		return err
	}
	log.Debug().Int("ids_read", count).Msg("building set")

	data, err := s.Encode()
	if err != nil {
		return err
	}
	fmt.Println(hex.EncodeToString(data))
	return nil
}

func runDecode(cmd *cobra.Command, args []string) error {
	data, err := readHexStdin()
	if err != nil {
		return err
	}
	s, err := abvkey.Decode(data)
	if err != nil {
		return err
	}
	ids, err := s.ToSortedIDs()
	if err != nil {
		return err
	}
	for _, id := range ids {
		fmt.Println(id)
	}
	return nil
}

func runInspect(cmd *cobra.Command, args []string) error {
	data, err := readHexStdin()
	if err != nil {
		return err
	}
	root, err := codec.Decode(data)
	if err != nil {
		return err
	}

	fmt.Printf("format_version: %d\n", root.FormatVersion)
	fmt.Printf("global_rare_bit: %d\n", root.RareBit)
	fmt.Printf("cardinality: %d\n", root.Cardinality)
	fmt.Printf("partitions: %d\n", len(root.Partitions))

	for _, part := range root.Partitions {
		fmt.Printf("  partition %d: rare_bit=%d cardinality=%d segments=%d\n",
			part.PartitionID, part.RareBit, part.Cardinality, len(part.Segments))
		for _, seg := range part.Segments {
			kind := "MIX"
			if seg.IsRLE {
				kind = "RLE"
			}
			fmt.Printf("    %s start_bit=%d n_bits=%d cardinality=%d\n",
				kind, seg.StartBit, seg.NBits, seg.Cardinality)
		}
	}
	return nil
}

func runValidate(cmd *cobra.Command, args []string) error {
	data, err := readHexStdin()
	if err != nil {
		return err
	}
	if err := codec.Validate(data); err != nil {
		if ce, ok := err.(*errs.Error); ok {
			fmt.Printf("VIOLATION: %s: %s\n", ce.Kind, ce.Context)
			return nil
		}
		return err
	}
	fmt.Println("OK")
	return nil
}

func readHexStdin() ([]byte, error) {
	scanner := bufio.NewScanner(os.Stdin)
	scanner.Buffer(make([]byte, 1024), 16*1024*1024)
	var line string
	for scanner.Scan() {
		line = strings.TrimSpace(scanner.Text())
		if line != "" {
			break
		}
	}
	if err := scanner.Err(); err != nil {
		return nil, err
	}
	return hex.DecodeString(line)
}
