/*
Copyright (c) Facebook, Inc. and its affiliates.

Licensed under the Apache License, Version 2.0 (the "License");
you may not use this file except in compliance with the License.
You may obtain a copy of the License at

    http://www.apache.org/licenses/LICENSE-2.0

Unless required by applicable law or agreed to in writing, software
distributed under the License is distributed on an "AS IS" BASIS,
WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
See the License for the specific language governing permissions and
limitations under the License.
*/

package main

import (
	"context"
	"fmt"
	"os"
	"time"

	"github.com/benbjohnson/clock"
	"github.com/binaryf0x/foxtime/timesync/client"
	"github.com/binaryf0x/foxtime/timesync/query"
	"github.com/davecgh/go-spew/spew"
	"github.com/fatih/color"
	log "github.com/sirupsen/logrus"
	"github.com/spf13/cobra"
	"golang.org/x/term"
)

// RootCmd is a main entry point
var RootCmd = &cobra.Command{
	Use:   "foxtime-query <server>",
	Short: "Measure clock offset against a foxtime server",
	Args:  cobra.ExactArgs(1),
	Run: func(_ *cobra.Command, args []string) {
		ConfigureVerbosity()
		if err := run(args[0]); err != nil {
			fmt.Println(color.RedString("[FAIL]"), err)
			os.Exit(1)
		}
	},
}

// flags
var (
	verbosef      bool
	webTransportf bool
	certHashf     string
	timeoutf      time.Duration
	countf        int
	intervalf     time.Duration
	checkf        string
)

func init() {
	RootCmd.PersistentFlags().BoolVarP(&verbosef, "verbose", "v", false, "verbose output")
	RootCmd.Flags().BoolVar(&webTransportf, "web-transport", false, "use WebTransport datagrams instead of HTTP")
	RootCmd.Flags().StringVar(&certHashf, "cert-hash", "", "base64 SHA-256 hash of the WebTransport server certificate")
	RootCmd.Flags().DurationVarP(&timeoutf, "timeout", "t", 5*time.Second, "probe timeout")
	RootCmd.Flags().IntVarP(&countf, "count", "c", 1, "number of probes to send")
	RootCmd.Flags().DurationVarP(&intervalf, "interval", "i", time.Second, "interval between probes")
	RootCmd.Flags().StringVar(&checkf, "check", "", query.CheckHelp)
}

// ConfigureVerbosity configures log verbosity based on parsed flags
func ConfigureVerbosity() {
	log.SetLevel(log.InfoLevel)
	if verbosef {
		log.SetLevel(log.DebugLevel)
	}
}

func progressLine(format string, args ...interface{}) {
	if !term.IsTerminal(int(os.Stdout.Fd())) {
		return
	}
	fmt.Printf("\u001b[1000D")
	fmt.Printf(format, args...)
}

func run(server string) error {
	if countf < 1 {
		return fmt.Errorf("count must be positive")
	}
	hash, err := client.DecodeCertHash(certHashf)
	if err != nil {
		return fmt.Errorf("invalid cert hash: %w", err)
	}
	var check *query.Check
	if checkf != "" {
		if check, err = query.NewCheck(checkf); err != nil {
			return fmt.Errorf("invalid check: %w", err)
		}
	}
	cfg := &query.Config{
		Server:       server,
		WebTransport: webTransportf,
		CertHash:     hash,
		Timeout:      timeoutf,
		Count:        countf,
		Interval:     intervalf,
	}
	tb := client.NewTimebase(clock.New())
	p, target, err := query.NewProber(cfg, tb)
	if err != nil {
		return err
	}
	defer p.Close()

	results := query.Run(context.Background(), cfg, tb, p, target, func(r query.Result) {
		if verbosef {
			spew.Dump(r)
		}
		if countf > 1 {
			progressLine("probe %d/%d", r.Seq, countf)
		}
	})
	if countf == 1 {
		if results[0].Err == nil {
			query.PrintResult(os.Stdout, results[0])
		}
	} else {
		progressLine("\n")
		query.PrintTable(os.Stdout, results)
		query.PrintSummary(os.Stdout, target, query.Summarize(results))
	}
	if err := query.Failed(results); err != nil {
		return err
	}
	if check == nil {
		return nil
	}
	ok, err := check.Eval(results)
	if err != nil {
		return fmt.Errorf("evaluating check: %w", err)
	}
	if !ok {
		return fmt.Errorf("check %q failed", checkf)
	}
	fmt.Println(color.GreenString("[ OK ]"), checkf)
	return nil
}

// Execute is the main entry point for CLI interface
func Execute() {
	if err := RootCmd.Execute(); err != nil {
		fmt.Println(err)
		os.Exit(1)
	}
}

func main() {
	Execute()
}
