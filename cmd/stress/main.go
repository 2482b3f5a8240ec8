/*
 * Lazystore - Lazy Storage Collections
 *
 * Copyright Flow Foundation
 *
 * Licensed under the Apache License, Version 2.0 (the "License");
 * you may not use this file except in compliance with the License.
 * You may obtain a copy of the License at
 *
 *   http://www.apache.org/licenses/LICENSE-2.0
 *
 * Unless required by applicable law or agreed to in writing, software
 * distributed under the License is distributed on an "AS IS" BASIS,
 * WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
 * See the License for the specific language governing permissions and
 * limitations under the License.
 */

package main

import (
	"flag"
	"fmt"
	"io"
	"os"
	"os/signal"
	"strconv"
	"strings"
	"syscall"
	"time"

	"go.uber.org/zap"

	"github.com/onflow/lazystore"
	"github.com/onflow/lazystore/leveldbledger"
	"github.com/onflow/lazystore/pebbleledger"
	"github.com/onflow/lazystore/test_utils"
)

const maxStatusLength = 128

type Status interface {
	Write()
}

func writeStatus(status string) {
	// Clear old status
	s := fmt.Sprintf("\r%s\r", strings.Repeat(" ", maxStatusLength))
	_, _ = io.WriteString(os.Stdout, s)

	// Write new status
	_, _ = io.WriteString(os.Stdout, status)
}

func updateStatus(sigc <-chan os.Signal, status Status) {

	status.Write()

	ticker := time.NewTicker(3 * time.Second)

	for {
		select {
		case <-ticker.C:
			status.Write()

		case <-sigc:
			status.Write()
			fmt.Fprintf(os.Stdout, "\n")

			ticker.Stop()
			os.Exit(1)
		}
	}
}

type config struct {
	maxLength    uint64
	maxOps       uint64
	opsPerCommit int
	reopenEvery  int
}

// closableLedger is a Ledger that needs to be closed after the test.
type closableLedger interface {
	lazystore.Ledger
	Close() error
}

type nopCloser struct {
	lazystore.Ledger
}

func (nopCloser) Close() error {
	return nil
}

func openLedger(kind string, path string, logger *zap.Logger) (closableLedger, error) {
	switch kind {
	case "mem":
		return nopCloser{test_utils.NewInMemLedger()}, nil

	case "leveldb":
		if path == "" {
			return leveldbledger.OpenInMemory(leveldbledger.WithLogger(logger))
		}
		return leveldbledger.Open(path, leveldbledger.WithLogger(logger))

	case "pebble":
		if path == "" {
			return pebbleledger.OpenInMemory(pebbleledger.WithLogger(logger), pebbleledger.WithSync(false))
		}
		return pebbleledger.Open(path, pebbleledger.WithLogger(logger), pebbleledger.WithSync(false))

	default:
		return nil, fmt.Errorf("unknown ledger %q", kind)
	}
}

func newLogger(verbose bool) (*zap.Logger, error) {
	if verbose {
		return zap.NewDevelopment()
	}
	cfg := zap.NewProductionConfig()
	cfg.OutputPaths = []string{"stderr"}
	return cfg.Build()
}

func main() {

	var typ string
	var ledgerKind string
	var path string
	var seedHex string
	var checksum bool
	var verbose bool
	var cfg config

	flag.StringVar(&typ, "type", "map", "map or vec")
	flag.StringVar(&ledgerKind, "ledger", "mem", "mem, leveldb or pebble")
	flag.StringVar(&path, "path", "", "database directory for leveldb and pebble (default is in-memory)")
	flag.Uint64Var(&cfg.maxLength, "maxlen", 10_000, "max number of elements")
	flag.Uint64Var(&cfg.maxOps, "ops", 0, "number of operations to run (default is until interrupted)")
	flag.IntVar(&cfg.opsPerCommit, "commit", 100, "number of operations per simulated invocation")
	flag.IntVar(&cfg.reopenEvery, "reopen", 10, "number of invocations between reopening and verifying")
	flag.StringVar(&seedHex, "seed", "", "seed for prng in hex (default is Unix time)")
	flag.BoolVar(&checksum, "checksum", false, "checksum every stored value")
	flag.BoolVar(&verbose, "verbose", false, "log ledger access at debug level")

	flag.Parse()

	var seed int64
	if len(seedHex) != 0 {
		var err error
		seed, err = strconv.ParseInt(strings.ReplaceAll(seedHex, "0x", ""), 16, 64)
		if err != nil {
			panic("Failed to parse seed flag (hex string)")
		}
	}

	r = newRand(seed)

	typ = strings.ToLower(typ)

	if typ != "map" && typ != "vec" {
		fmt.Fprintf(os.Stderr, "Please specify type as either \"map\" or \"vec\"")
		return
	}

	if cfg.opsPerCommit <= 0 || cfg.reopenEvery <= 0 {
		fmt.Fprintf(os.Stderr, "Please specify positive -commit and -reopen")
		return
	}

	logger, err := newLogger(verbose)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Failed to create logger: %s\n", err)
		return
	}
	defer func() {
		_ = logger.Sync()
	}()

	ledger, err := openLedger(ledgerKind, path, logger)
	if err != nil {
		logger.Error("failed to open ledger", zap.String("ledger", ledgerKind), zap.Error(err))
		return
	}
	defer func() {
		err := ledger.Close()
		if err != nil {
			logger.Error("failed to close ledger", zap.Error(err))
		}
	}()

	var baseLedger lazystore.Ledger = ledger
	if checksum {
		baseLedger = lazystore.NewChecksumLedger(ledger, uint64(seed))
	}

	storageLogger := zap.NewNop()
	if verbose {
		storageLogger = logger
	}

	storage := lazystore.NewStorage(baseLedger, lazystore.WithLogger(storageLogger))

	sigc := make(chan os.Signal, 1)
	signal.Notify(sigc, os.Interrupt, syscall.SIGTERM)

	logger.Info(
		"starting stress test",
		zap.String("type", typ),
		zap.String("ledger", ledgerKind),
		zap.Bool("checksum", checksum),
		zap.Uint64("maxlen", cfg.maxLength),
		zap.Uint64("ops", cfg.maxOps),
	)

	switch typ {

	case "map":
		status := newMapStatus()

		go updateStatus(sigc, status)

		err = testMap(storage, cfg, status, logger)

	case "vec":
		status := newVecStatus()

		go updateStatus(sigc, status)

		err = testVec(storage, cfg, status, logger)
	}

	fmt.Fprintf(os.Stdout, "\n")

	if err != nil {
		logger.Error("stress test failed", zap.Error(err))
		os.Exit(1)
	}

	logger.Info(
		"stress test finished",
		zap.Int("reads", storage.Reads()),
		zap.Int("writes", storage.Writes()),
		zap.Int("bytesRetrieved", storage.BytesRetrieved()),
		zap.Int("bytesStored", storage.BytesStored()),
	)
}
