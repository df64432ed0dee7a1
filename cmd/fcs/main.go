// Command fcs exercises the FPGA crypto service from the command line. By
// default it talks to a loopback simulation; pass -window to attach to a real
// shared-memory window.
package main

import (
	"encoding/hex"
	"flag"
	"fmt"
	"os"
	"strconv"
	"time"

	"golang.org/x/sync/errgroup"

	fcs "github.com/ehrlich-b/go-fcs"
	"github.com/ehrlich-b/go-fcs/adapter/loopback"
	"github.com/ehrlich-b/go-fcs/adapter/shmem"
	"github.com/ehrlich-b/go-fcs/internal/logging"
	"github.com/ehrlich-b/go-fcs/svc"
)

func usage() {
	fmt.Fprintf(os.Stderr, `Usage: fcs [flags] <op> [args]

Operations:
  rng                     Print 32 random bytes
  chipid                  Print the 64-bit chip identity
  sha384                  Print the ROM patch digest
  provision <size>        Print provisioning data
  encrypt <file>          Encrypt a file, ciphertext to stdout
  decrypt <file>          Decrypt a file, plaintext to stdout
  auth <file>             Authenticate a firmware image
  cert <word> <file>      Send a counter-set certificate
  counter <type> <val>    Update a preauthorized counter
  teardown <sid>          Tear down a SigMA session
  subkey <file> <cap>     Request an attestation subkey
  attcert <request>       Fetch an attestation certificate
  reload <request>        Regenerate an attestation certificate

Flags:
`)
	flag.PrintDefaults()
}

func main() {
	var (
		window   = flag.String("window", "", "Shared-memory window path (loopback simulation when empty)")
		initWin  = flag.Bool("init", false, "Initialize the window header (first attach)")
		verbose  = flag.Bool("v", false, "Verbose output")
		parallel = flag.Int("parallel", 1, "Concurrent repetitions of the operation")
		count    = flag.Int("count", 1, "Repetitions per worker")
		stats    = flag.Bool("stats", false, "Print metrics after the run")
	)
	flag.Usage = usage
	flag.Parse()

	if flag.NArg() < 1 {
		usage()
		os.Exit(2)
	}

	logConfig := logging.DefaultConfig()
	if *verbose {
		logConfig.Level = logging.LevelDebug
	}
	logger := logging.NewLogger(logConfig)
	logging.SetDefault(logger)

	var ch svc.Channel
	if *window != "" {
		c, err := shmem.Open(shmem.Config{Path: *window, Init: *initWin})
		if err != nil {
			logger.Error("failed to open shared window", "path", *window, "error", err)
			os.Exit(1)
		}
		ch = c
		logger.Info("attached to shared window", "path", *window)
	} else {
		ch = loopback.New(loopback.Config{})
		logger.Info("using loopback simulation")
	}

	client := fcs.Open(ch, nil)
	defer client.Close()

	op := flag.Arg(0)
	args := flag.Args()[1:]

	start := time.Now()
	var g errgroup.Group
	for i := 0; i < *parallel; i++ {
		g.Go(func() error {
			for j := 0; j < *count; j++ {
				if err := runOp(client, op, args); err != nil {
					return err
				}
			}
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		logger.Error("operation failed", "op", op, "error", err)
		if mbox, ok := fcs.MboxError(err); ok {
			logger.Error("service mailbox error", "mbox", fmt.Sprintf("0x%x", mbox))
		}
		os.Exit(1)
	}

	if *stats {
		snap := client.MetricsSnapshot()
		fmt.Fprintf(os.Stderr, "ops: %d  errors: %.1f%%  avg: %s  p99: %s  elapsed: %s\n",
			snap.TotalOps, snap.ErrorRate,
			time.Duration(snap.AvgLatencyNs), time.Duration(snap.LatencyP99Ns),
			time.Since(start).Round(time.Millisecond))
	}
}

func runOp(client *fcs.Client, op string, args []string) error {
	switch op {
	case "rng":
		b, err := client.RandomNumber()
		if err != nil {
			return err
		}
		fmt.Println(hex.EncodeToString(b))

	case "chipid":
		id, err := client.ChipID()
		if err != nil {
			return err
		}
		fmt.Printf("0x%016x\n", id)

	case "sha384":
		b, err := client.RomPatchSha384()
		if err != nil {
			return err
		}
		fmt.Println(hex.EncodeToString(b))

	case "provision":
		size, err := argInt(args, 0, "size")
		if err != nil {
			return err
		}
		b, err := client.GetProvisionData(size)
		if err != nil {
			return err
		}
		fmt.Println(hex.EncodeToString(b))

	case "encrypt", "decrypt":
		src, err := argFile(args, 0)
		if err != nil {
			return err
		}
		var out []byte
		if op == "encrypt" {
			out, err = client.Encrypt(src, fcs.EncMaxSize)
		} else {
			out, err = client.Decrypt(src, fcs.DecMaxSize)
		}
		if err != nil {
			return err
		}
		_, err = os.Stdout.Write(out)
		return err

	case "auth":
		image, err := argFile(args, 0)
		if err != nil {
			return err
		}
		if err := client.AuthenticateImage(image); err != nil {
			return err
		}
		fmt.Println("image accepted")

	case "cert":
		word, err := argInt(args, 0, "test word")
		if err != nil {
			return err
		}
		cert, err := argFile(args, 1)
		if err != nil {
			return err
		}
		status, err := client.SendCertificate(uint32(word), cert)
		if err != nil {
			if status != fcs.InvalidPollStatus {
				fmt.Fprintf(os.Stderr, "poll status: 0x%x\n", status)
			}
			return err
		}
		fmt.Println("certificate accepted")

	case "counter":
		ctype, err := argInt(args, 0, "counter type")
		if err != nil {
			return err
		}
		value, err := argInt(args, 1, "value")
		if err != nil {
			return err
		}
		return client.CounterSetPreauthorized(uint32(ctype), uint32(value), 0)

	case "teardown":
		sid, err := argInt(args, 0, "session ID")
		if err != nil {
			return err
		}
		return client.SigmaTeardown(uint32(sid))

	case "subkey":
		cmd, err := argFile(args, 0)
		if err != nil {
			return err
		}
		rspCap, err := argInt(args, 1, "response capacity")
		if err != nil {
			return err
		}
		rsp, err := client.AttestationSubkey(0, cmd, rspCap)
		if err != nil {
			return err
		}
		fmt.Println(hex.EncodeToString(rsp))

	case "attcert":
		req, err := argInt(args, 0, "request")
		if err != nil {
			return err
		}
		cert, err := client.AttestationCertificate(uint32(req))
		if err != nil {
			return err
		}
		fmt.Println(hex.EncodeToString(cert))

	case "reload":
		req, err := argInt(args, 0, "request")
		if err != nil {
			return err
		}
		return client.CertificateReload(uint32(req))

	default:
		return fmt.Errorf("unknown operation %q", op)
	}
	return nil
}

func argInt(args []string, i int, name string) (int, error) {
	if i >= len(args) {
		return 0, fmt.Errorf("missing %s argument", name)
	}
	n, err := strconv.ParseInt(args[i], 0, 64)
	if err != nil {
		return 0, fmt.Errorf("invalid %s %q: %w", name, args[i], err)
	}
	return int(n), nil
}

func argFile(args []string, i int) ([]byte, error) {
	if i >= len(args) {
		return nil, fmt.Errorf("missing file argument")
	}
	return os.ReadFile(args[i])
}
