// Command flashbench is a sequential/random/mixed throughput
// micro-benchmark against a flash.File-backed image, driven through
// flash.Device.Read so it measures the actual I/O path the record
// layer uses.
package main

import (
	"flag"
	"fmt"
	"math/rand"
	"os"
	"sync"
	"sync/atomic"
	"time"

	"github.com/google/pblog/flash"
)

var (
	mode     = flag.String("mode", "seq", "seq | rand | mix-shared | mix-split")
	filePath = flag.String("file", "flash.img", "flash image file to read")
	duration = flag.Duration("dur", 15*time.Second, "run time")
	seqBS    = flag.Int64("seqbs", 1<<20, "sequential block size (bytes)")
	randBS   = flag.Int64("randbs", 4<<10, "random block size (bytes)")
	randRate = flag.Int("randrate", 0, "limit random reads per second (0 = unlimited)")
	randSeed = flag.Int64("seed", time.Now().UnixNano(), "PRNG seed")
)

func main() {
	flag.Parse()

	info, err := os.Stat(*filePath)
	if err != nil {
		fmt.Fprintf(os.Stderr, "stat: %v\n", err)
		os.Exit(1)
	}
	fileSize := info.Size()

	switch *mode {
	case "seq":
		runSeq(fileSize)
	case "rand":
		runRand(fileSize)
	case "mix-shared":
		runMixed(fileSize, false)
	case "mix-split":
		runMixed(fileSize, true)
	default:
		fmt.Fprintf(os.Stderr, "unknown mode %q\n", *mode)
		os.Exit(1)
	}
}

func openRO(fileSize int64) *flash.File {
	dev, err := flash.OpenFile(*filePath, fileSize)
	if err != nil {
		fmt.Fprintf(os.Stderr, "open: %v\n", err)
		os.Exit(1)
	}
	return dev
}

func mib(b int64, d time.Duration) float64 {
	return float64(b) / (1024 * 1024) / d.Seconds()
}

func runSeq(fileSize int64) {
	dev := openRO(fileSize)
	defer dev.Close() // nolint:errcheck

	buf := make([]byte, *seqBS)
	deadline := time.Now().Add(*duration)
	var reads int64

	for time.Now().Before(deadline) {
		for off := int64(0); off < fileSize && time.Now().Before(deadline); off += *seqBS {
			if _, err := dev.Read(off, buf); err != nil {
				fmt.Fprintf(os.Stderr, "seq read: %v\n", err)
				os.Exit(1)
			}
			reads++
		}
	}

	total := reads * *seqBS
	fmt.Printf("Sequential: %.2f MiB/s (%d reads)\n", mib(total, *duration), reads)
}

func runRand(fileSize int64) {
	dev := openRO(fileSize)
	defer dev.Close() // nolint:errcheck

	buf := make([]byte, *randBS)
	r := rand.New(rand.NewSource(*randSeed))
	deadline := time.Now().Add(*duration)
	var reads int64

	var ticker *time.Ticker
	if *randRate > 0 {
		ticker = time.NewTicker(time.Second / time.Duration(*randRate))
		defer ticker.Stop()
	}

	for time.Now().Before(deadline) {
		if ticker != nil {
			<-ticker.C
		}
		off := r.Int63n(fileSize - *randBS)
		if _, err := dev.Read(off, buf); err != nil {
			fmt.Fprintf(os.Stderr, "rand read: %v\n", err)
			os.Exit(1)
		}
		reads++
	}

	total := reads * *randBS
	fmt.Printf("Random: %.2f MiB/s (%d reads)\n", mib(total, *duration), reads)
}

func runMixed(fileSize int64, splitFD bool) {
	seqDev := openRO(fileSize)
	defer seqDev.Close() // nolint:errcheck
	randDev := seqDev
	if splitFD {
		randDev = openRO(fileSize) // second handle onto the same image
		defer randDev.Close()      // nolint:errcheck
	}

	var seqBytes, randBytes int64
	deadline := time.Now().Add(*duration)
	r := rand.New(rand.NewSource(*randSeed))
	var wg sync.WaitGroup

	wg.Add(1)
	go func() {
		defer wg.Done()
		buf := make([]byte, *seqBS)
		for time.Now().Before(deadline) {
			for off := int64(0); off < fileSize && time.Now().Before(deadline); off += *seqBS {
				if _, err := seqDev.Read(off, buf); err != nil {
					fmt.Fprintf(os.Stderr, "seq read: %v\n", err)
					os.Exit(1)
				}
				atomic.AddInt64(&seqBytes, *seqBS)
			}
		}
	}()

	var ticker *time.Ticker
	if *randRate > 0 {
		ticker = time.NewTicker(time.Second / time.Duration(*randRate))
		defer ticker.Stop()
	}

	wg.Add(1)
	go func() {
		defer wg.Done()
		buf := make([]byte, *randBS)
		for time.Now().Before(deadline) {
			if ticker != nil {
				<-ticker.C
			}
			off := r.Int63n(fileSize - *randBS)
			if _, err := randDev.Read(off, buf); err != nil {
				fmt.Fprintf(os.Stderr, "rand read: %v\n", err)
				os.Exit(1)
			}
			atomic.AddInt64(&randBytes, *randBS)
		}
	}()

	wg.Wait()

	fmt.Printf("%s: Seq %.2f MiB/s  Rand %.2f MiB/s\n",
		map[bool]string{false: "Mixed-shared", true: "Mixed-split"}[splitFD],
		mib(seqBytes, *duration),
		mib(randBytes, *duration),
	)
}
