// Package main is a CLI utility that stitches mp4 segments into a single file.
package main

import (
	"context"
	"flag"
	"fmt"
	"log"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"time"

	"stitcher/pkg/concat"
	stitchlog "stitcher/pkg/log"
	"stitcher/pkg/storage"
)

const usage = `stitch mp4 segments into a single file
examples:
  stitch -o out.mp4 seg1.mp4 seg2.mp4
  stitch -probe file.mp4
  stitch -env configs/env.yaml -o out seg1.mp4 seg2.mp4
  stitch -env configs/env.yaml -logs`

func main() {
	if err := run(); err != nil {
		log.Fatal(err)
	}
}

func run() error {
	envPath := flag.String("env", "", "path to env.yaml, enables the managed output store")
	output := flag.String("o", "", "output file or job name")
	probe := flag.Bool("probe", false, "print file info and exit")
	logs := flag.Bool("logs", false, "print recent logs from the managed store and exit")
	flag.Parse()
	args := flag.Args()

	if *logs {
		if *envPath == "" {
			fmt.Println(usage)
			return nil
		}
		return printLogs(*envPath)
	}

	if *probe {
		if len(args) != 1 {
			fmt.Println(usage)
			return nil
		}
		return probeFile(args[0])
	}

	if *output == "" || len(args) == 0 {
		fmt.Println(usage)
		return nil
	}

	inputs := make([][]byte, len(args))
	for i, path := range args {
		buf, err := os.ReadFile(path)
		if err != nil {
			return fmt.Errorf("read input: %w", err)
		}
		inputs[i] = buf
	}

	start := time.Now()
	out, err := concat.Concat(inputs)
	if err != nil {
		return err
	}

	info, err := concat.Probe(out)
	if err != nil {
		return fmt.Errorf("probe output: %w", err)
	}

	if *envPath != "" {
		if err := saveManaged(*envPath, *output, args, out, info); err != nil {
			return err
		}
	} else {
		if err := os.WriteFile(*output, out, 0o600); err != nil {
			return fmt.Errorf("write output: %w", err)
		}
	}

	fmt.Printf("stitched %v inputs into %v in %v\n",
		len(args), *output, time.Since(start).Round(time.Millisecond))
	fmt.Printf("duration: %v, samples: %v, audio: %v\n",
		info.Duration.Round(time.Millisecond), info.VideoSamples, info.HasAudio)
	return nil
}

func probeFile(path string) error {
	buf, err := os.ReadFile(path)
	if err != nil {
		return fmt.Errorf("read file: %w", err)
	}

	info, err := concat.Probe(buf)
	if err != nil {
		return err
	}

	fmt.Printf("movie timescale: %v\n", info.MovieTimescale)
	fmt.Printf("media timescale: %v\n", info.MediaTimescale)
	fmt.Printf("video samples:   %v\n", info.VideoSamples)
	if info.HasAudio {
		fmt.Printf("audio samples:   %v\n", info.AudioSamples)
	}
	fmt.Printf("duration:        %v\n", info.Duration.Round(time.Millisecond))
	return nil
}

// printLogs dumps the most recent entries from the managed log store.
func printLogs(envPath string) error {
	envYAML, err := os.ReadFile(envPath)
	if err != nil {
		return fmt.Errorf("read env.yaml: %w", err)
	}
	env, err := storage.NewConfigEnv(envPath, envYAML)
	if err != nil {
		return fmt.Errorf("parse env.yaml: %w", err)
	}

	ctx, cancel := context.WithCancel(context.Background())
	wg := &sync.WaitGroup{}

	logDB := stitchlog.NewDB(filepath.Join(env.StorageDir, "logs.db"), wg)
	if err := logDB.Init(ctx); err != nil {
		cancel()
		return err
	}

	entries, err := logDB.Query(stitchlog.Query{Limit: 50})
	cancel()
	wg.Wait()
	if err != nil {
		return fmt.Errorf("query logs: %w", err)
	}

	// The query walks backwards in time, print oldest first.
	for i := len(*entries) - 1; i >= 0; i-- {
		entry := (*entries)[i]
		timestamp := time.Unix(0, int64(entry.Time)*1000).
			UTC().Format("2006-01-02 15:04:05")

		line := timestamp + " [" + entry.Level.String() + "] "
		if entry.Job != "" {
			line += entry.Job + ": "
		}
		if entry.Src != "" {
			line += entry.Src + ": "
		}
		fmt.Println(line + entry.Msg)
	}
	return nil
}

// saveManaged stores the output through the storage manager so old
// outputs get purged when the disk budget runs out.
func saveManaged(envPath string, name string, inputPaths []string, out []byte, info *concat.Info) error {
	envYAML, err := os.ReadFile(envPath)
	if err != nil {
		return fmt.Errorf("read env.yaml: %w", err)
	}
	env, err := storage.NewConfigEnv(envPath, envYAML)
	if err != nil {
		return fmt.Errorf("parse env.yaml: %w", err)
	}
	if err := env.PrepareEnvironment(); err != nil {
		return err
	}

	ctx, cancel := context.WithCancel(context.Background())
	wg := &sync.WaitGroup{}

	logger := stitchlog.NewLogger()
	logger.Start(ctx)
	go logger.LogToStdout(ctx)

	logDB := stitchlog.NewDB(filepath.Join(env.StorageDir, "logs.db"), wg)
	if err := logDB.Init(ctx); err != nil {
		cancel()
		return err
	}
	go logDB.SaveLogs(ctx, logger)

	jobs := storage.NewJobStore(filepath.Join(env.StorageDir, "jobs.db"), wg)
	if err := jobs.Init(ctx); err != nil {
		cancel()
		return err
	}
	manager := storage.NewManager(env, jobs, logger)

	jobID := time.Now().UTC().Format("2006-01-02_15-04-05") + "_" +
		strings.TrimSuffix(filepath.Base(name), ".mp4")

	job := storage.Job{
		ID:        jobID,
		Inputs:    inputPaths,
		Duration:  info.Duration,
		CreatedAt: time.Now().UTC(),
	}
	if err := manager.SaveOutput(job, out); err != nil {
		cancel()
		return err
	}

	diskUsage, err := manager.DiskUsage(0)
	if err == nil {
		logger.Info().
			Src("stitch").
			Job(jobID).
			Msgf("saved %v, disk usage %v", manager.OutputPath(jobID), diskUsage.Formatted)
	}
	if err := manager.Purge(); err != nil {
		logger.Error().Src("storage").Msgf("could not purge storage: %v", err)
	}

	// Give feed subscribers a chance to drain before shutdown.
	time.Sleep(10 * time.Millisecond)
	cancel()
	wg.Wait()
	return nil
}
