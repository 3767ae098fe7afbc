// Command bmffprobe inspects fragmented-MP4 files: it prints the track table
// and segment index of an initialization segment, and per-fragment timing,
// ID3 events, and closed captions for any media fragments given.
package main

import (
	"flag"
	"fmt"
	"log/slog"
	"os"

	"golang.org/x/sync/errgroup"

	"github.com/zsiec/bmff/caption"
	"github.com/zsiec/bmff/fmp4"
)

type fragmentReport struct {
	path     string
	start    float64
	duration float64
	id3      []fmp4.EmsgEvent
	captions []caption.Sample
}

func main() {
	initPath := flag.String("init", "", "initialization segment (may also carry a sidx)")
	showCaptions := flag.Bool("captions", false, "decode and print CEA-608/708 caption text")
	flag.Parse()

	level := slog.LevelInfo
	if os.Getenv("DEBUG") != "" {
		level = slog.LevelDebug
	}
	slog.SetDefault(slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: level})))

	if *initPath == "" {
		fmt.Fprintln(os.Stderr, "usage: bmffprobe -init init.mp4 [-captions] [fragment.m4s ...]")
		os.Exit(2)
	}

	initBuf, err := os.ReadFile(*initPath)
	if err != nil {
		slog.Error("failed to read init segment", "path", *initPath, "error", err)
		os.Exit(1)
	}

	tracks := fmp4.ParseInitSegment(initBuf)
	for _, t := range tracks.All() {
		fmt.Printf("track %d: kind=%s timescale=%d codec=%q", t.ID, t.Kind, t.Timescale, t.Codec)
		if t.Defaults != nil {
			fmt.Printf(" default_duration=%d default_flags=%#x", t.Defaults.Duration, t.Defaults.Flags)
		}
		fmt.Println()
	}

	idx, err := fmp4.ParseSegmentIndex(initBuf)
	if err != nil {
		slog.Warn("segment index unusable", "error", err)
	} else if idx != nil {
		for i, ref := range idx.References {
			fmt.Printf("sidx ref %d: bytes [%d, %d] duration %.3fs\n", i, ref.Start, ref.End, ref.Seconds)
		}
	}

	reports := make([]fragmentReport, flag.NArg())
	g := new(errgroup.Group)
	for i, path := range flag.Args() {
		g.Go(func() error {
			buf, err := os.ReadFile(path)
			if err != nil {
				return fmt.Errorf("read %s: %w", path, err)
			}
			reports[i] = fragmentReport{
				path:     path,
				start:    fmp4.StartDTS(buf, tracks),
				duration: fmp4.Duration(buf, tracks),
				id3:      fmp4.ExtractID3Events(buf),
				captions: caption.Extract(buf, tracks, nil),
			}
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		slog.Error("fragment probe failed", "error", err)
		os.Exit(1)
	}

	// The caption decoder is stateful across fragments, so decode in input
	// order after the parallel parse.
	dec := caption.NewDecoder(nil)
	for _, r := range reports {
		fmt.Printf("%s: start %.3fs duration %.3fs, %d caption SEI, %d ID3 events\n",
			r.path, r.start, r.duration, len(r.captions), len(r.id3))
		for _, ev := range r.id3 {
			fmt.Printf("  emsg id=%d scheme=%s time=%d/%d payload=%d bytes\n",
				ev.ID, ev.SchemeURI, ev.PresentationTime, ev.Timescale, len(ev.Payload))
		}
		if *showCaptions {
			for _, s := range r.captions {
				for _, frame := range dec.Decode(s) {
					fmt.Printf("  caption ch%d pts=%d: %s\n", frame.Channel, frame.PTS, frame.Text)
				}
			}
		}
	}
}
