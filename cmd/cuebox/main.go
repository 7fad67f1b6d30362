package main

import (
	"bufio"
	"flag"
	"fmt"
	"log/slog"
	"os"
	"strconv"
	"strings"

	"gitlab.com/gomidi/midi/v2/drivers"
	"gitlab.com/gomidi/midi/v2/drivers/rtmididrv"

	"github.com/cuebox-audio/cuebox"
	"github.com/cuebox-audio/cuebox/internal/cue"
)

func main() {
	var (
		configPath = flag.String("config", "", "path to the TOML configuration")
		midiPort   = flag.String("midi", "", "MIDI input port name (empty = no MIDI control)")
		listMIDI   = flag.Bool("list-midi", false, "list MIDI input ports and exit")
		render     = flag.Float64("render", 0, "render N seconds of the first cue offline instead of playing live")
		outPath    = flag.String("out", "render.wav", "output file for -render")
		debug      = flag.Bool("debug", false, "enable debug logging")
	)
	flag.Parse()

	level := slog.LevelInfo
	if *debug {
		level = slog.LevelDebug
	}
	log := slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: level}))
	slog.SetDefault(log)

	if *listMIDI {
		if err := printMIDIPorts(); err != nil {
			fail(err)
		}
		return
	}
	if *configPath == "" {
		fail(fmt.Errorf("missing -config"))
	}

	backend, err := cuebox.LoadFile(*configPath, cuebox.WithLogger(log))
	if err != nil {
		fail(err)
	}
	defer backend.Close()

	log.Info("configuration loaded",
		"name", backend.Name(),
		"sample_rate", backend.SampleRate(),
		"buffer_size", backend.BufferSize(),
		"channels", backend.ChannelCount(),
		"cues", len(backend.Cues().Names()))

	if *render > 0 {
		if err := renderOffline(backend, *render, *outPath); err != nil {
			fail(err)
		}
		log.Info("rendered", "seconds", *render, "file", *outPath)
		return
	}

	if *midiPort != "" {
		in, err := openMIDI(*midiPort)
		if err != nil {
			fail(err)
		}
		if err := backend.ListenMIDI(in); err != nil {
			fail(err)
		}
		log.Info("midi input connected", "port", *midiPort)
	}

	if err := backend.Start(); err != nil {
		fail(err)
	}
	repl(backend, log)
}

func fail(err error) {
	fmt.Fprintln(os.Stderr, "cuebox:", err)
	os.Exit(1)
}

func renderOffline(backend *cuebox.Backend, seconds float64, path string) error {
	if err := backend.Cues().Play(); err != nil {
		return err
	}
	samples := backend.RenderSeconds(seconds)
	wav := cuebox.EncodeWAVFloat32LE(samples, backend.SampleRate(), backend.ChannelCount())
	return os.WriteFile(path, wav, 0o644)
}

func printMIDIPorts() error {
	drv, err := rtmididrv.New()
	if err != nil {
		return err
	}
	defer drv.Close()
	ins, err := drv.Ins()
	if err != nil {
		return err
	}
	for _, in := range ins {
		fmt.Println(in.String())
	}
	return nil
}

func openMIDI(name string) (drivers.In, error) {
	drv, err := rtmididrv.New()
	if err != nil {
		return nil, err
	}
	ins, err := drv.Ins()
	if err != nil {
		return nil, err
	}
	for _, in := range ins {
		if strings.Contains(in.String(), name) {
			if err := in.Open(); err != nil {
				return nil, err
			}
			return in, nil
		}
	}
	return nil, fmt.Errorf("MIDI input %q not found", name)
}

// repl drives the cue transport from stdin: one command per line, the way
// a rehearsal operator steps through a set list.
func repl(backend *cuebox.Backend, log *slog.Logger) {
	cues := backend.Cues()
	fmt.Println("commands: cues, select <name>, next, prev, play, stop, silence, jump <seconds>, quit")
	printCurrent(cues)

	scanner := bufio.NewScanner(os.Stdin)
	for scanner.Scan() {
		fields := strings.Fields(scanner.Text())
		if len(fields) == 0 {
			continue
		}
		var err error
		switch fields[0] {
		case "cues":
			for _, name := range cues.Names() {
				fmt.Println(" ", name)
			}
		case "select":
			if len(fields) < 2 {
				err = fmt.Errorf("usage: select <name>")
				break
			}
			err = cues.Select(fields[1])
		case "next":
			err = cues.Next()
		case "prev":
			err = cues.Previous()
		case "play":
			err = cues.Play()
		case "stop":
			cues.Stop()
		case "silence":
			cues.StopAll()
		case "jump":
			if len(fields) < 2 {
				err = fmt.Errorf("usage: jump <seconds>")
				break
			}
			var seconds float64
			seconds, err = strconv.ParseFloat(fields[1], 64)
			if err == nil {
				err = cues.JumpTo(seconds)
			}
		case "quit", "exit":
			return
		default:
			err = fmt.Errorf("unknown command %q", fields[0])
		}
		if err != nil {
			log.Warn("command rejected", "error", err)
		}
		printCurrent(cues)
	}
}

func printCurrent(cues *cue.Manager) {
	current := cues.Current()
	if current == nil {
		fmt.Println("(no cues declared)")
		return
	}
	fmt.Printf("[%s] %s\n", cues.State(), current.Name)
}
